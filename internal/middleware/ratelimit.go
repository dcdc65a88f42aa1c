package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitedReply = "END Too many requests. Please try again in a minute."

// PhoneRateLimit limits USSD callbacks per phone number (or IP when the body
// has none) using a fixed one minute window in Redis. The limited reply is
// a regular END screen so the handset shows it.
func PhoneRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		subject := parseCallback(c).PhoneNumber
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:ussd:" + digest(subject)
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			// A counter whose first Expire was lost would block the phone for good.
			if ttl, err := cache.TTL(c.UserContext(), key).Result(); err == nil && ttl < 0 {
				cache.Expire(c.UserContext(), key, time.Minute)
			}
			c.Type("txt")
			return c.Status(http.StatusOK).SendString(rateLimitedReply)
		}
		return c.Next()
	}
}
