package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	replayPrefix     = "ussd:replay:v1:"
	inProgressMarker = "__in_progress__"
)

// USSDReplay caches replies keyed by session id and accumulated text so a
// gateway retry of the same callback gets the original reply instead of
// advancing the dialog twice. Without Redis it is a no-op.
func USSDReplay(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		cb := parseCallback(c)
		if cb.SessionID == "" {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := replayPrefix + digest(cb.SessionID, cb.Text)

		cached, err := cache.Get(ctx, key).Result()
		if err == nil {
			if cached == inProgressMarker {
				return fiber.NewError(http.StatusConflict, "duplicate request currently processing")
			}
			c.Type("txt")
			return c.Status(http.StatusOK).SendString(cached)
		}
		if !errors.Is(err, redis.Nil) {
			// fail open: the dialog still works without the cache
			logger.Warn("replay lookup failed", slog.String("session_id", cb.SessionID), slog.Any("error", err))
			return c.Next()
		}

		reserved, err := cache.SetNX(ctx, key, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Warn("replay reservation failed", slog.String("session_id", cb.SessionID), slog.Any("error", err))
			return c.Next()
		}
		if !reserved {
			return fiber.NewError(http.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil || c.Response().StatusCode() != http.StatusOK {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cleanupCancel()
			cache.Del(cleanupCtx, key)
			return err
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer persistCancel()
		if err := cache.Set(persistCtx, key, string(c.Response().Body()), ttl).Err(); err != nil {
			logger.Warn("failed to persist ussd reply", slog.String("session_id", cb.SessionID), slog.Any("error", err))
			cache.Del(persistCtx, key)
		}
		return nil
	}
}
