package middleware

import (
	"fmt"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/avanomad/avanomad/internal/logging"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return cache
}

func post(t *testing.T, app *fiber.App, session, phone, text string) (int, string) {
	t.Helper()
	form := url.Values{"sessionId": {session}, "phoneNumber": {phone}, "text": {text}}
	req := httptest.NewRequest(fiber.MethodPost, "/ussd", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestUSSDReplayReturnsCachedReply(t *testing.T) {
	cache := setupRedis(t)
	var calls atomic.Int32

	app := fiber.New()
	app.Use(USSDReplay(cache, time.Minute, logging.Discard()))
	app.Post("/ussd", func(c *fiber.Ctx) error {
		return c.SendString(fmt.Sprintf("CON step %d", calls.Add(1)))
	})

	_, first := post(t, app, "s1", "2348030000001", "2")
	_, again := post(t, app, "s1", "2348030000001", "2")
	if first != again || calls.Load() != 1 {
		t.Fatalf("expected cached reply, got %q then %q (%d calls)", first, again, calls.Load())
	}

	_, next := post(t, app, "s1", "2348030000001", "2*500")
	if next == first || calls.Load() != 2 {
		t.Fatalf("new text must reach the handler, got %q", next)
	}
}

func TestUSSDReplaySkipsErrors(t *testing.T) {
	cache := setupRedis(t)
	var calls atomic.Int32

	app := fiber.New()
	app.Use(USSDReplay(cache, time.Minute, logging.Discard()))
	app.Post("/ussd", func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(fiber.StatusBadRequest, "bad")
	})

	post(t, app, "s1", "2348030000001", "")
	post(t, app, "s1", "2348030000001", "")
	if calls.Load() != 2 {
		t.Fatalf("failed replies must not be cached, handler ran %d times", calls.Load())
	}
}

func TestUSSDReplayWithoutRedis(t *testing.T) {
	var calls atomic.Int32
	app := fiber.New()
	app.Use(USSDReplay(nil, time.Minute, logging.Discard()))
	app.Post("/ussd", func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.SendString("CON ok")
	})
	post(t, app, "s1", "2348030000001", "")
	post(t, app, "s1", "2348030000001", "")
	if calls.Load() != 2 {
		t.Fatalf("expected passthrough, got %d calls", calls.Load())
	}
}

func TestPhoneRateLimit(t *testing.T) {
	cache := setupRedis(t)
	app := fiber.New()
	app.Use(PhoneRateLimit(cache, 2))
	app.Post("/ussd", func(c *fiber.Ctx) error { return c.SendString("CON ok") })

	for i := 0; i < 2; i++ {
		if _, body := post(t, app, "s1", "2348030000001", ""); body != "CON ok" {
			t.Fatalf("request %d limited early: %q", i, body)
		}
	}
	status, body := post(t, app, "s1", "2348030000001", "")
	if status != fiber.StatusOK || body != rateLimitedReply {
		t.Fatalf("expected rate limited reply, got %d %q", status, body)
	}
	if _, body := post(t, app, "s2", "2348030000002", ""); body != "CON ok" {
		t.Fatalf("other numbers are not limited, got %q", body)
	}
}

func TestAdminKey(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", AdminKey("secret"), func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set(adminKeyHeader, "secret")
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 with key, got %d", resp.StatusCode)
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc")
	resp, _ := app.Test(req)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "abc" || resp.Header.Get(requestIDHeader) != "abc" {
		t.Fatalf("unexpected request id %q / %q", body, resp.Header.Get(requestIDHeader))
	}

	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestPhoneRateLimitRepairsMissingExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Use(PhoneRateLimit(cache, 2))
	app.Post("/ussd", func(c *fiber.Ctx) error { return c.SendString("CON ok") })

	// A counter left over without a TTL, as after a failed EXPIRE.
	key := "rl:ussd:" + digest("2348030000001")
	if err := mr.Set(key, "5"); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	if _, body := post(t, app, "s1", "2348030000001", ""); body != rateLimitedReply {
		t.Fatalf("expected rate limited reply, got %q", body)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected counter to regain a one minute ttl, got %s", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if _, body := post(t, app, "s1", "2348030000001", ""); body != "CON ok" {
		t.Fatalf("phone should be unblocked after the window, got %q", body)
	}
}
