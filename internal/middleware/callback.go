package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const sessionIDLocal = "ussd_session_id"

// callback is the subset of a gateway callback the middlewares key on.
type callback struct {
	SessionID   string `json:"sessionId" form:"sessionId"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	Text        string `json:"text" form:"text"`
}

func parseCallback(c *fiber.Ctx) callback {
	var cb callback
	_ = c.BodyParser(&cb)
	cb.SessionID = strings.TrimSpace(cb.SessionID)
	cb.PhoneNumber = strings.TrimSpace(cb.PhoneNumber)
	if cb.SessionID != "" {
		c.Locals(sessionIDLocal, cb.SessionID)
	}
	return cb
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
