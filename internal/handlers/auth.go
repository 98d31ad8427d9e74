package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const senderKey = "sender_id"

// Bearer verifies the Authorization header on snapshot-read and durable-write
// routes. Credential issuance lives elsewhere; the middleware only checks the
// HMAC signature and puts the subject claim in request locals as the sender
// identity.
func Bearer(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if raw == "" || raw == c.Get(fiber.HeaderAuthorization) {
			return unauthorized(c)
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			return unauthorized(c)
		}

		c.Locals(senderKey, claims.Subject)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}

// SenderID returns the identity the Bearer middleware established.
func SenderID(c *fiber.Ctx) string {
	id, _ := c.Locals(senderKey).(string)
	return id
}
