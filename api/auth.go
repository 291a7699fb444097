package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/lunarbank/funds/ledger"
)

// callerKey is the fiber locals key holding the authenticated caller.
const callerKey = "caller"

// ErrMissingClaims is returned when a verified token lacks identity claims.
var ErrMissingClaims = errors.New("token is missing required claims")

// movementClaims is the expected JWT payload.
type movementClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// WithAuth verifies the bearer token and stores the resolved caller in the
// request context. Tokens must be HMAC-signed with the shared secret.
func WithAuth(secret string) fiber.Handler {
	secretBytes := []byte(secret)

	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return unauthenticated(c, "missing bearer token")
		}

		claims := &movementClaims{}

		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}

			return secretBytes, nil
		})
		if err != nil || !parsed.Valid {
			return unauthenticated(c, "invalid or expired token")
		}

		if claims.UserID == "" {
			return unauthenticated(c, ErrMissingClaims.Error())
		}

		role := ledger.RoleUser
		if claims.Role == string(ledger.RoleAdmin) {
			role = ledger.RoleAdmin
		}

		c.Locals(callerKey, ledger.Caller{UserID: claims.UserID, Role: role})

		return c.Next()
	}
}

// RequireAdmin rejects non-admin callers. It must run after WithAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if callerFrom(c).Role != ledger.RoleAdmin {
			return c.Status(http.StatusForbidden).JSON(Response{
				Code:    string(ledger.ErrorForbidden),
				Message: "admin role required",
			})
		}

		return c.Next()
	}
}

func callerFrom(c *fiber.Ctx) ledger.Caller {
	caller, _ := c.Locals(callerKey).(ledger.Caller)

	return caller
}

func unauthenticated(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusUnauthorized).JSON(Response{
		Code:    string(ledger.ErrorUnauthenticated),
		Message: message,
	})
}
