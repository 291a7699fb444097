package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/lunarbank/funds/ledger"
)

// Response is the error envelope returned on every non-2xx outcome.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusOf maps a domain error code to its HTTP status.
func statusOf(code ledger.ErrorCode) int {
	switch code {
	case ledger.ErrorAccountNotFound, ledger.ErrorTransactionNotFound:
		return http.StatusNotFound
	case ledger.ErrorUnauthenticated:
		return http.StatusUnauthorized
	case ledger.ErrorForbidden:
		return http.StatusForbidden
	case ledger.ErrorCommitFailed:
		return http.StatusInternalServerError
	case ledger.ErrorOutcomeUnknown:
		return http.StatusGatewayTimeout
	default:
		// Precondition and validation failures: insufficient funds, frozen
		// account, currency mismatch, invalid input.
		return http.StatusBadRequest
	}
}

// domainError renders a domain error as its mapped HTTP response. Errors
// that are not DomainError fall through to a generic 500.
func domainError(c *fiber.Ctx, err error) error {
	var derr ledger.DomainError
	if errors.As(err, &derr) {
		return c.Status(statusOf(derr.Code)).JSON(Response{
			Code:    string(derr.Code),
			Message: derr.Message,
			Field:   derr.Field,
		})
	}

	return c.Status(http.StatusInternalServerError).JSON(Response{
		Code:    string(ledger.ErrorCommitFailed),
		Message: "internal error",
	})
}
