package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus represents the operational state of an account.
type AccountStatus string

const (
	// StatusActive permits balance mutations.
	StatusActive AccountStatus = "active"
	// StatusFrozen blocks all balance mutations; terminal reads remain allowed.
	StatusFrozen AccountStatus = "frozen"
)

// ExternalAccount is the sentinel endpoint recorded on deposit and withdrawal
// transactions in place of the leg that has no real account.
const ExternalAccount = "@external"

// Account is a balance-holding record addressed by its immutable account number.
// The account store exclusively owns these records; every other copy (cache,
// responses) is advisory.
type Account struct {
	AccountNumber string          `json:"accountNumber"`
	UserID        string          `json:"userId"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Transactable returns a domain error when the account status blocks movements.
func (a *Account) Transactable() error {
	if a.Status != StatusActive {
		return NewDomainError(ErrorAccountStatusRestriction, "status",
			"account "+a.AccountNumber+" is not active")
	}

	return nil
}

// CanDebit reports whether the account can cover an outgoing amount.
// The result is advisory: the authoritative guard is the conditional
// predicate applied inside the store's atomic update.
func (a *Account) CanDebit(amount decimal.Decimal) error {
	if err := a.Transactable(); err != nil {
		return err
	}

	if a.Balance.LessThan(amount) {
		return NewDomainError(ErrorInsufficientFunds, "amount",
			"account "+a.AccountNumber+" cannot cover "+amount.String())
	}

	return nil
}

// Role classifies a caller's privilege level.
type Role string

const (
	// RoleUser is the default, ownership-bound privilege level.
	RoleUser Role = "user"
	// RoleAdmin may operate on any account.
	RoleAdmin Role = "admin"
)

// Caller identifies the authenticated principal requesting a movement.
type Caller struct {
	UserID string
	Role   Role
}

// MayOperate reports whether the caller may move funds on the account.
func (c Caller) MayOperate(account *Account) bool {
	if c.Role == RoleAdmin {
		return true
	}

	return c.UserID != "" && c.UserID == account.UserID
}

// ValidateAmount checks that a movement amount is strictly positive.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewDomainError(ErrorInvalidInput, "amount", "amount must be greater than zero")
	}

	return nil
}

// ValidateCurrency checks the requested currency against the account currency.
// An empty requested currency inherits the account currency.
func ValidateCurrency(account *Account, currency string) error {
	if strings.TrimSpace(currency) == "" {
		return nil
	}

	if !strings.EqualFold(currency, account.Currency) {
		return NewDomainError(ErrorCurrencyMismatch, "currency",
			"account "+account.AccountNumber+" holds "+account.Currency+", not "+currency)
	}

	return nil
}
