package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/lunarbank/funds/engine"
	"github.com/lunarbank/funds/ledger"
	"github.com/lunarbank/funds/log"
)

// MovementService is the engine surface the handlers invoke.
type MovementService interface {
	Deposit(ctx context.Context, caller ledger.Caller, req engine.DepositRequest) (*engine.Result, error)
	Withdraw(ctx context.Context, caller ledger.Caller, req engine.WithdrawRequest) (*engine.Result, error)
	Transfer(ctx context.Context, caller ledger.Caller, req engine.TransferRequest) (*engine.Result, error)
}

// LedgerReader serves transaction read paths.
type LedgerReader interface {
	FindByTxID(ctx context.Context, txID string) (*ledger.Transaction, error)
	ListByAccountNumbers(ctx context.Context, accountNumbers []string, limit int64) ([]*ledger.Transaction, error)
}

// AccountDirectory serves account read paths and admin status flips.
type AccountDirectory interface {
	FindByAccountNumber(ctx context.Context, accountNumber string) (*ledger.Account, error)
	SetStatus(ctx context.Context, accountNumber string, status ledger.AccountStatus) error
}

// Handler holds the collaborators behind the HTTP surface.
type Handler struct {
	movements MovementService
	records   LedgerReader
	accounts  AccountDirectory
	logger    log.Logger
}

// NewHandler wires a handler. A nil logger falls back to a nop logger.
func NewHandler(movements MovementService, records LedgerReader, accounts AccountDirectory, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Handler{
		movements: movements,
		records:   records,
		accounts:  accounts,
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// Request bodies
// ---------------------------------------------------------------------------

type depositBody struct {
	AccountNumber  string `json:"accountNumber" validate:"required"`
	Amount         string `json:"amount" validate:"required,positive_amount"`
	Currency       string `json:"currency"`
	Description    string `json:"description" validate:"max=256"`
	IdempotencyKey string `json:"idempotencyKey" validate:"max=128"`
}

type withdrawBody struct {
	AccountNumber  string `json:"accountNumber" validate:"required"`
	Amount         string `json:"amount" validate:"required,positive_amount"`
	Currency       string `json:"currency"`
	Description    string `json:"description" validate:"max=256"`
	IdempotencyKey string `json:"idempotencyKey" validate:"max=128"`
}

type transferBody struct {
	FromAccount    string `json:"fromAccount" validate:"required"`
	ToAccount      string `json:"toAccount" validate:"required"`
	Amount         string `json:"amount" validate:"required,positive_amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotencyKey" validate:"max=128"`
}

// parseBody decodes and validates a JSON request body. The returned error is
// a domain error the caller renders with domainError.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return ledger.NewDomainError(ledger.ErrorInvalidInput, "", "request body is not valid JSON")
	}

	if err := validateStruct(out); err != nil {
		return ledger.NewDomainError(ledger.ErrorInvalidInput, "", err.Error())
	}

	return nil
}

// parseAmount is only called after positive_amount validation passed, so a
// parse failure here means a handler bug, not bad input.
func parseAmount(value string) decimal.Decimal {
	d, _ := decimal.NewFromString(value)

	return d
}

// ---------------------------------------------------------------------------
// Movement handlers
// ---------------------------------------------------------------------------

// Deposit handles POST /api/transactions/deposit.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var body depositBody
	if err := parseBody(c, &body); err != nil {
		return domainError(c, err)
	}

	result, err := h.movements.Deposit(c.UserContext(), callerFrom(c), engine.DepositRequest{
		AccountNumber:  body.AccountNumber,
		Amount:         parseAmount(body.Amount),
		Currency:       body.Currency,
		Description:    body.Description,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(result)
}

// Withdraw handles POST /api/transactions/withdraw.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var body withdrawBody
	if err := parseBody(c, &body); err != nil {
		return domainError(c, err)
	}

	result, err := h.movements.Withdraw(c.UserContext(), callerFrom(c), engine.WithdrawRequest{
		AccountNumber:  body.AccountNumber,
		Amount:         parseAmount(body.Amount),
		Currency:       body.Currency,
		Description:    body.Description,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(result)
}

// Transfer handles POST /api/transactions/transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var body transferBody
	if err := parseBody(c, &body); err != nil {
		return domainError(c, err)
	}

	result, err := h.movements.Transfer(c.UserContext(), callerFrom(c), engine.TransferRequest{
		FromAccount:    body.FromAccount,
		ToAccount:      body.ToAccount,
		Amount:         parseAmount(body.Amount),
		Currency:       body.Currency,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(result)
}

// ---------------------------------------------------------------------------
// Read handlers
// ---------------------------------------------------------------------------

const defaultHistoryLimit = 50

// GetTransaction handles GET /api/transactions/:txId.
func (h *Handler) GetTransaction(c *fiber.Ctx) error {
	txID := c.Params("txId")

	tx, err := h.records.FindByTxID(c.UserContext(), txID)
	if err != nil {
		if errors.Is(err, engine.ErrTransactionNotFound) {
			return domainError(c, ledger.NewDomainError(ledger.ErrorTransactionNotFound, "txId", "transaction not found"))
		}

		h.logger.Log(c.UserContext(), log.LevelError, "transaction lookup failed",
			log.String("txId", txID), log.Err(err))

		return domainError(c, err)
	}

	caller := callerFrom(c)
	if caller.Role != ledger.RoleAdmin && !h.callerOwnsLeg(c.UserContext(), caller, tx) {
		return domainError(c, ledger.NewDomainError(ledger.ErrorForbidden, "", "transaction belongs to another user"))
	}

	return c.Status(http.StatusOK).JSON(tx)
}

// GetAccount handles GET /api/accounts/:accountNumber.
func (h *Handler) GetAccount(c *fiber.Ctx) error {
	account, err := h.resolveOperableAccount(c)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(account)
}

// ListAccountTransactions handles GET /api/accounts/:accountNumber/transactions.
func (h *Handler) ListAccountTransactions(c *fiber.Ctx) error {
	account, err := h.resolveOperableAccount(c)
	if err != nil {
		return domainError(c, err)
	}

	limit := int64(c.QueryInt("limit", defaultHistoryLimit))
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}

	records, err := h.records.ListByAccountNumbers(c.UserContext(), []string{account.AccountNumber}, limit)
	if err != nil {
		h.logger.Log(c.UserContext(), log.LevelError, "transaction list failed",
			log.String("account", account.AccountNumber), log.Err(err))

		return domainError(c, err)
	}

	if records == nil {
		records = []*ledger.Transaction{}
	}

	return c.Status(http.StatusOK).JSON(records)
}

// ---------------------------------------------------------------------------
// Admin handlers
// ---------------------------------------------------------------------------

// FreezeAccount handles POST /api/accounts/:accountNumber/freeze.
func (h *Handler) FreezeAccount(c *fiber.Ctx) error {
	return h.setStatus(c, ledger.StatusFrozen)
}

// UnfreezeAccount handles POST /api/accounts/:accountNumber/unfreeze.
func (h *Handler) UnfreezeAccount(c *fiber.Ctx) error {
	return h.setStatus(c, ledger.StatusActive)
}

func (h *Handler) setStatus(c *fiber.Ctx, status ledger.AccountStatus) error {
	accountNumber := c.Params("accountNumber")

	if err := h.accounts.SetStatus(c.UserContext(), accountNumber, status); err != nil {
		if errors.Is(err, engine.ErrAccountNotFound) {
			return domainError(c, ledger.NewDomainError(ledger.ErrorAccountNotFound, "accountNumber", "account not found"))
		}

		h.logger.Log(c.UserContext(), log.LevelError, "account status update failed",
			log.String("account", accountNumber), log.Err(err))

		return domainError(c, err)
	}

	h.logger.Log(c.UserContext(), log.LevelInfo, "account status updated",
		log.String("account", accountNumber), log.String("status", string(status)))

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"accountNumber": accountNumber,
		"status":        string(status),
	})
}

// ---------------------------------------------------------------------------
// Shared lookup helpers
// ---------------------------------------------------------------------------

// resolveOperableAccount loads the path account and enforces that the caller
// owns it or is an admin. The returned error is rendered by the handler.
func (h *Handler) resolveOperableAccount(c *fiber.Ctx) (*ledger.Account, error) {
	accountNumber := c.Params("accountNumber")

	account, err := h.accounts.FindByAccountNumber(c.UserContext(), accountNumber)
	if err != nil {
		if errors.Is(err, engine.ErrAccountNotFound) {
			return nil, ledger.NewDomainError(ledger.ErrorAccountNotFound, "accountNumber", "account not found")
		}

		h.logger.Log(c.UserContext(), log.LevelError, "account lookup failed",
			log.String("account", accountNumber), log.Err(err))

		return nil, err
	}

	if !callerFrom(c).MayOperate(account) {
		return nil, ledger.NewDomainError(ledger.ErrorForbidden, "", "account belongs to another user")
	}

	return account, nil
}

// callerOwnsLeg reports whether either leg of tx is an account owned by the
// caller.
func (h *Handler) callerOwnsLeg(ctx context.Context, caller ledger.Caller, tx *ledger.Transaction) bool {
	for _, accountNumber := range []string{tx.FromAccount, tx.ToAccount} {
		if accountNumber == "" || accountNumber == ledger.ExternalAccount {
			continue
		}

		account, err := h.accounts.FindByAccountNumber(ctx, accountNumber)
		if err != nil {
			continue
		}

		if account.UserID == caller.UserID {
			return true
		}
	}

	return false
}
