package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lunarbank/funds/ledger"
	"github.com/lunarbank/funds/log"
)

// Config defines the engine's collaborators.
type Config struct {
	Accounts   AccountStore
	Ledger     LedgerStore
	Cache      Cache
	Dispatcher Dispatcher
	Logger     log.Logger
}

func (cfg Config) validate() error {
	if cfg.Accounts == nil {
		return errors.New("account store is required")
	}

	if cfg.Ledger == nil {
		return errors.New("ledger store is required")
	}

	return nil
}

// Engine orchestrates funds movements. Safe for concurrent use.
type Engine struct {
	accounts   AccountStore
	ledger     LedgerStore
	cache      Cache
	dispatcher Dispatcher
	logger     log.Logger
	tracer     trace.Tracer
}

// New validates the configuration and returns a ready engine. Cache and
// dispatcher are optional; absent collaborators degrade to no-ops.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	cache := cfg.Cache
	if cache == nil {
		cache = nopCache{}
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = nopDispatcher{}
	}

	return &Engine{
		accounts:   cfg.Accounts,
		ledger:     cfg.Ledger,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     logger,
		tracer:     otel.Tracer("funds.engine"),
	}, nil
}

// Status values reported on movement results.
const (
	StatusSuccess = "success"
)

// Result is the caller-visible outcome of a committed movement.
//
// NewBalance is advisory: it is computed from the pre-commit read rather than
// re-fetched, so it may race with concurrent mutations. Callers that need the
// true balance must fetch it fresh.
type Result struct {
	Status     string           `json:"status"`
	TxID       string           `json:"txId"`
	NewBalance *decimal.Decimal `json:"newBalance,omitempty"`
	Message    string           `json:"message,omitempty"`
	Replayed   bool             `json:"replayed,omitempty"`
}

// resolveAccount reads an account through the cache, falling back to the
// authoritative store on a miss and repopulating the cache. The returned copy
// is only used to short-circuit preconditions cheaply; the authoritative
// check happens inside the atomic unit.
func (e *Engine) resolveAccount(ctx context.Context, number string) (*ledger.Account, error) {
	if account, ok := e.cache.GetAccount(ctx, number); ok {
		return account, nil
	}

	account, err := e.accounts.FindByAccountNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ledger.NewDomainError(ledger.ErrorAccountNotFound, "accountNumber",
				"account "+number+" not found")
		}

		return nil, storeFailure(err)
	}

	e.cache.SetAccount(ctx, account)

	return account, nil
}

// findAuthoritative bypasses the cache entirely. Used to re-map an aborted
// conditional update onto the precondition that actually failed.
func (e *Engine) findAuthoritative(ctx context.Context, number string) (*ledger.Account, error) {
	account, err := e.accounts.FindByAccountNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ledger.NewDomainError(ledger.ErrorAccountNotFound, "accountNumber",
				"account "+number+" not found")
		}

		return nil, storeFailure(err)
	}

	return account, nil
}

// replayResult short-circuits a repeated idempotency key to the prior
// committed outcome instead of re-executing the mutation. The prior record
// must describe the same movement the caller is attempting; a key reused
// for a different movement is rejected rather than replayed, so a key
// collision can never leak another request's result or silently swallow a
// distinct movement.
func (e *Engine) replayResult(
	ctx context.Context,
	key string,
	txType ledger.TransactionType,
	fromAccount, toAccount string,
	amount decimal.Decimal,
) (*Result, error) {
	prior, err := e.findPrior(ctx, key)
	if err != nil || prior == nil {
		return nil, err
	}

	if prior.Type != txType || prior.FromAccount != fromAccount ||
		prior.ToAccount != toAccount || !prior.Amount.Equal(amount) {
		return nil, ledger.NewDomainError(ledger.ErrorInvalidInput, "idempotencyKey",
			"idempotency key was already used for a different movement")
	}

	e.cache.SetIdempotencyMarker(ctx, key, prior.TxID)

	return &Result{
		Status:   StatusSuccess,
		TxID:     prior.TxID,
		Message:  "replayed prior result for idempotency key",
		Replayed: true,
	}, nil
}

// findPrior resolves the committed transaction behind an idempotency key.
// The cache marker only narrows the lookup; the record itself is always
// read from the ledger so the replay can be verified against the request.
func (e *Engine) findPrior(ctx context.Context, key string) (*ledger.Transaction, error) {
	if txID, ok := e.cache.GetIdempotencyMarker(ctx, key); ok {
		prior, err := e.ledger.FindByTxID(ctx, txID)
		if err == nil {
			return prior, nil
		}

		if !errors.Is(err, ErrTransactionNotFound) {
			return nil, storeFailure(err)
		}
		// Stale marker; fall back to the key lookup.
	}

	prior, err := e.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, nil
		}

		return nil, storeFailure(err)
	}

	return prior, nil
}

// finishCommit performs the post-commit obligations: synchronous cache
// invalidation before returning to the caller, then fire-and-forget
// idempotency marking.
func (e *Engine) finishCommit(ctx context.Context, tx *ledger.Transaction, accounts ...*ledger.Account) {
	e.cache.Invalidate(ctx, accounts...)

	if tx.IdempotencyKey != "" {
		e.cache.SetIdempotencyMarker(ctx, tx.IdempotencyKey, tx.TxID)
	}
}

// reportCommitError emits an error event for a candidate transaction that
// failed between validation and commit. Purely observational.
func (e *Engine) reportCommitError(ctx context.Context, tx *ledger.Transaction, err error) {
	e.logger.Log(ctx, log.LevelError, "movement commit failed",
		log.String("txId", tx.TxID),
		log.String("type", string(tx.Type)),
		log.Err(err))

	e.dispatcher.ReportError(ctx, ledger.NewErrorEvent(tx.TxID, err))
}

// storeFailure maps store-level failures that are not domain outcomes.
// A deadline or cancellation means the commit outcome is indeterminate and
// must never be reported as a plain failure.
func storeFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ledger.NewDomainError(ledger.ErrorOutcomeUnknown, "",
			"operation timed out; outcome unknown, retry with the same idempotency key")
	}

	return ledger.NewDomainError(ledger.ErrorCommitFailed, "",
		"atomic unit could not be applied: "+err.Error())
}

func spanError(span trace.Span, err error) {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

func spanAttrs(span trace.Span, tx *ledger.Transaction) {
	span.SetAttributes(
		attribute.String("funds.tx_id", tx.TxID),
		attribute.String("funds.tx_type", string(tx.Type)),
	)
}

// nopCache is the degraded cache used when none is configured.
type nopCache struct{}

func (nopCache) GetAccount(context.Context, string) (*ledger.Account, bool) { return nil, false }
func (nopCache) SetAccount(context.Context, *ledger.Account)               {}
func (nopCache) Invalidate(context.Context, ...*ledger.Account)            {}
func (nopCache) GetIdempotencyMarker(context.Context, string) (string, bool) {
	return "", false
}
func (nopCache) SetIdempotencyMarker(context.Context, string, string) {}

// nopDispatcher drops all side effects when no dispatcher is configured.
type nopDispatcher struct{}

func (nopDispatcher) Notify(context.Context, ledger.NotificationEvent) {}
func (nopDispatcher) ReportError(context.Context, ledger.ErrorEvent)   {}
