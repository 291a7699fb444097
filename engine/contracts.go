package engine

import (
	"context"
	"errors"

	"github.com/lunarbank/funds/ledger"
)

// Collaborator contract errors. Store implementations return these (wrapped)
// so the engine can map storage outcomes onto the domain taxonomy.
var (
	// ErrAccountNotFound is returned by stores when no account matches.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTransactionNotFound is returned by stores when no transaction matches.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrNoMatch is returned when a conditional atomic update matched zero
	// documents. The unit was aborted; nothing was applied.
	ErrNoMatch = errors.New("atomic update matched no documents")
	// ErrDuplicateIdempotencyKey is returned when the ledger insert hit the
	// idempotency-key uniqueness constraint. The unit was aborted.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

// AccountStore resolves authoritative account state.
type AccountStore interface {
	FindByAccountNumber(ctx context.Context, number string) (*ledger.Account, error)
}

// LedgerStore executes atomic movement units and reads the immutable ledger.
//
// Each Apply method commits the balance mutation(s) and the transaction
// record in one all-or-nothing unit. The balance precondition for outgoing
// legs is re-validated inside the unit's write predicate; when the predicate
// matches nothing the whole unit aborts with ErrNoMatch.
type LedgerStore interface {
	ApplyDeposit(ctx context.Context, tx *ledger.Transaction) error
	ApplyWithdrawal(ctx context.Context, tx *ledger.Transaction) error
	ApplyTransfer(ctx context.Context, tx *ledger.Transaction) error

	FindByTxID(ctx context.Context, txID string) (*ledger.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*ledger.Transaction, error)
}

// Cache is the best-effort read-through accelerator. A miss is never an
// error; implementations log their own failures and degrade to stale or
// absent reads rather than surfacing problems to the movement path.
type Cache interface {
	GetAccount(ctx context.Context, number string) (*ledger.Account, bool)
	SetAccount(ctx context.Context, account *ledger.Account)

	// Invalidate synchronously removes every key that could reflect stale
	// post-mutation state for the given accounts. Invalidating absent keys
	// is a no-op.
	Invalidate(ctx context.Context, accounts ...*ledger.Account)

	GetIdempotencyMarker(ctx context.Context, key string) (string, bool)
	SetIdempotencyMarker(ctx context.Context, key, txID string)
}

// Dispatcher emits side-effect events after the ledger decision is final.
// Both methods are fire-and-forget: they never block on delivery and never
// report failure to the movement path.
type Dispatcher interface {
	Notify(ctx context.Context, event ledger.NotificationEvent)
	ReportError(ctx context.Context, event ledger.ErrorEvent)
}
