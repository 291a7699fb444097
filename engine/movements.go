package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/lunarbank/funds/ledger"
	"github.com/lunarbank/funds/log"
)

// DepositRequest describes an inbound deposit movement.
type DepositRequest struct {
	AccountNumber  string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
}

// WithdrawRequest describes an outbound withdrawal movement.
type WithdrawRequest struct {
	AccountNumber  string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
}

// TransferRequest describes a movement between two internal accounts.
type TransferRequest struct {
	FromAccount    string
	ToAccount      string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// Deposit atomically increments the account balance and records a DEPOSIT
// transaction from the external sentinel.
func (e *Engine) Deposit(ctx context.Context, caller ledger.Caller, req DepositRequest) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.deposit")
	defer span.End()

	if err := ledger.ValidateAmount(req.Amount); err != nil {
		spanError(span, err)
		return nil, err
	}

	account, err := e.resolveAccount(ctx, req.AccountNumber)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	if err := e.checkMovement(caller, account, req.Currency); err != nil {
		spanError(span, err)
		return nil, err
	}

	// Replay is consulted only once the caller has proven access to the
	// account; a foreign caller can never read another user's result.
	if req.IdempotencyKey != "" {
		prior, err := e.replayResult(ctx, req.IdempotencyKey,
			ledger.TypeDeposit, ledger.ExternalAccount, req.AccountNumber, req.Amount)
		if err != nil {
			spanError(span, err)
			return nil, err
		}

		if prior != nil {
			return prior, nil
		}
	}

	tx := ledger.NewDeposit(req.AccountNumber, req.Amount, account.Currency, req.Description)
	tx.IdempotencyKey = req.IdempotencyKey
	spanAttrs(span, tx)

	if err := e.ledger.ApplyDeposit(ctx, tx); err != nil {
		return e.mapAbortedUnit(ctx, span, tx, err, nil)
	}

	e.finishCommit(ctx, tx, account)
	e.notifyOwner(ctx, account, fmt.Sprintf("Deposit of %s %s to %s",
		req.Amount, account.Currency, account.AccountNumber), tx.TxID)

	newBalance := account.Balance.Add(req.Amount)

	e.logger.Log(ctx, log.LevelInfo, "deposit committed",
		log.String("txId", tx.TxID),
		log.String("accountNumber", account.AccountNumber))

	return &Result{Status: StatusSuccess, TxID: tx.TxID, NewBalance: &newBalance}, nil
}

// Withdraw atomically decrements the account balance and records a WITHDRAW
// transaction toward the external sentinel. The balance guard is part of the
// store's write predicate; the pre-read check below only rejects cheaply.
func (e *Engine) Withdraw(ctx context.Context, caller ledger.Caller, req WithdrawRequest) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.withdraw")
	defer span.End()

	if err := ledger.ValidateAmount(req.Amount); err != nil {
		spanError(span, err)
		return nil, err
	}

	account, err := e.resolveAccount(ctx, req.AccountNumber)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	if err := e.checkMovement(caller, account, req.Currency); err != nil {
		spanError(span, err)
		return nil, err
	}

	// Consulted before CanDebit: a retried committed withdrawal must replay
	// even though the balance already reflects it.
	if req.IdempotencyKey != "" {
		prior, err := e.replayResult(ctx, req.IdempotencyKey,
			ledger.TypeWithdraw, req.AccountNumber, ledger.ExternalAccount, req.Amount)
		if err != nil {
			spanError(span, err)
			return nil, err
		}

		if prior != nil {
			return prior, nil
		}
	}

	if err := account.CanDebit(req.Amount); err != nil {
		spanError(span, err)
		return nil, err
	}

	tx := ledger.NewWithdrawal(req.AccountNumber, req.Amount, account.Currency, req.Description)
	tx.IdempotencyKey = req.IdempotencyKey
	spanAttrs(span, tx)

	if err := e.ledger.ApplyWithdrawal(ctx, tx); err != nil {
		return e.mapAbortedUnit(ctx, span, tx, err, &req.Amount)
	}

	e.finishCommit(ctx, tx, account)
	e.notifyOwner(ctx, account, fmt.Sprintf("Withdrawal of %s %s from %s",
		req.Amount, account.Currency, account.AccountNumber), tx.TxID)

	newBalance := account.Balance.Sub(req.Amount)

	e.logger.Log(ctx, log.LevelInfo, "withdrawal committed",
		log.String("txId", tx.TxID),
		log.String("accountNumber", account.AccountNumber))

	return &Result{Status: StatusSuccess, TxID: tx.TxID, NewBalance: &newBalance}, nil
}

// Transfer atomically moves funds between two internal accounts: debit,
// credit, and the single TRANSFER record commit together or not at all.
func (e *Engine) Transfer(ctx context.Context, caller ledger.Caller, req TransferRequest) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.transfer")
	defer span.End()

	if err := ledger.ValidateAmount(req.Amount); err != nil {
		spanError(span, err)
		return nil, err
	}

	if strings.TrimSpace(req.FromAccount) == "" || req.FromAccount == req.ToAccount {
		err := ledger.NewDomainError(ledger.ErrorInvalidInput, "toAccount",
			"transfer requires two distinct accounts")
		spanError(span, err)

		return nil, err
	}

	from, err := e.resolveAccount(ctx, req.FromAccount)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	to, err := e.resolveAccount(ctx, req.ToAccount)
	if err != nil {
		spanError(span, err)
		return nil, err
	}

	if err := e.checkMovement(caller, from, req.Currency); err != nil {
		spanError(span, err)
		return nil, err
	}

	if req.IdempotencyKey != "" {
		prior, err := e.replayResult(ctx, req.IdempotencyKey,
			ledger.TypeTransfer, req.FromAccount, req.ToAccount, req.Amount)
		if err != nil {
			spanError(span, err)
			return nil, err
		}

		if prior != nil {
			return prior, nil
		}
	}

	if err := to.Transactable(); err != nil {
		spanError(span, err)
		return nil, err
	}

	if err := ledger.ValidateCurrency(to, from.Currency); err != nil {
		spanError(span, err)
		return nil, err
	}

	if err := from.CanDebit(req.Amount); err != nil {
		spanError(span, err)
		return nil, err
	}

	tx := ledger.NewTransfer(req.FromAccount, req.ToAccount, req.Amount, from.Currency)
	tx.IdempotencyKey = req.IdempotencyKey
	spanAttrs(span, tx)

	if err := e.ledger.ApplyTransfer(ctx, tx); err != nil {
		return e.mapAbortedUnit(ctx, span, tx, err, &req.Amount)
	}

	e.finishCommit(ctx, tx, from, to)

	e.notifyOwner(ctx, from, fmt.Sprintf("Transfer of %s %s to %s",
		req.Amount, from.Currency, req.ToAccount), tx.TxID)
	e.notifyOwner(ctx, to, fmt.Sprintf("Received %s %s from %s",
		req.Amount, from.Currency, req.FromAccount), tx.TxID)

	e.logger.Log(ctx, log.LevelInfo, "transfer committed",
		log.String("txId", tx.TxID),
		log.String("fromAccount", req.FromAccount),
		log.String("toAccount", req.ToAccount))

	return &Result{Status: StatusSuccess, TxID: tx.TxID}, nil
}

// checkMovement applies the shared movement preconditions against the
// resolved (possibly cached) account copy.
func (e *Engine) checkMovement(caller ledger.Caller, account *ledger.Account, currency string) error {
	if !caller.MayOperate(account) {
		return ledger.NewDomainError(ledger.ErrorForbidden, "caller",
			"caller does not own account "+account.AccountNumber)
	}

	if err := ledger.ValidateCurrency(account, currency); err != nil {
		return err
	}

	return account.Transactable()
}

// notifyOwner emits the post-commit notification for one affected party.
// Admin-initiated movements still notify the account owner, not the admin.
func (e *Engine) notifyOwner(ctx context.Context, account *ledger.Account, message, txID string) {
	if account.UserID == "" {
		return
	}

	e.dispatcher.Notify(ctx, ledger.NewMovementNotification(account.UserID, message, txID))
}

// mapAbortedUnit turns an aborted atomic unit into the domain outcome the
// caller should see.
//
// A zero-match abort re-reads the authoritative account to tell which
// precondition lost the race: the account disappeared, its status changed,
// or (for outgoing legs) a concurrent movement drained the balance. A
// duplicate idempotency key replays the prior result. Anything else is a
// commit failure or, on timeout, an unknown outcome; those two also emit an
// error event for operational visibility.
func (e *Engine) mapAbortedUnit(
	ctx context.Context,
	span trace.Span,
	tx *ledger.Transaction,
	unitErr error,
	debited *decimal.Decimal,
) (*Result, error) {
	switch {
	case errors.Is(unitErr, ErrDuplicateIdempotencyKey) && tx.IdempotencyKey != "":
		prior, err := e.replayResult(ctx, tx.IdempotencyKey,
			tx.Type, tx.FromAccount, tx.ToAccount, tx.Amount)
		if err != nil {
			spanError(span, err)
			return nil, err
		}

		if prior != nil {
			return prior, nil
		}

		// Constraint fired but the prior record is not visible yet; the
		// caller must retry rather than assume failure.
		err = ledger.NewDomainError(ledger.ErrorOutcomeUnknown, "idempotencyKey",
			"duplicate idempotency key with no readable prior result")
		spanError(span, err)

		return nil, err

	case errors.Is(unitErr, ErrNoMatch):
		err := e.explainNoMatch(ctx, tx, debited)
		spanError(span, err)

		// A no-match abort that the re-read cannot pin on a precondition is
		// still a commit failure and must be operationally visible.
		if ledger.CodeOf(err) == ledger.ErrorCommitFailed {
			e.reportCommitError(ctx, tx, unitErr)
		}

		return nil, err

	default:
		err := storeFailure(unitErr)
		spanError(span, err)
		e.reportCommitError(ctx, tx, unitErr)

		return nil, err
	}
}

// explainNoMatch re-reads the affected accounts to name the precondition
// that failed inside the atomic predicate.
func (e *Engine) explainNoMatch(ctx context.Context, tx *ledger.Transaction, debited *decimal.Decimal) error {
	number := tx.FromAccount
	if tx.Type == ledger.TypeDeposit {
		number = tx.ToAccount
	}

	account, err := e.findAuthoritative(ctx, number)
	if err != nil {
		return err
	}

	// The cached copy that passed validation is stale either way.
	e.cache.Invalidate(ctx, account)

	if statusErr := account.Transactable(); statusErr != nil {
		return statusErr
	}

	if debited != nil && account.Balance.LessThan(*debited) {
		return ledger.NewDomainError(ledger.ErrorInsufficientFunds, "amount",
			"account "+number+" cannot cover "+debited.String())
	}

	// A transfer's credit leg carries its own status predicate; it can be
	// the one that lost the race.
	if tx.Type == ledger.TypeTransfer {
		to, err := e.findAuthoritative(ctx, tx.ToAccount)
		if err != nil {
			return err
		}

		e.cache.Invalidate(ctx, to)

		if statusErr := to.Transactable(); statusErr != nil {
			return statusErr
		}
	}

	return ledger.NewDomainError(ledger.ErrorCommitFailed, "",
		"atomic unit aborted: predicate matched no documents")
}
