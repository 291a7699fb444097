package ledger

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a movement by its shape.
type TransactionType string

const (
	// TypeDeposit credits an account from the external sentinel.
	TypeDeposit TransactionType = "DEPOSIT"
	// TypeWithdraw debits an account toward the external sentinel.
	TypeWithdraw TransactionType = "WITHDRAW"
	// TypeTransfer moves funds between two internal accounts.
	TypeTransfer TransactionType = "TRANSFER"
)

// TransactionStatus is the terminal outcome recorded on a transaction.
//
// A transaction is never persisted in an intermediate state: it is written
// exactly once, atomically with the balance mutation, or not at all.
type TransactionStatus string

const (
	// TxStatusSuccess marks a committed movement.
	TxStatusSuccess TransactionStatus = "SUCCESS"
	// TxStatusFailed marks a movement recorded for audit after a rejected attempt.
	TxStatusFailed TransactionStatus = "FAILED"
)

// txIDPrefixes tags generated transaction ids by operation kind so an id is
// distinguishable without loading the record.
var txIDPrefixes = map[TransactionType]string{
	TypeDeposit:  "DEP",
	TypeWithdraw: "WTD",
	TypeTransfer: "TXN",
}

const txIDRandomBytes = 6

// NewTxID generates a collision-resistant, format-tagged transaction id,
// e.g. "TXN-9f86d081884c".
func NewTxID(txType TransactionType) string {
	prefix, ok := txIDPrefixes[txType]
	if !ok {
		prefix = "TXN"
	}

	id := uuid.New()

	return prefix + "-" + hex.EncodeToString(id[:txIDRandomBytes])
}

// Transaction is one immutable ledger record. After creation no field is
// ever edited in place.
type Transaction struct {
	TxID           string            `json:"txId"`
	FromAccount    string            `json:"fromAccount"`
	ToAccount      string            `json:"toAccount"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Status         TransactionStatus `json:"status"`
	Type           TransactionType   `json:"type"`
	Description    string            `json:"description,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// NewDeposit builds a SUCCESS deposit transaction crediting toAccount from
// the external sentinel.
func NewDeposit(toAccount string, amount decimal.Decimal, currency, description string) *Transaction {
	return &Transaction{
		TxID:        NewTxID(TypeDeposit),
		FromAccount: ExternalAccount,
		ToAccount:   toAccount,
		Amount:      amount,
		Currency:    currency,
		Status:      TxStatusSuccess,
		Type:        TypeDeposit,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewWithdrawal builds a SUCCESS withdrawal transaction debiting fromAccount
// toward the external sentinel.
func NewWithdrawal(fromAccount string, amount decimal.Decimal, currency, description string) *Transaction {
	return &Transaction{
		TxID:        NewTxID(TypeWithdraw),
		FromAccount: fromAccount,
		ToAccount:   ExternalAccount,
		Amount:      amount,
		Currency:    currency,
		Status:      TxStatusSuccess,
		Type:        TypeWithdraw,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewTransfer builds a SUCCESS transfer transaction referencing both accounts.
func NewTransfer(fromAccount, toAccount string, amount decimal.Decimal, currency string) *Transaction {
	return &Transaction{
		TxID:        NewTxID(TypeTransfer),
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		Amount:      amount,
		Currency:    currency,
		Status:      TxStatusSuccess,
		Type:        TypeTransfer,
		CreatedAt:   time.Now().UTC(),
	}
}
