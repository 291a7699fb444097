package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lunarbank/funds/engine"
	"github.com/lunarbank/funds/ledger"
)

const transactionsCollection = "transactions"

// transactionDocument is the BSON shape of an immutable ledger record.
type transactionDocument struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty"`
	TxID           string               `bson:"txId"`
	FromAccount    string               `bson:"fromAccount"`
	ToAccount      string               `bson:"toAccount"`
	Amount         primitive.Decimal128 `bson:"amount"`
	Currency       string               `bson:"currency"`
	Status         string               `bson:"status"`
	Type           string               `bson:"type"`
	Description    string               `bson:"description,omitempty"`
	IdempotencyKey string               `bson:"idempotencyKey,omitempty"`
	CreatedAt      time.Time            `bson:"createdAt"`
}

func newTransactionDocument(tx *ledger.Transaction) (transactionDocument, error) {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return transactionDocument{}, err
	}

	return transactionDocument{
		TxID:           tx.TxID,
		FromAccount:    tx.FromAccount,
		ToAccount:      tx.ToAccount,
		Amount:         amount,
		Currency:       tx.Currency,
		Status:         string(tx.Status),
		Type:           string(tx.Type),
		Description:    tx.Description,
		IdempotencyKey: tx.IdempotencyKey,
		CreatedAt:      tx.CreatedAt,
	}, nil
}

func (doc transactionDocument) toTransaction() (*ledger.Transaction, error) {
	amount, err := fromDecimal128(doc.Amount)
	if err != nil {
		return nil, err
	}

	return &ledger.Transaction{
		TxID:           doc.TxID,
		FromAccount:    doc.FromAccount,
		ToAccount:      doc.ToAccount,
		Amount:         amount,
		Currency:       doc.Currency,
		Status:         ledger.TransactionStatus(doc.Status),
		Type:           ledger.TransactionType(doc.Type),
		Description:    doc.Description,
		IdempotencyKey: doc.IdempotencyKey,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

// debitFilter matches only an active account holding at least the debit
// amount. A zero-matched update on this filter is how overdrafts and frozen
// accounts are rejected at commit time, regardless of what any earlier read
// observed.
func debitFilter(accountNumber string, amount primitive.Decimal128) bson.M {
	return bson.M{
		"accountNumber": accountNumber,
		"status":        string(ledger.StatusActive),
		"balance":       bson.M{"$gte": amount},
	}
}

// creditFilter matches only an active account. Credits carry no balance
// guard but still refuse frozen or vanished accounts.
func creditFilter(accountNumber string) bson.M {
	return bson.M{
		"accountNumber": accountNumber,
		"status":        string(ledger.StatusActive),
	}
}

func incBalance(amount primitive.Decimal128) bson.M {
	return bson.M{"$inc": bson.M{"balance": amount}}
}

// LedgerStore commits balance mutations and ledger records atomically using
// MongoDB session transactions.
type LedgerStore struct {
	client *Client
}

// NewLedgerStore returns a ledger store backed by the given client.
func NewLedgerStore(client *Client) *LedgerStore {
	return &LedgerStore{client: client}
}

func (s *LedgerStore) collections(ctx context.Context) (*mongo.Collection, *mongo.Collection, error) {
	database, err := s.client.Database(ctx)
	if err != nil {
		return nil, nil, err
	}

	return database.Collection(accountsCollection), database.Collection(transactionsCollection), nil
}

// withTransaction runs fn inside a MongoDB session transaction. fn either
// fully commits or the session aborts and no partial state survives.
func (s *LedgerStore) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	mongoClient, err := s.client.ResolveClient(ctx)
	if err != nil {
		return err
	}

	session, err := mongoClient.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})

	return err
}

// ApplyDeposit atomically credits the destination account and inserts the
// transaction record.
func (s *LedgerStore) ApplyDeposit(ctx context.Context, tx *ledger.Transaction) error {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return err
	}

	accounts, transactions, err := s.collections(ctx)
	if err != nil {
		return err
	}

	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		result, err := accounts.UpdateOne(sc, creditFilter(tx.ToAccount), incBalance(amount))
		if err != nil {
			return fmt.Errorf("credit account %s: %w", tx.ToAccount, err)
		}

		if result.MatchedCount == 0 {
			return engine.ErrNoMatch
		}

		return s.insertRecord(sc, transactions, tx)
	})
}

// ApplyWithdrawal atomically debits the source account, guarded by the
// balance predicate, and inserts the transaction record.
func (s *LedgerStore) ApplyWithdrawal(ctx context.Context, tx *ledger.Transaction) error {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return err
	}

	negated, err := toDecimal128(tx.Amount.Neg())
	if err != nil {
		return err
	}

	accounts, transactions, err := s.collections(ctx)
	if err != nil {
		return err
	}

	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		result, err := accounts.UpdateOne(sc, debitFilter(tx.FromAccount, amount), incBalance(negated))
		if err != nil {
			return fmt.Errorf("debit account %s: %w", tx.FromAccount, err)
		}

		if result.MatchedCount == 0 {
			return engine.ErrNoMatch
		}

		return s.insertRecord(sc, transactions, tx)
	})
}

// ApplyTransfer atomically debits the source, credits the destination, and
// inserts the transaction record. The debit runs first so a failed balance
// guard aborts before any credit is staged.
func (s *LedgerStore) ApplyTransfer(ctx context.Context, tx *ledger.Transaction) error {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return err
	}

	negated, err := toDecimal128(tx.Amount.Neg())
	if err != nil {
		return err
	}

	accounts, transactions, err := s.collections(ctx)
	if err != nil {
		return err
	}

	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		debit, err := accounts.UpdateOne(sc, debitFilter(tx.FromAccount, amount), incBalance(negated))
		if err != nil {
			return fmt.Errorf("debit account %s: %w", tx.FromAccount, err)
		}

		if debit.MatchedCount == 0 {
			return engine.ErrNoMatch
		}

		credit, err := accounts.UpdateOne(sc, creditFilter(tx.ToAccount), incBalance(amount))
		if err != nil {
			return fmt.Errorf("credit account %s: %w", tx.ToAccount, err)
		}

		if credit.MatchedCount == 0 {
			return engine.ErrNoMatch
		}

		return s.insertRecord(sc, transactions, tx)
	})
}

func (s *LedgerStore) insertRecord(sc mongo.SessionContext, transactions *mongo.Collection, tx *ledger.Transaction) error {
	doc, err := newTransactionDocument(tx)
	if err != nil {
		return err
	}

	if _, err := transactions.InsertOne(sc, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return engine.ErrDuplicateIdempotencyKey
		}

		return fmt.Errorf("insert transaction %s: %w", tx.TxID, err)
	}

	return nil
}

// FindByTxID returns the ledger record with the given transaction id, or
// engine.ErrTransactionNotFound when no such record exists.
func (s *LedgerStore) FindByTxID(ctx context.Context, txID string) (*ledger.Transaction, error) {
	return s.findOne(ctx, bson.M{"txId": txID})
}

// FindByIdempotencyKey returns the ledger record committed under the given
// idempotency key, or engine.ErrTransactionNotFound.
func (s *LedgerStore) FindByIdempotencyKey(ctx context.Context, key string) (*ledger.Transaction, error) {
	return s.findOne(ctx, bson.M{"idempotencyKey": key})
}

func (s *LedgerStore) findOne(ctx context.Context, filter bson.M) (*ledger.Transaction, error) {
	_, transactions, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}

	var doc transactionDocument

	err = transactions.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, engine.ErrTransactionNotFound
		}

		return nil, fmt.Errorf("find transaction: %w", err)
	}

	return doc.toTransaction()
}

// ListByAccountNumbers returns records where any given account appears on
// either leg, newest first, capped at limit.
func (s *LedgerStore) ListByAccountNumbers(ctx context.Context, accountNumbers []string, limit int64) ([]*ledger.Transaction, error) {
	if len(accountNumbers) == 0 {
		return nil, nil
	}

	_, transactions, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"fromAccount": bson.M{"$in": accountNumbers}},
		bson.M{"toAccount": bson.M{"$in": accountNumbers}},
	}}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := transactions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*ledger.Transaction

	for cursor.Next(ctx) {
		var doc transactionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}

		record, err := doc.toTransaction()
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return records, nil
}
