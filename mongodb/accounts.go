package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/lunarbank/funds/engine"
	"github.com/lunarbank/funds/ledger"
)

const accountsCollection = "accounts"

// accountDocument is the BSON shape of an account record.
type accountDocument struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty"`
	AccountNumber string               `bson:"accountNumber"`
	UserID        string               `bson:"userId"`
	Balance       primitive.Decimal128 `bson:"balance"`
	Currency      string               `bson:"currency"`
	Status        string               `bson:"status"`
	CreatedAt     time.Time            `bson:"createdAt"`
}

func newAccountDocument(account *ledger.Account) (accountDocument, error) {
	balance, err := toDecimal128(account.Balance)
	if err != nil {
		return accountDocument{}, err
	}

	return accountDocument{
		AccountNumber: account.AccountNumber,
		UserID:        account.UserID,
		Balance:       balance,
		Currency:      account.Currency,
		Status:        string(account.Status),
		CreatedAt:     account.CreatedAt,
	}, nil
}

func (doc accountDocument) toAccount() (*ledger.Account, error) {
	balance, err := fromDecimal128(doc.Balance)
	if err != nil {
		return nil, err
	}

	return &ledger.Account{
		AccountNumber: doc.AccountNumber,
		UserID:        doc.UserID,
		Balance:       balance,
		Currency:      doc.Currency,
		Status:        ledger.AccountStatus(doc.Status),
		CreatedAt:     doc.CreatedAt,
	}, nil
}

// AccountStore persists accounts in MongoDB.
type AccountStore struct {
	client *Client
}

// NewAccountStore returns an account store backed by the given client.
func NewAccountStore(client *Client) *AccountStore {
	return &AccountStore{client: client}
}

func (s *AccountStore) collection(ctx context.Context) (*mongo.Collection, error) {
	database, err := s.client.Database(ctx)
	if err != nil {
		return nil, err
	}

	return database.Collection(accountsCollection), nil
}

// FindByAccountNumber returns the account with the given number, or
// engine.ErrAccountNotFound when no such account exists.
func (s *AccountStore) FindByAccountNumber(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	collection, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	var doc accountDocument

	err = collection.FindOne(ctx, bson.M{"accountNumber": accountNumber}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, engine.ErrAccountNotFound
		}

		return nil, fmt.Errorf("find account %s: %w", accountNumber, err)
	}

	return doc.toAccount()
}

// FindByUserID returns all accounts owned by the given user.
func (s *AccountStore) FindByUserID(ctx context.Context, userID string) ([]*ledger.Account, error) {
	collection, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	cursor, err := collection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("find accounts for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var accounts []*ledger.Account

	for cursor.Next(ctx) {
		var doc accountDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}

		account, err := doc.toAccount()
		if err != nil {
			return nil, err
		}

		accounts = append(accounts, account)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// Create inserts a new account record.
func (s *AccountStore) Create(ctx context.Context, account *ledger.Account) error {
	collection, err := s.collection(ctx)
	if err != nil {
		return err
	}

	doc, err := newAccountDocument(account)
	if err != nil {
		return err
	}

	if _, err := collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert account %s: %w", account.AccountNumber, err)
	}

	return nil
}

// SetStatus flips an account between active and frozen.
func (s *AccountStore) SetStatus(ctx context.Context, accountNumber string, status ledger.AccountStatus) error {
	collection, err := s.collection(ctx)
	if err != nil {
		return err
	}

	result, err := collection.UpdateOne(ctx,
		bson.M{"accountNumber": accountNumber},
		bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return fmt.Errorf("update status of account %s: %w", accountNumber, err)
	}

	if result.MatchedCount == 0 {
		return engine.ErrAccountNotFound
	}

	return nil
}
