//go:build unit

package mongodb

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lunarbank/funds/ledger"
	"github.com/lunarbank/funds/log"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func withDeps(deps clientDeps) Option {
	return func(current *clientDeps) {
		*current = deps
	}
}

func baseConfig() Config {
	return Config{
		URI:      "mongodb://localhost:27017",
		Database: "funds",
	}
}

func successDeps() clientDeps {
	fakeClient := &mongo.Client{}

	return clientDeps{
		connect: func(context.Context, *options.ClientOptions) (*mongo.Client, error) {
			return fakeClient, nil
		},
		ping:       func(context.Context, *mongo.Client) error { return nil },
		disconnect: func(context.Context, *mongo.Client) error { return nil },
		createIndex: func(context.Context, *mongo.Client, string, string, mongo.IndexModel) error {
			return nil
		},
	}
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(value)
	require.NoError(t, err)

	return d
}

// ---------------------------------------------------------------------------
// Client lifecycle
// ---------------------------------------------------------------------------

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         Config
		expectedErr error
	}{
		{
			name:        "empty uri",
			cfg:         Config{Database: "funds"},
			expectedErr: ErrEmptyURI,
		},
		{
			name:        "empty database",
			cfg:         Config{URI: "mongodb://localhost:27017"},
			expectedErr: ErrEmptyDatabaseName,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewClient(context.Background(), tt.cfg, withDeps(successDeps()))
			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestNewClientNilContext(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, baseConfig(), withDeps(successDeps())) //nolint:staticcheck
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestNewClientConnectsAndPings(t *testing.T) {
	t.Parallel()

	var pings atomic.Int32

	deps := successDeps()
	deps.ping = func(context.Context, *mongo.Client) error {
		pings.Add(1)

		return nil
	}

	client, err := NewClient(context.Background(), baseConfig(), withDeps(deps))
	require.NoError(t, err)
	assert.Equal(t, "funds", client.DatabaseName())
	assert.Equal(t, int32(1), pings.Load())
}

func TestNewClientPingFailureDisconnects(t *testing.T) {
	t.Parallel()

	var disconnects atomic.Int32

	deps := successDeps()
	deps.ping = func(context.Context, *mongo.Client) error {
		return errors.New("no reachable servers")
	}
	deps.disconnect = func(context.Context, *mongo.Client) error {
		disconnects.Add(1)

		return nil
	}

	_, err := NewClient(context.Background(), baseConfig(), withDeps(deps))
	assert.ErrorIs(t, err, ErrPing)
	assert.Equal(t, int32(1), disconnects.Load())
}

func TestResolveClientRateLimitsReconnects(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	deps := successDeps()
	deps.connect = func(context.Context, *options.ClientOptions) (*mongo.Client, error) {
		attempts.Add(1)

		return nil, errors.New("connection refused")
	}

	client := &Client{
		databaseName: "funds",
		cfg:          baseConfig(),
		logger:       log.NewNop(),
		deps:         deps,
	}

	ctx := context.Background()

	_, err := client.ResolveClient(ctx)
	require.ErrorIs(t, err, ErrConnect)
	require.Equal(t, int32(1), attempts.Load())

	// Rapid retries must mostly be rejected inside the backoff window
	// without dialing. The jittered delay makes the exact split
	// non-deterministic, but it cannot be a dial per call.
	rateLimited := 0

	for i := 0; i < 20; i++ {
		_, err = client.ResolveClient(ctx)
		require.ErrorIs(t, err, ErrConnect)

		if strings.Contains(err.Error(), "rate-limited") {
			rateLimited++
		}
	}

	assert.Greater(t, rateLimited, 10)
	assert.Less(t, attempts.Load(), int32(10))
}

func TestResolveClientRecoversAfterBackoff(t *testing.T) {
	t.Parallel()

	deps := successDeps()

	client := &Client{
		databaseName: "funds",
		cfg:          baseConfig(),
		logger:       log.NewNop(),
		deps:         deps,
	}

	// Simulate a prior failed attempt whose backoff window has elapsed.
	client.connectAttempts = 1
	client.lastConnectAttempt = time.Now().Add(-time.Hour)

	resolved, err := client.ResolveClient(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, resolved)
	assert.Zero(t, client.connectAttempts)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	var disconnects atomic.Int32

	deps := successDeps()
	deps.disconnect = func(context.Context, *mongo.Client) error {
		disconnects.Add(1)

		return nil
	}

	client, err := NewClient(context.Background(), baseConfig(), withDeps(deps))
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
	assert.Equal(t, int32(1), disconnects.Load())

	assert.ErrorIs(t, client.Ping(context.Background()), ErrClientClosed)
}

func TestEnsureIndexesCollectsErrors(t *testing.T) {
	t.Parallel()

	createErr := errors.New("index build failed")

	var created atomic.Int32

	deps := successDeps()
	deps.createIndex = func(_ context.Context, _ *mongo.Client, _, _ string, index mongo.IndexModel) error {
		created.Add(1)

		keys, ok := index.Keys.(bson.D)
		if ok && keys[0].Key == "bad" {
			return createErr
		}

		return nil
	}

	client, err := NewClient(context.Background(), baseConfig(), withDeps(deps))
	require.NoError(t, err)

	err = client.EnsureIndexes(context.Background(), "accounts",
		mongo.IndexModel{Keys: bson.D{{Key: "good", Value: 1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "bad", Value: 1}}},
	)
	require.ErrorIs(t, err, ErrCreateIndex)
	assert.ErrorIs(t, err, createErr)
	assert.Equal(t, int32(2), created.Load())
}

func TestEnsureMovementIndexes(t *testing.T) {
	t.Parallel()

	indexesByCollection := map[string][]mongo.IndexModel{}

	deps := successDeps()
	deps.createIndex = func(_ context.Context, _ *mongo.Client, _, collection string, index mongo.IndexModel) error {
		indexesByCollection[collection] = append(indexesByCollection[collection], index)

		return nil
	}

	client, err := NewClient(context.Background(), baseConfig(), withDeps(deps))
	require.NoError(t, err)

	require.NoError(t, EnsureMovementIndexes(context.Background(), client))

	assert.Len(t, indexesByCollection[accountsCollection], 2)
	require.Len(t, indexesByCollection[transactionsCollection], 4)

	// The idempotency index must be unique and partial so keyless records
	// never collide.
	idemIndex := indexesByCollection[transactionsCollection][3]
	require.NotNil(t, idemIndex.Options.Unique)
	assert.True(t, *idemIndex.Options.Unique)
	assert.NotNil(t, idemIndex.Options.PartialFilterExpression)
}

func TestNormalizeConfigClampsPoolSize(t *testing.T) {
	t.Parallel()

	cfg := normalizeConfig(Config{MaxPoolSize: 5000})
	assert.Equal(t, uint64(maxMaxPoolSize), cfg.MaxPoolSize)
}

// ---------------------------------------------------------------------------
// Decimal conversion
// ---------------------------------------------------------------------------

func TestDecimalRoundTrip(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"0", "0.01", "1500", "-600.25", "99999999.999999"} {
		d := mustDecimal(t, value)

		raw, err := toDecimal128(d)
		require.NoError(t, err)

		back, err := fromDecimal128(raw)
		require.NoError(t, err)
		assert.True(t, d.Equal(back), "round trip changed %s to %s", d, back)
	}
}

// ---------------------------------------------------------------------------
// Update filters
// ---------------------------------------------------------------------------

func TestDebitFilterGuardsBalanceAndStatus(t *testing.T) {
	t.Parallel()

	amount, err := toDecimal128(mustDecimal(t, "600"))
	require.NoError(t, err)

	filter := debitFilter("ACC-1", amount)

	assert.Equal(t, "ACC-1", filter["accountNumber"])
	assert.Equal(t, string(ledger.StatusActive), filter["status"])

	guard, ok := filter["balance"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, amount, guard["$gte"])
}

func TestCreditFilterGuardsStatusOnly(t *testing.T) {
	t.Parallel()

	filter := creditFilter("ACC-2")

	assert.Equal(t, "ACC-2", filter["accountNumber"])
	assert.Equal(t, string(ledger.StatusActive), filter["status"])
	assert.NotContains(t, filter, "balance")
}

func TestIncBalance(t *testing.T) {
	t.Parallel()

	amount, err := toDecimal128(mustDecimal(t, "-600"))
	require.NoError(t, err)

	update := incBalance(amount)

	inc, ok := update["$inc"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, amount, inc["balance"])
}

// ---------------------------------------------------------------------------
// Document mapping
// ---------------------------------------------------------------------------

func TestAccountDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	account := &ledger.Account{
		AccountNumber: "ACC-1",
		UserID:        "user-1",
		Balance:       mustDecimal(t, "1000.50"),
		Currency:      "USD",
		Status:        ledger.StatusActive,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}

	doc, err := newAccountDocument(account)
	require.NoError(t, err)
	assert.Equal(t, primitive.NilObjectID, doc.ID)

	back, err := doc.toAccount()
	require.NoError(t, err)
	assert.Equal(t, account.AccountNumber, back.AccountNumber)
	assert.Equal(t, account.UserID, back.UserID)
	assert.True(t, account.Balance.Equal(back.Balance))
	assert.Equal(t, account.Status, back.Status)
}

func TestTransactionDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	tx := ledger.NewTransfer("ACC-1", "ACC-2", mustDecimal(t, "250.75"), "USD")
	tx.IdempotencyKey = "key-123"

	doc, err := newTransactionDocument(tx)
	require.NoError(t, err)
	assert.Equal(t, tx.TxID, doc.TxID)
	assert.Equal(t, "key-123", doc.IdempotencyKey)
	assert.Equal(t, string(ledger.TypeTransfer), doc.Type)

	back, err := doc.toTransaction()
	require.NoError(t, err)
	assert.Equal(t, tx.TxID, back.TxID)
	assert.True(t, tx.Amount.Equal(back.Amount))
	assert.Equal(t, ledger.TxStatusSuccess, back.Status)
	assert.Equal(t, "key-123", back.IdempotencyKey)
}
