package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMovementIndexes creates the indexes the stores rely on. The partial
// unique index on idempotencyKey only covers documents that carry a key, so
// keyless records never collide with each other.
func EnsureMovementIndexes(ctx context.Context, client *Client) error {
	if err := client.EnsureIndexes(ctx, accountsCollection,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "accountNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		mongo.IndexModel{
			Keys: bson.D{{Key: "userId", Value: 1}},
		},
	); err != nil {
		return err
	}

	return client.EnsureIndexes(ctx, transactionsCollection,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "txId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		mongo.IndexModel{
			Keys: bson.D{{Key: "fromAccount", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		mongo.IndexModel{
			Keys: bson.D{{Key: "toAccount", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		mongo.IndexModel{
			Keys: bson.D{{Key: "idempotencyKey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotencyKey": bson.M{"$exists": true}}),
		},
	)
}
