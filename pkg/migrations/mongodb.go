package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureEntitlementIndexes creates the indexes the entitlement catalog
// queries by. Existing indexes are left alone.
func EnsureEntitlementIndexes(ctx context.Context, db *mongo.Database, collectionName string) error {
	collection := db.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "price_id", Value: 1}},
			Options: options.Index().SetName("idx_entitlements_price_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "active", Value: 1}, {Key: "price_id", Value: 1}},
			Options: options.Index().SetName("idx_entitlements_active_price_id"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
