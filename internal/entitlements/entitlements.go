// Package entitlements maps purchased prices to the product access they
// grant. Records live in MongoDB and are maintained outside this service.
package entitlements

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Entitlement struct {
	PriceID  string   `bson:"price_id" json:"price_id"`
	Product  string   `bson:"product" json:"product"`
	Features []string `bson:"features" json:"features"`
	Active   bool     `bson:"active" json:"active"`
}

// Grant is published when a paid invoice unlocks entitlements for a user.
type Grant struct {
	UserID       string        `json:"user_id"`
	CustomerID   string        `json:"customer_id"`
	InvoiceID    string        `json:"invoice_id"`
	EventID      string        `json:"event_id"`
	Entitlements []Entitlement `json:"entitlements"`
	GrantedAt    time.Time     `json:"granted_at"`
}

type Catalog interface {
	ForPrices(ctx context.Context, priceIDs []string) ([]Entitlement, error)
}

type MongoCatalog struct {
	collection *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database, collection string) *MongoCatalog {
	return &MongoCatalog{collection: db.Collection(collection)}
}

func (c *MongoCatalog) ForPrices(ctx context.Context, priceIDs []string) ([]Entitlement, error) {
	if len(priceIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"price_id": bson.M{"$in": priceIDs},
		"active":   true,
	}

	cursor, err := c.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query entitlements: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Entitlement
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode entitlements: %w", err)
	}
	return out, nil
}
