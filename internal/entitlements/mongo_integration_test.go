//go:build integration

package entitlements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hookrelay/internal/constants"
	"hookrelay/pkg/migrations"
)

func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:6")
	require.NoError(t, err)
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Disconnect(ctx)
	})
	require.NoError(t, client.Ping(connectCtx, nil))

	return client.Database("hookrelay_test")
}

func TestMongoCatalog_ForPrices(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	require.NoError(t, migrations.EnsureEntitlementIndexes(ctx, db, constants.EntitlementsCollection))
	require.NoError(t, migrations.EnsureEntitlementIndexes(ctx, db, constants.EntitlementsCollection))

	coll := db.Collection(constants.EntitlementsCollection)
	_, err := coll.InsertMany(ctx, []interface{}{
		Entitlement{PriceID: "price_pro", Product: "pro", Features: []string{"export", "api"}, Active: true},
		Entitlement{PriceID: "price_team", Product: "team", Features: []string{"seats"}, Active: true},
		Entitlement{PriceID: "price_legacy", Product: "legacy", Active: false},
	})
	require.NoError(t, err)

	_, err = coll.InsertOne(ctx, Entitlement{PriceID: "price_pro", Product: "dup", Active: true})
	assert.True(t, mongo.IsDuplicateKeyError(err))

	catalog := NewMongoCatalog(db, constants.EntitlementsCollection)

	got, err := catalog.ForPrices(ctx, []string{"price_pro", "price_legacy", "price_unknown"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pro", got[0].Product)
	assert.ElementsMatch(t, []string{"export", "api"}, got[0].Features)

	got, err = catalog.ForPrices(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
