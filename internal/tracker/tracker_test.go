package tracker

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay/internal/logger"
	"hookrelay/pkg/errors"
)

var testKey = Key{ResourceID: "sub_A", EventType: "customer.subscription.updated"}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "customer.subscription.updated:sub_A", testKey.String())
}

func TestTracker_CheckAndCommit(t *testing.T) {
	store := NewMemoryStore()
	trk := New(store, logger.NopLogger())
	ctx := context.Background()

	fresh, err := trk.Check(ctx, testKey, 100)
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, trk.Commit(ctx, testKey, 100))

	tests := []struct {
		name    string
		created int64
		fresh   bool
	}{
		{"same timestamp", 100, false},
		{"older", 99, false},
		{"newer", 101, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fresh, err := trk.Check(ctx, testKey, tt.created)
			require.NoError(t, err)
			assert.Equal(t, tt.fresh, fresh)
		})
	}

	require.NoError(t, trk.Commit(ctx, testKey, 150))
	rec, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(150), rec.Updated)
	assert.Equal(t, 1, store.Len())
}

func TestTracker_CommitRace(t *testing.T) {
	store := NewMemoryStore()
	trk := New(store, logger.NopLogger())
	ctx := context.Background()

	require.NoError(t, trk.Commit(ctx, testKey, 200))

	err := trk.Commit(ctx, testKey, 150)
	require.Error(t, err)
	assert.True(t, errors.IsCommitRace(err))

	err = trk.Commit(ctx, testKey, 200)
	assert.True(t, errors.IsCommitRace(err))

	rec, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(200), rec.Updated)
}

type failingStore struct{}

func (failingStore) Get(context.Context, Key) (*Record, error) {
	return nil, stderrors.New("connection reset")
}

func (failingStore) Advance(context.Context, Key, int64) (bool, error) {
	return false, stderrors.New("connection reset")
}

func TestTracker_StoreErrorsAreUnavailable(t *testing.T) {
	trk := New(failingStore{}, logger.NopLogger())
	ctx := context.Background()

	_, err := trk.Check(ctx, testKey, 100)
	assert.ErrorIs(t, err, errors.ErrServiceUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, errors.ToHTTPStatus(err))

	err = trk.Commit(ctx, testKey, 100)
	assert.ErrorIs(t, err, errors.ErrServiceUnavailable)
	assert.False(t, errors.IsCommitRace(err))
}

func TestMemoryStore_ConcurrentAdvanceIsMonotonic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(created int64) {
			defer wg.Done()
			_, _ = store.Advance(ctx, testKey, created)
		}(int64(i))
	}
	wg.Wait()

	rec, err := store.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.Updated)
	assert.NotEmpty(t, rec.ID)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	rec, err := NewMemoryStore().Get(context.Background(), testKey)
	assert.NoError(t, err)
	assert.Nil(t, rec)
}
