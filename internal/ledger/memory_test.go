package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/ficore/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ConditionalDecrementWaitsForRowLock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateAccount("user1", 2))

	first, _ := store.Begin(ctx)
	second, _ := store.Begin(ctx)

	b1, _ := first.GetBalance(ctx, "user1")
	b2, _ := second.GetBalance(ctx, "user1")
	require.Equal(t, int64(2), b1)
	require.Equal(t, int64(2), b2)

	affected, err := first.ConditionalDecrement(ctx, "user1", 2, b1, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	result := make(chan int64, 1)
	go func() {
		n, _ := second.ConditionalDecrement(ctx, "user1", 2, b2, time.Now())
		result <- n
	}()

	select {
	case <-result:
		t.Fatal("second decrement must wait for the first unit to finish")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, first.Commit())
	assert.Equal(t, int64(0), <-result)
	require.NoError(t, second.Rollback())

	balance, _ := store.Balance(ctx, "user1")
	assert.Equal(t, int64(0), balance)
}

func TestMemoryStore_RollbackDiscardsStagedWork(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateAccount("user1", 5))

	unit, _ := store.Begin(ctx)
	_, err := unit.ConditionalDecrement(ctx, "user1", 1, 5, time.Now())
	require.NoError(t, err)
	require.NoError(t, unit.Append(ctx, &models.CreditTransaction{ID: "e1", UserID: "user1"}))
	require.NoError(t, unit.Rollback())
	require.NoError(t, unit.Rollback())

	balance, _ := store.Balance(ctx, "user1")
	assert.Equal(t, int64(5), balance)
	count, _ := store.CountEntries(ctx, "user1")
	assert.Zero(t, count)

	// The row lock was released, so a fresh unit can decrement again.
	next, _ := store.Begin(ctx)
	affected, err := next.ConditionalDecrement(ctx, "user1", 1, 5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	require.NoError(t, next.Commit())
}

func TestMemoryStore_CreateAccount(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.CreateAccount("user1", DefaultStartingBalance))
	assert.ErrorIs(t, store.CreateAccount("user1", 1), ErrAccountExists)
	assert.Error(t, store.CreateAccount("user2", -1))
}

func TestMemoryStore_ListEntriesPaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateAccount("user1", 10))

	unit, _ := store.Begin(ctx)
	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, unit.Append(ctx, &models.CreditTransaction{ID: id, UserID: "user1"}))
	}
	require.NoError(t, unit.Append(ctx, &models.CreditTransaction{ID: "other", UserID: "user2"}))
	require.NoError(t, unit.Commit())

	page, _ := store.ListEntries(ctx, "user1", 2, 0)
	require.Len(t, page, 2)
	assert.Equal(t, "e3", page[0].ID)
	assert.Equal(t, "e2", page[1].ID)

	page, _ = store.ListEntries(ctx, "user1", 2, 2)
	require.Len(t, page, 1)
	assert.Equal(t, "e1", page[0].ID)
}
