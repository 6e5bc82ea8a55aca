package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ficore/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, balances map[string]int64, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	for userID, balance := range balances {
		require.NoError(t, store.CreateAccount(userID, balance))
	}
	return NewService(store, nil, opts...), store
}

func strPtr(s string) *string { return &s }

func TestService_Debit(t *testing.T) {
	ctx := context.Background()

	t.Run("successful debit", func(t *testing.T) {
		service, store := newTestLedger(t, map[string]int64{"user1": 5})

		receipt, err := service.Debit(ctx, DebitRequest{UserID: "user1", Amount: 1, Action: "create_bill", ItemID: strPtr("bill1")})
		require.NoError(t, err)
		assert.Equal(t, int64(4), receipt.Balance)
		assert.NotEmpty(t, receipt.EntryID)

		balance, err := store.Balance(ctx, "user1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), balance)

		entries, err := store.ListEntries(ctx, "user1", 10, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.CreditStatusCompleted, entries[0].Status)
		assert.Equal(t, int64(-1), entries[0].Amount)
		assert.Equal(t, int64(4), entries[0].BalanceAfter)
		assert.Equal(t, "create_bill", entries[0].Action)
		require.NotNil(t, entries[0].ItemID)
		assert.Equal(t, "bill1", *entries[0].ItemID)
		assert.Equal(t, receipt.EntryID, entries[0].ID)
	})

	t.Run("insufficient balance is audited", func(t *testing.T) {
		service, store := newTestLedger(t, map[string]int64{"user1": 0})

		receipt, err := service.Debit(ctx, DebitRequest{UserID: "user1", Amount: 1, Action: "create_bill"})
		assert.Nil(t, receipt)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.False(t, IsRetryable(err))

		balance, _ := store.Balance(ctx, "user1")
		assert.Equal(t, int64(0), balance)

		entries, _ := store.ListEntries(ctx, "user1", 10, 0)
		require.Len(t, entries, 1)
		assert.Equal(t, models.CreditStatusFailed, entries[0].Status)
		assert.Equal(t, int64(-1), entries[0].Amount)
		assert.Nil(t, entries[0].ItemID)
	})

	t.Run("unknown account writes nothing", func(t *testing.T) {
		service, store := newTestLedger(t, nil)

		_, err := service.Debit(ctx, DebitRequest{UserID: "ghost", Amount: 1, Action: "x"})
		assert.ErrorIs(t, err, ErrAccountNotFound)

		count, _ := store.CountEntries(ctx, "ghost")
		assert.Zero(t, count)
	})

	t.Run("export costs two", func(t *testing.T) {
		service, store := newTestLedger(t, map[string]int64{"user1": 3})

		receipt, err := service.Debit(ctx, DebitRequest{UserID: "user1", Amount: CostBulk, Action: "export_bill_history"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), receipt.Balance)

		_, err = service.Debit(ctx, DebitRequest{UserID: "user1", Amount: CostBulk, Action: "export_bill_history"})
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		balance, _ := store.Balance(ctx, "user1")
		assert.Equal(t, int64(1), balance)
		count, _ := store.CountEntries(ctx, "user1")
		assert.Equal(t, 2, count)
	})

	t.Run("identical calls debit twice", func(t *testing.T) {
		service, store := newTestLedger(t, map[string]int64{"user1": 5})
		req := DebitRequest{UserID: "user1", Amount: 1, Action: "create_bill", ItemID: strPtr("bill1")}

		_, err := service.Debit(ctx, req)
		require.NoError(t, err)
		_, err = service.Debit(ctx, req)
		require.NoError(t, err)

		balance, _ := store.Balance(ctx, "user1")
		assert.Equal(t, int64(3), balance)
	})
}

func TestService_DebitRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	service, store := newTestLedger(t, map[string]int64{"user1": 5})

	tests := []struct {
		name string
		req  DebitRequest
		want error
	}{
		{"zero amount", DebitRequest{UserID: "user1", Amount: 0, Action: "a"}, ErrInvalidAmount},
		{"negative amount", DebitRequest{UserID: "user1", Amount: -1, Action: "a"}, ErrInvalidAmount},
		{"unrecognised cost", DebitRequest{UserID: "user1", Amount: 3, Action: "a"}, ErrInvalidAmount},
		{"missing user", DebitRequest{Amount: 1, Action: "a"}, ErrInvalidRequest},
		{"missing action", DebitRequest{UserID: "user1", Amount: 1, Action: "  "}, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Debit(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	balance, _ := store.Balance(ctx, "user1")
	assert.Equal(t, int64(5), balance)
	count, _ := store.CountEntries(ctx, "user1")
	assert.Zero(t, count)
}

func TestService_WithAllowedCosts(t *testing.T) {
	service, _ := newTestLedger(t, map[string]int64{"user1": 10}, WithAllowedCosts(5))

	_, err := service.Debit(context.Background(), DebitRequest{UserID: "user1", Amount: 1, Action: "a"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	receipt, err := service.Debit(context.Background(), DebitRequest{UserID: "user1", Amount: 5, Action: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), receipt.Balance)
}

func TestService_ConcurrentDebitsSameUser(t *testing.T) {
	ctx := context.Background()

	t.Run("two exports against exact balance", func(t *testing.T) {
		service, store := newTestLedger(t, map[string]int64{"user1": 2})

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = service.Debit(ctx, DebitRequest{UserID: "user1", Amount: 2, Action: "export_history"})
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			assert.True(t, errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrWriteConflict), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, successes)

		balance, _ := store.Balance(ctx, "user1")
		assert.Equal(t, int64(0), balance)

		entries, _ := store.ListEntries(ctx, "user1", 10, 0)
		require.Len(t, entries, 2)
		statuses := map[models.CreditStatus]int{}
		for _, e := range entries {
			statuses[e.Status]++
		}
		assert.Equal(t, 1, statuses[models.CreditStatusCompleted])
		assert.Equal(t, 1, statuses[models.CreditStatusFailed])
	})

	t.Run("balance never goes negative", func(t *testing.T) {
		const start, callers = 10, 50
		service, store := newTestLedger(t, map[string]int64{"user1": start})

		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := service.Debit(ctx, DebitRequest{UserID: "user1", Amount: 1, Action: "toggle_bill_status"})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		balance, _ := store.Balance(ctx, "user1")
		assert.GreaterOrEqual(t, balance, int64(0))
		assert.Equal(t, int64(start-successes), balance)

		entries, _ := store.ListEntries(ctx, "user1", callers*2, 0)
		assert.Len(t, entries, callers)
		completed := 0
		for _, e := range entries {
			if e.Status == models.CreditStatusCompleted {
				completed++
			}
		}
		assert.Equal(t, successes, completed)
	})
}

// faultyStore wraps a MemoryStore and injects failures into its units.
type faultyStore struct {
	*MemoryStore
	appendErr error
	commitErr error
	block     bool
}

func (f *faultyStore) Begin(ctx context.Context) (Unit, error) {
	unit, err := f.MemoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyUnit{Unit: unit, store: f}, nil
}

type faultyUnit struct {
	Unit
	store *faultyStore
}

func (u *faultyUnit) GetBalance(ctx context.Context, userID string) (int64, error) {
	if u.store.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return u.Unit.GetBalance(ctx, userID)
}

func (u *faultyUnit) Append(ctx context.Context, entry *models.CreditTransaction) error {
	if u.store.appendErr != nil {
		return u.store.appendErr
	}
	return u.Unit.Append(ctx, entry)
}

func (u *faultyUnit) Commit() error {
	if u.store.commitErr != nil {
		u.Unit.Rollback()
		return u.store.commitErr
	}
	return u.Unit.Commit()
}

func TestService_DebitStorageFailures(t *testing.T) {
	ctx := context.Background()

	newFaulty := func(t *testing.T) *faultyStore {
		mem := NewMemoryStore()
		require.NoError(t, mem.CreateAccount("user1", 5))
		return &faultyStore{MemoryStore: mem}
	}

	t.Run("append failure rolls back the decrement", func(t *testing.T) {
		store := newFaulty(t)
		store.appendErr = errors.New("disk full")
		service := NewService(store, nil)

		_, err := service.Debit(ctx, DebitRequest{UserID: "user1", Amount: 1, Action: "create_bill"})
		assert.ErrorIs(t, err, ErrStorageFailure)

		balance, _ := store.Balance(ctx, "user1")
		assert.Equal(t, int64(5), balance)
		count, _ := store.CountEntries(ctx, "user1")
		assert.Zero(t, count)
	})

	t.Run("commit failure leaves nothing behind", func(t *testing.T) {
		store := newFaulty(t)
		store.commitErr = errors.New("connection reset")
		service := NewService(store, nil)

		_, err := service.Debit(ctx, DebitRequest{UserID: "user1", Amount: 1, Action: "create_bill"})
		assert.ErrorIs(t, err, ErrStorageFailure)
		assert.Contains(t, err.Error(), "connection reset")

		balance, _ := store.Balance(ctx, "user1")
		assert.Equal(t, int64(5), balance)
		count, _ := store.CountEntries(ctx, "user1")
		assert.Zero(t, count)
	})

	t.Run("timeout aborts the unit of work", func(t *testing.T) {
		store := newFaulty(t)
		store.block = true
		service := NewService(store, nil, WithTxTimeout(20*time.Millisecond))

		_, err := service.Debit(ctx, DebitRequest{UserID: "user1", Amount: 1, Action: "create_bill"})
		assert.ErrorIs(t, err, ErrStorageFailure)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		balance, _ := store.Balance(ctx, "user1")
		assert.Equal(t, int64(5), balance)
	})
}
