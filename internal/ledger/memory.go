package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ficore/backend/internal/models"
)

var ErrAccountExists = errors.New("credit account already exists")

var (
	_ Store       = (*MemoryStore)(nil)
	_ AuditReader = (*MemoryStore)(nil)
)

// MemoryStore is an in-process Store with read-committed semantics. A unit
// that decrements a balance holds that account's row lock until it commits or
// rolls back; a competing decrement waits for the lock and then re-checks its
// expected balance against the committed value, as Postgres does.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
	rowLocks map[string]chan struct{}
	entries  []models.CreditTransaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]int64),
		rowLocks: make(map[string]chan struct{}),
	}
}

// CreateAccount opens an account with the given balance.
func (m *MemoryStore) CreateAccount(userID string, balance int64) error {
	if balance < 0 {
		return errors.New("starting balance cannot be negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[userID]; ok {
		return ErrAccountExists
	}
	m.balances[userID] = balance
	m.rowLocks[userID] = make(chan struct{}, 1)
	return nil
}

func (m *MemoryStore) Begin(ctx context.Context) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryUnit{store: m, staged: make(map[string]int64)}, nil
}

func (m *MemoryStore) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

// ListEntries returns a user's entries newest first.
func (m *MemoryStore) ListEntries(_ context.Context, userID string, limit, offset int) ([]models.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := []models.CreditTransaction{}
	skipped := 0
	for i := len(m.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		if m.entries[i].UserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		entries = append(entries, m.entries[i])
	}
	return entries, nil
}

func (m *MemoryStore) CountEntries(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.entries {
		if e.UserID == userID {
			count++
		}
	}
	return count, nil
}

type memoryUnit struct {
	store   *MemoryStore
	staged  map[string]int64 // userID -> new balance, row lock held
	pending []models.CreditTransaction
	done    bool
}

func (u *memoryUnit) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if balance, ok := u.staged[userID]; ok {
		return balance, nil
	}
	return u.store.Balance(ctx, userID)
}

func (u *memoryUnit) ConditionalDecrement(ctx context.Context, userID string, amount, expected int64, _ time.Time) (int64, error) {
	if u.done {
		return 0, errors.New("unit of work already finished")
	}
	if current, ok := u.staged[userID]; ok {
		if current != expected || current < amount {
			return 0, nil
		}
		u.staged[userID] = current - amount
		return 1, nil
	}

	u.store.mu.Lock()
	lock, ok := u.store.rowLocks[userID]
	u.store.mu.Unlock()
	if !ok {
		return 0, nil
	}

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	u.store.mu.Lock()
	current := u.store.balances[userID]
	u.store.mu.Unlock()

	if current != expected || current < amount {
		<-lock
		return 0, nil
	}
	u.staged[userID] = current - amount
	return 1, nil
}

func (u *memoryUnit) Append(ctx context.Context, entry *models.CreditTransaction) error {
	if u.done {
		return errors.New("unit of work already finished")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.pending = append(u.pending, *entry)
	return nil
}

func (u *memoryUnit) Commit() error {
	if u.done {
		return errors.New("unit of work already finished")
	}
	u.done = true

	u.store.mu.Lock()
	for userID, balance := range u.staged {
		u.store.balances[userID] = balance
	}
	u.store.entries = append(u.store.entries, u.pending...)
	u.store.mu.Unlock()

	u.release()
	return nil
}

func (u *memoryUnit) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	u.release()
	return nil
}

func (u *memoryUnit) release() {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for userID := range u.staged {
		<-u.store.rowLocks[userID]
	}
	u.staged = nil
	u.pending = nil
}
