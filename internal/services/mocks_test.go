package services

import (
	"context"
	"net/http"
	"time"

	"github.com/ficore/backend/internal/config"
	"github.com/ficore/backend/internal/ledger"
	"github.com/ficore/backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
)

type MockDebiter struct {
	mock.Mock
}

func (m *MockDebiter) Debit(ctx context.Context, req ledger.DebitRequest) (*ledger.Receipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Receipt), args.Error(1)
}

// debitFor matches a debit by user, amount and action.
func debitFor(userID string, amount int64, action string) any {
	return mock.MatchedBy(func(req ledger.DebitRequest) bool {
		return req.UserID == userID && req.Amount == amount && req.Action == action
	})
}

func receipt(balance int64) *ledger.Receipt {
	return &ledger.Receipt{EntryID: "entry-1", Balance: balance, Timestamp: time.Now()}
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), userID))
}

func testConfig() *config.Config {
	return &config.Config{
		JWT:     config.JWTConfig{SecretKey: "test-secret", ExpiryHours: 24},
		Argon2:  config.Argon2Config{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32, SaltLength: 16},
		Credits: config.CreditsConfig{StartingBalance: 100, TxTimeout: time.Second, AllowedCosts: []int64{1, 2}},
	}
}

// withParams attaches chi URL parameters as the router would.
func withParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
