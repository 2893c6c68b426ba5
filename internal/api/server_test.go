package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	accounts  *memory.AccountStore
	states    *memory.TradingStateStore
	snapshots *memory.EquitySnapshotStore
	server    *Server
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		accounts:  memory.NewAccountStore(),
		states:    memory.NewTradingStateStore(),
		snapshots: memory.NewEquitySnapshotStore(),
		now:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	f.server = NewServer(Options{
		Accounts:  f.accounts,
		States:    f.states,
		Snapshots: f.snapshots,
		Now:       func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.server.Router.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServer_ListTraders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.states.UpsertMetrics(ctx, &domain.TradingState{
		UserEmail: "trader@example.com",
		Balance:   decimal.NewFromInt(10000),
		Equity:    decimal.RequireFromString("10250.50"),
		DailyPnL:  decimal.RequireFromString("250.50"),
		Currency:  "USD",
		UpdatedAt: f.now,
	})
	require.NoError(t, err)

	w := f.get(t, "/api/traders")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Traders []struct {
			UserEmail string          `json:"user_email"`
			Equity    decimal.Decimal `json:"equity"`
			Status    string          `json:"status"`
		} `json:"traders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Traders, 1)
	assert.Equal(t, "trader@example.com", body.Traders[0].UserEmail)
	assert.True(t, body.Traders[0].Equity.Equal(decimal.RequireFromString("10250.50")))
	assert.Equal(t, "active", body.Traders[0].Status)
}

func TestServer_ListAccountsHidesTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.accounts.Upsert(ctx, &domain.Account{
		UserEmail:        "trader@example.com",
		BrokerType:       "deriv",
		BrokerToken:      "super-secret-token",
		StartBalance:     decimal.NewFromInt(10000),
		ProfitTarget:     decimal.NewFromInt(1000),
		MaxDrawdownLimit: decimal.NewFromInt(1000),
		IsActive:         true,
	})
	require.NoError(t, err)

	w := f.get(t, "/api/accounts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "super-secret-token")

	var body struct {
		Accounts []struct {
			UserEmail       string  `json:"user_email"`
			ChallengeStatus *string `json:"challenge_status"`
		} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Accounts, 1)
	assert.Nil(t, body.Accounts[0].ChallengeStatus)
}

func TestServer_EquityHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inWindow := f.now.Add(-1 * time.Hour)
	outOfWindow := f.now.Add(-48 * time.Hour)
	for _, ts := range []time.Time{inWindow, outOfWindow} {
		err := f.snapshots.Insert(ctx, &domain.EquitySnapshot{
			UserEmail:   "trader@example.com",
			TimestampMs: ts.UnixMilli(),
			Balance:     decimal.NewFromInt(10000),
			Equity:      decimal.NewFromInt(10100),
		})
		require.NoError(t, err)
	}

	w := f.get(t, "/api/equity/trader@example.com?hours=24")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		UserEmail string `json:"user_email"`
		Hours     int    `json:"hours"`
		Points    []struct {
			TimestampMs int64 `json:"timestamp_ms"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "trader@example.com", body.UserEmail)
	assert.Equal(t, 24, body.Hours)
	require.Len(t, body.Points, 1)
	assert.Equal(t, inWindow.UnixMilli(), body.Points[0].TimestampMs)
}

func TestServer_EquityHistoryBadHours(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"hours=0", "hours=-3", "hours=abc"} {
		w := f.get(t, "/api/equity/trader@example.com?"+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestServer_EquityHistoryEmpty(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/api/equity/nobody@example.com")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Points []any `json:"points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Points)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
