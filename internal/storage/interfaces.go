package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"syntax-engine/internal/domain"
)

// AccountStore provides access to user_accounts storage.
type AccountStore interface {
	// GetUnevaluated retrieves the account for email only while its
	// challenge_status is NULL; this is the evaluation idempotence guard.
	// Returns ErrAlreadyDecided if the account exists with a terminal
	// status, ErrNotFound if it does not exist at all.
	GetUnevaluated(ctx context.Context, email string) (*domain.Account, error)

	// ListActive retrieves all onboarded accounts eligible for broker sync
	// (is_active = true and a broker token present).
	ListActive(ctx context.Context) ([]*domain.Account, error)

	// ListByChallengeStatus retrieves all accounts with the given terminal status.
	ListByChallengeStatus(ctx context.Context, status domain.ChallengeStatus) ([]*domain.Account, error)

	// SetChallengeStatus commits a terminal decision. The update is
	// conditional on challenge_status still being NULL; if the guard fails
	// it returns ErrAlreadyDecided, and ErrNotFound if no row exists.
	SetChallengeStatus(ctx context.Context, email string, status domain.ChallengeStatus, at time.Time) error

	// SetChallengeParams initializes the challenge parameters for an account
	// whose start_balance is still zero. Returns ErrNotFound if no row exists.
	SetChallengeParams(ctx context.Context, email string, start, target, limit decimal.Decimal, at time.Time) error

	// Upsert inserts or replaces an account row. Used by onboarding and tests;
	// it never clears a terminal challenge_status.
	Upsert(ctx context.Context, a *domain.Account) error
}

// TradingStateStore provides access to trading_states storage.
type TradingStateStore interface {
	// ListActive retrieves all trading states with status = active.
	ListActive(ctx context.Context) ([]*domain.TradingState, error)

	// Get retrieves the trading state for email. Returns ErrNotFound if not exists.
	Get(ctx context.Context, email string) (*domain.TradingState, error)

	// UpsertMetrics writes balance, equity, daily P&L, currency and
	// last_trade_at for email, creating the row with status = active when
	// absent. It never modifies the status of an existing row except to
	// clear a previous error marker back to active.
	UpsertMetrics(ctx context.Context, s *domain.TradingState) error

	// MarkCompleted transitions status to completed, conditional on the row
	// currently being active. Returns ErrAlreadyDecided if the guard fails,
	// ErrNotFound if no row exists.
	MarkCompleted(ctx context.Context, email string, at time.Time) error

	// MarkError flags a broker sync failure for email, creating the row when
	// absent. A completed row is left untouched.
	MarkError(ctx context.Context, email string, at time.Time) error
}

// EquitySnapshotStore provides access to the equity_snapshots timeseries.
type EquitySnapshotStore interface {
	// Insert appends one snapshot point.
	Insert(ctx context.Context, p *domain.EquitySnapshot) error

	// GetByUserRange retrieves snapshots for email within [start, end]
	// (Unix ms, inclusive), ordered by timestamp ASC.
	GetByUserRange(ctx context.Context, email string, start, end int64) ([]*domain.EquitySnapshot, error)
}
