package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
)

// TradingStateStore implements storage.TradingStateStore using PostgreSQL.
type TradingStateStore struct {
	pool *Pool
}

// NewTradingStateStore creates a new TradingStateStore.
func NewTradingStateStore(pool *Pool) *TradingStateStore {
	return &TradingStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradingStateStore = (*TradingStateStore)(nil)

const tradingStateColumns = `
	user_email, balance, equity, daily_pnl, currency, status, last_trade_at, updated_at
`

// ListActive retrieves all trading states with status = active.
func (s *TradingStateStore) ListActive(ctx context.Context) ([]*domain.TradingState, error) {
	query := `
		SELECT ` + tradingStateColumns + `
		FROM trading_states
		WHERE status = 'active'
		ORDER BY user_email ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active trading states: %w", err)
	}
	defer rows.Close()

	return scanTradingStates(rows)
}

// Get retrieves the trading state for email. Returns ErrNotFound if not exists.
func (s *TradingStateStore) Get(ctx context.Context, email string) (*domain.TradingState, error) {
	query := `
		SELECT ` + tradingStateColumns + `
		FROM trading_states
		WHERE user_email = $1
	`

	row := s.pool.QueryRow(ctx, query, email)
	st, err := scanTradingState(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trading state: %w", err)
	}
	return st, nil
}

// UpsertMetrics writes the broker-observed metrics for email. A missing row is
// created with status = active; an existing error marker is cleared back to
// active; completed and inactive rows keep their status.
func (s *TradingStateStore) UpsertMetrics(ctx context.Context, st *domain.TradingState) error {
	if st == nil || st.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trading_states (user_email, balance, equity, daily_pnl, currency, status, last_trade_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $7)
		ON CONFLICT (user_email) DO UPDATE SET
			balance = EXCLUDED.balance,
			equity = EXCLUDED.equity,
			daily_pnl = EXCLUDED.daily_pnl,
			currency = EXCLUDED.currency,
			status = CASE WHEN trading_states.status = 'error' THEN 'active' ELSE trading_states.status END,
			last_trade_at = EXCLUDED.last_trade_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		st.UserEmail,
		st.Balance,
		st.Equity,
		st.DailyPnL,
		st.Currency,
		st.LastTradeAt,
		st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert trading state metrics: %w", err)
	}
	return nil
}

// MarkCompleted transitions status to completed, conditional on the row
// currently being active.
func (s *TradingStateStore) MarkCompleted(ctx context.Context, email string, at time.Time) error {
	query := `
		UPDATE trading_states
		SET status = 'completed', updated_at = $2
		WHERE user_email = $1 AND status = 'active'
	`

	tag, err := s.pool.Exec(ctx, query, email, at)
	if err != nil {
		return fmt.Errorf("mark trading state completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM trading_states WHERE user_email = $1)`, email,
		).Scan(&exists); err != nil {
			return fmt.Errorf("mark completed: check existence: %w", err)
		}
		if exists {
			return storage.ErrAlreadyDecided
		}
		return storage.ErrNotFound
	}
	return nil
}

// MarkError flags a broker sync failure. Completed rows are left untouched.
func (s *TradingStateStore) MarkError(ctx context.Context, email string, at time.Time) error {
	query := `
		INSERT INTO trading_states (user_email, status, updated_at)
		VALUES ($1, 'error', $2)
		ON CONFLICT (user_email) DO UPDATE SET
			status = CASE WHEN trading_states.status = 'completed' THEN 'completed' ELSE 'error' END,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, email, at)
	if err != nil {
		return fmt.Errorf("mark trading state error: %w", err)
	}
	return nil
}

// scanTradingState scans a single row into a TradingState.
func scanTradingState(row pgx.Row) (*domain.TradingState, error) {
	var st domain.TradingState
	var statusStr string

	err := row.Scan(
		&st.UserEmail,
		&st.Balance,
		&st.Equity,
		&st.DailyPnL,
		&st.Currency,
		&statusStr,
		&st.LastTradeAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.Status = domain.TradingStatus(statusStr)
	return &st, nil
}

// scanTradingStates scans multiple rows into a slice of TradingStates.
func scanTradingStates(rows pgx.Rows) ([]*domain.TradingState, error) {
	var states []*domain.TradingState

	for rows.Next() {
		st, err := scanTradingState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trading state row: %w", err)
		}
		states = append(states, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trading state rows: %w", err)
	}

	return states, nil
}
