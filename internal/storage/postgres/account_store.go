package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

const accountColumns = `
	user_email, broker_type, broker_token, start_balance, profit_target,
	max_drawdown_limit, challenge_status, is_active, created_at, updated_at
`

// GetUnevaluated retrieves the account for email only while its
// challenge_status is NULL. Returns ErrAlreadyDecided for a decided account,
// ErrNotFound for a missing one.
func (s *AccountStore) GetUnevaluated(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM user_accounts
		WHERE user_email = $1 AND challenge_status IS NULL
	`

	row := s.pool.QueryRow(ctx, query, email)
	a, err := scanAccount(row)
	if err != nil {
		if isNotFoundError(err) {
			var exists bool
			if err := s.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM user_accounts WHERE user_email = $1)`, email,
			).Scan(&exists); err != nil {
				return nil, fmt.Errorf("get unevaluated account: check existence: %w", err)
			}
			if exists {
				return nil, storage.ErrAlreadyDecided
			}
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get unevaluated account: %w", err)
	}
	return a, nil
}

// ListActive retrieves all onboarded accounts eligible for broker sync.
func (s *AccountStore) ListActive(ctx context.Context) ([]*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM user_accounts
		WHERE is_active = true AND broker_token <> ''
		ORDER BY user_email ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// ListByChallengeStatus retrieves all accounts with the given terminal status.
func (s *AccountStore) ListByChallengeStatus(ctx context.Context, status domain.ChallengeStatus) ([]*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM user_accounts
		WHERE challenge_status = $1
		ORDER BY user_email ASC
	`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list accounts by challenge status: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// SetChallengeStatus commits a terminal decision, conditional on
// challenge_status still being NULL at write time.
func (s *AccountStore) SetChallengeStatus(ctx context.Context, email string, status domain.ChallengeStatus, at time.Time) error {
	if !status.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE user_accounts
		SET challenge_status = $2, updated_at = $3
		WHERE user_email = $1 AND challenge_status IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, email, string(status), at)
	if err != nil {
		return fmt.Errorf("set challenge status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a decided account from a missing one.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM user_accounts WHERE user_email = $1)`, email,
		).Scan(&exists); err != nil {
			return fmt.Errorf("set challenge status: check existence: %w", err)
		}
		if exists {
			return storage.ErrAlreadyDecided
		}
		return storage.ErrNotFound
	}
	return nil
}

// SetChallengeParams initializes challenge parameters for an account.
func (s *AccountStore) SetChallengeParams(ctx context.Context, email string, start, target, limit decimal.Decimal, at time.Time) error {
	query := `
		UPDATE user_accounts
		SET start_balance = $2, profit_target = $3, max_drawdown_limit = $4, updated_at = $5
		WHERE user_email = $1
	`

	tag, err := s.pool.Exec(ctx, query, email, start, target, limit, at)
	if err != nil {
		return fmt.Errorf("set challenge params: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces an account row. A terminal challenge_status
// already present in the table is preserved.
func (s *AccountStore) Upsert(ctx context.Context, a *domain.Account) error {
	if a == nil || a.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO user_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_email) DO UPDATE SET
			broker_type = EXCLUDED.broker_type,
			broker_token = EXCLUDED.broker_token,
			start_balance = EXCLUDED.start_balance,
			profit_target = EXCLUDED.profit_target,
			max_drawdown_limit = EXCLUDED.max_drawdown_limit,
			challenge_status = COALESCE(user_accounts.challenge_status, EXCLUDED.challenge_status),
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	var statusStr *string
	if a.ChallengeStatus != nil {
		v := string(*a.ChallengeStatus)
		statusStr = &v
	}

	_, err := s.pool.Exec(ctx, query,
		a.UserEmail,
		a.BrokerType,
		a.BrokerToken,
		a.StartBalance,
		a.ProfitTarget,
		a.MaxDrawdownLimit,
		statusStr,
		a.IsActive,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// scanAccount scans a single row into an Account.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var statusStr *string

	err := row.Scan(
		&a.UserEmail,
		&a.BrokerType,
		&a.BrokerToken,
		&a.StartBalance,
		&a.ProfitTarget,
		&a.MaxDrawdownLimit,
		&statusStr,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if statusStr != nil {
		status := domain.ChallengeStatus(*statusStr)
		a.ChallengeStatus = &status
	}
	return &a, nil
}

// scanAccounts scans multiple rows into a slice of Accounts.
func scanAccounts(rows pgx.Rows) ([]*domain.Account, error) {
	var accounts []*domain.Account

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	return accounts, nil
}
