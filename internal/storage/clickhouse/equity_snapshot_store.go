package clickhouse

import (
	"context"
	"fmt"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
)

// EquitySnapshotStore implements storage.EquitySnapshotStore using ClickHouse.
type EquitySnapshotStore struct {
	conn *Conn
}

// NewEquitySnapshotStore creates a new EquitySnapshotStore.
func NewEquitySnapshotStore(conn *Conn) *EquitySnapshotStore {
	return &EquitySnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EquitySnapshotStore = (*EquitySnapshotStore)(nil)

// Insert appends one snapshot point.
func (s *EquitySnapshotStore) Insert(ctx context.Context, p *domain.EquitySnapshot) error {
	if p == nil || p.UserEmail == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO equity_snapshots (
			user_email, timestamp_ms, balance, equity, daily_pnl
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		p.UserEmail, uint64(p.TimestampMs), p.Balance, p.Equity, p.DailyPnL,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByUserRange retrieves snapshots for email within [start, end] (Unix ms,
// inclusive), ordered by timestamp ASC.
func (s *EquitySnapshotStore) GetByUserRange(ctx context.Context, email string, start, end int64) ([]*domain.EquitySnapshot, error) {
	query := `
		SELECT user_email, timestamp_ms, balance, equity, daily_pnl
		FROM equity_snapshots
		WHERE user_email = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, email, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("get snapshots by range: %w", err)
	}
	defer rows.Close()

	var points []*domain.EquitySnapshot
	for rows.Next() {
		var p domain.EquitySnapshot
		var ts uint64

		err := rows.Scan(&p.UserEmail, &ts, &p.Balance, &p.Equity, &p.DailyPnL)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		p.TimestampMs = int64(ts)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return points, nil
}
