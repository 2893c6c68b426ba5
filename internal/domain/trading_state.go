package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingStatus is the lifecycle state of a trading state row.
type TradingStatus string

const (
	// TradingActive means the account is still eligible for evaluation.
	TradingActive TradingStatus = "active"
	// TradingCompleted is terminal, set once a challenge decision is committed.
	TradingCompleted TradingStatus = "completed"
	// TradingInactive means the account is parked (admin action, external).
	TradingInactive TradingStatus = "inactive"
	// TradingError marks a broker sync failure; cleared on the next good sync.
	TradingError TradingStatus = "error"
)

// TradingState represents one user's live account metrics.
// Corresponds to trading_states table in PostgreSQL. Balance/equity are
// written only by the broker sync monitor; Status transitions to
// TradingCompleted are written only by the evaluation engine.
type TradingState struct {
	UserEmail   string          // PRIMARY KEY, FK to Account
	Balance     decimal.Decimal // realized balance
	Equity      decimal.Decimal // balance + unrealized P&L
	DailyPnL    decimal.Decimal // realized P&L since UTC midnight
	Currency    string
	Status      TradingStatus
	LastTradeAt *time.Time
	UpdatedAt   time.Time
}

// EquitySnapshot is one observed point of a user's equity curve.
// Corresponds to equity_snapshots table in ClickHouse.
type EquitySnapshot struct {
	UserEmail   string
	TimestampMs int64 // observation time, Unix ms
	Balance     decimal.Decimal
	Equity      decimal.Decimal
	DailyPnL    decimal.Decimal
}
