package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/observability"
	"syntax-engine/internal/storage"
)

const (
	// DefaultSyncInterval is the spacing between broker sweeps.
	DefaultSyncInterval = 30 * time.Second
	// DefaultOpTimeout bounds each store or broker call.
	DefaultOpTimeout = 30 * time.Second
)

// autoInitRatio sets profit target and drawdown limit when challenge
// parameters are discovered from the first observed balance.
var autoInitRatio = decimal.RequireFromString("0.10")

// Monitor polls the broker for every active account and writes the observed
// balance, equity and daily P&L into the trading state and snapshot stores.
// It is the only writer of those metrics; decision fields are never touched.
type Monitor struct {
	accounts  storage.AccountStore
	states    storage.TradingStateStore
	snapshots storage.EquitySnapshotStore
	dialer    Dialer
	interval  time.Duration
	opTimeout time.Duration
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	Accounts  storage.AccountStore
	States    storage.TradingStateStore
	Snapshots storage.EquitySnapshotStore
	Dialer    Dialer
	Interval  time.Duration // default DefaultSyncInterval
	OpTimeout time.Duration // default DefaultOpTimeout
	Logger    *zap.SugaredLogger
	Now       func() time.Time // test hook
}

// NewMonitor creates a new Monitor.
func NewMonitor(opts MonitorOptions) *Monitor {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultSyncInterval
	}

	opTimeout := opts.OpTimeout
	if opTimeout == 0 {
		opTimeout = DefaultOpTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Monitor{
		accounts:  opts.Accounts,
		states:    opts.States,
		snapshots: opts.Snapshots,
		dialer:    opts.Dialer,
		interval:  interval,
		opTimeout: opTimeout,
		logger:    logger,
		now:       now,
	}
}

// SweepResult contains counters from one broker sweep.
type SweepResult struct {
	Accounts int
	Synced   int
	Errors   []string
}

// Run blocks until ctx is cancelled, sweeping all accounts on each tick. The
// first sweep runs immediately. Ticks firing mid-sweep are skipped.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Infow("broker sync monitor starting", "interval", m.interval)

	m.runSweep(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("broker sync monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.runSweep(ctx)
		}
	}
}

func (m *Monitor) runSweep(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("broker sweep still running, skipping tick")
		return
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	start := time.Now()
	result, err := m.Sweep(ctx)
	if err != nil {
		m.logger.Errorw("broker sweep aborted", "error", err)
		observability.RecordSyncRun("error", time.Since(start).Seconds())
		return
	}

	observability.RecordSyncRun("success", time.Since(start).Seconds())
	observability.DefaultMetrics.LastSuccessfulSync.SetToCurrentTime()
	observability.DefaultMetrics.AccountsSynced.Add(float64(result.Synced))

	m.logger.Infow("broker sweep completed",
		"duration", time.Since(start),
		"accounts", result.Accounts,
		"synced", result.Synced,
		"errors", len(result.Errors),
	)
}

// Sweep syncs every active account once. A failed account listing aborts the
// sweep; per-account failures mark the trading state and continue.
func (m *Monitor) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}

	listCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	accounts, err := m.accounts.ListActive(listCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	result.Accounts = len(accounts)
	for _, account := range accounts {
		if err := m.syncAccount(ctx, account); err != nil {
			observability.DefaultMetrics.SyncErrors.Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", account.UserEmail, err))
			m.logger.Errorw("account sync failed",
				"user_email", account.UserEmail,
				"error", err,
			)
			m.markError(ctx, account.UserEmail)
			continue
		}
		result.Synced++
	}

	return result, nil
}

// syncAccount opens one broker session for account, reads balance and open
// positions, and persists the metrics.
func (m *Monitor) syncAccount(ctx context.Context, account *domain.Account) error {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	session, err := m.dialer.Dial(opCtx)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer session.Close()

	m.logger.Debugw("connecting to broker",
		"user_email", account.UserEmail,
		"token_suffix", tokenSuffix(account.BrokerToken),
	)

	info, err := session.Authorize(opCtx, account.BrokerToken)
	if err != nil {
		return err
	}

	balance, err := session.Balance(opCtx)
	if err != nil {
		return err
	}

	if account.StartBalance.IsZero() && balance.Balance.IsPositive() {
		m.autoInitParams(ctx, account, balance.Balance)
	}

	positions, err := session.Portfolio(opCtx)
	if err != nil {
		return err
	}

	unrealized := UnrealizedPnL(positions)
	equity := balance.Balance.Add(unrealized)
	now := m.now().UTC()

	dailyPnL := m.dailyPnL(ctx, account.UserEmail, equity, now)

	currency := balance.Currency
	if currency == "" {
		currency = info.Currency
	}
	if currency == "" {
		currency = "USD"
	}

	state := &domain.TradingState{
		UserEmail: account.UserEmail,
		Balance:   balance.Balance,
		Equity:    equity,
		DailyPnL:  dailyPnL,
		Currency:  currency,
		UpdatedAt: now,
	}

	upsertCtx, cancelUpsert := context.WithTimeout(ctx, m.opTimeout)
	defer cancelUpsert()
	if err := m.states.UpsertMetrics(upsertCtx, state); err != nil {
		return fmt.Errorf("upsert trading state: %w", err)
	}

	snapCtx, cancelSnap := context.WithTimeout(ctx, m.opTimeout)
	defer cancelSnap()
	err = m.snapshots.Insert(snapCtx, &domain.EquitySnapshot{
		UserEmail:   account.UserEmail,
		TimestampMs: now.UnixMilli(),
		Balance:     balance.Balance,
		Equity:      equity,
		DailyPnL:    dailyPnL,
	})
	if err != nil {
		// The authoritative state is written; the snapshot is audit data.
		m.logger.Warnw("equity snapshot insert failed",
			"user_email", account.UserEmail,
			"error", err,
		)
	}

	m.logger.Infow("account synced",
		"user_email", account.UserEmail,
		"login_id", info.LoginID,
		"virtual", info.IsVirtual,
		"balance", balance.Balance,
		"unrealized", unrealized,
		"equity", equity,
		"daily_pnl", dailyPnL,
	)
	return nil
}

// autoInitParams discovers challenge parameters from the first observed
// balance: start = balance, profit target and drawdown limit both 10%.
func (m *Monitor) autoInitParams(ctx context.Context, account *domain.Account, balance decimal.Decimal) {
	target := balance.Mul(autoInitRatio)
	limit := balance.Mul(autoInitRatio)

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	err := m.accounts.SetChallengeParams(opCtx, account.UserEmail, balance, target, limit, m.now().UTC())
	if err != nil {
		m.logger.Errorw("challenge param auto-init failed",
			"user_email", account.UserEmail,
			"error", err,
		)
		return
	}

	account.StartBalance = balance
	account.ProfitTarget = target
	account.MaxDrawdownLimit = limit

	m.logger.Infow("challenge params auto-initialized",
		"user_email", account.UserEmail,
		"start_balance", balance,
		"profit_target", target,
		"max_drawdown_limit", limit,
	)
}

// dailyPnL is equity movement since the first snapshot of the current UTC
// day, zero when no earlier snapshot exists today.
func (m *Monitor) dailyPnL(ctx context.Context, email string, equity decimal.Decimal, now time.Time) decimal.Decimal {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	points, err := m.snapshots.GetByUserRange(opCtx, email, dayStart.UnixMilli(), now.UnixMilli())
	if err != nil {
		m.logger.Warnw("daily pnl lookup failed", "user_email", email, "error", err)
		return decimal.Zero
	}
	if len(points) == 0 {
		return decimal.Zero
	}

	return equity.Sub(points[0].Equity)
}

func (m *Monitor) markError(ctx context.Context, email string) {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if err := m.states.MarkError(opCtx, email, m.now().UTC()); err != nil {
		m.logger.Errorw("trading state error marker failed",
			"user_email", email,
			"error", err,
		)
	}
}

// tokenSuffix returns the last 4 characters of token for logging. Full
// tokens never appear in logs.
func tokenSuffix(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "..." + token[len(token)-4:]
}
