// Package evaluation decides, for every account still under evaluation,
// whether it has passed or breached its challenge, and commits that decision
// exactly once.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/observability"
	"syntax-engine/internal/storage"
)

const defaultOpTimeout = 10 * time.Second

// Engine runs evaluation cycles over the persistent stores.
//
// Within a cycle each account is processed independently: a failure on one
// account never aborts the others. The engine is the sole writer of
// challenge_status and of the active→completed trading state transition;
// both writes are conditional at the store level, so concurrent engine
// instances cannot double-decide an account.
type Engine struct {
	accounts      storage.AccountStore
	tradingStates storage.TradingStateStore
	opTimeout     time.Duration
	logger        *zap.SugaredLogger
	now           func() time.Time
}

// Options configures an Engine.
type Options struct {
	Accounts      storage.AccountStore
	TradingStates storage.TradingStateStore

	// OpTimeout bounds every individual store operation so a stuck call
	// cannot block subsequent ticks indefinitely. Default 10s.
	OpTimeout time.Duration

	Logger *zap.SugaredLogger

	// Now overrides the clock used for updated-at timestamps. Tests only.
	Now func() time.Time
}

// NewEngine creates a new evaluation Engine.
func NewEngine(opts Options) *Engine {
	opTimeout := opts.OpTimeout
	if opTimeout == 0 {
		opTimeout = defaultOpTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		accounts:      opts.Accounts,
		tradingStates: opts.TradingStates,
		opTimeout:     opTimeout,
		logger:        logger,
		now:           now,
	}
}

// CycleResult contains counters from one evaluation cycle.
type CycleResult struct {
	CycleID  string
	Scanned  int
	Passed   int
	Breached int
	Skipped  int      // no matching unevaluated account, or lost the commit race
	Repaired int      // decided accounts whose trading state was re-marked completed
	Errors   []string // per-account errors, cycle continued past each
}

// RunCycle executes one evaluation pass over all active trading states.
// A failed listing aborts the whole cycle (nothing was processed); any
// per-account failure is recorded in the result and processing continues.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{CycleID: uuid.NewString()}

	states, err := e.listActive(ctx)
	if err != nil {
		observability.RecordEvaluationError("list_active")
		return nil, fmt.Errorf("list active trading states: %w", err)
	}

	for _, state := range states {
		result.Scanned++
		if err := e.processAccount(ctx, result, state); err != nil {
			observability.RecordEvaluationError("process_account")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", state.UserEmail, err))
			e.logger.Errorw("account evaluation failed",
				"cycle_id", result.CycleID,
				"user_email", state.UserEmail,
				"error", err,
			)
		}
	}

	observability.DefaultMetrics.AccountsScanned.Add(float64(result.Scanned))
	return result, nil
}

// processAccount evaluates a single active trading state and commits the
// decision if one is reached.
func (e *Engine) processAccount(ctx context.Context, result *CycleResult, state *domain.TradingState) error {
	account, err := e.getUnevaluated(ctx, state.UserEmail)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// No challenge configuration for this trading state; not an error.
		result.Skipped++
		return nil
	case errors.Is(err, storage.ErrAlreadyDecided):
		// Decided account paired with a still-active trading state: the
		// second write of a previous commit failed. Re-issue it.
		return e.repairPairing(ctx, result, state.UserEmail)
	case err != nil:
		return err
	}

	decision, thresholds := Evaluate(account, state.Equity)

	if thresholds.Degenerate() {
		e.logger.Warnw("degenerate challenge config: drawdown floor above profit target",
			"cycle_id", result.CycleID,
			"user_email", account.UserEmail,
			"target", thresholds.Target,
			"floor", thresholds.Floor,
		)
	}

	if decision == DecisionNone {
		return nil
	}

	return e.commitDecision(ctx, result, account, state, decision, thresholds)
}

// commitDecision performs the two ordered conditional writes. The account
// write goes first; if it fails the trading state is left untouched so the
// account remains eligible next cycle.
func (e *Engine) commitDecision(ctx context.Context, result *CycleResult, account *domain.Account, state *domain.TradingState, decision Decision, thresholds Thresholds) error {
	at := e.now().UTC()

	err := e.setChallengeStatus(ctx, account.UserEmail, decision.ChallengeStatus(), at)
	if errors.Is(err, storage.ErrAlreadyDecided) {
		// Another engine instance committed between our read and write.
		result.Skipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("set challenge status: %w", err)
	}

	switch decision {
	case DecisionPassed:
		result.Passed++
	case DecisionBreached:
		result.Breached++
	}
	observability.RecordDecision(string(decision))

	e.logger.Infow("challenge decided",
		"cycle_id", result.CycleID,
		"user_email", account.UserEmail,
		"decision", string(decision),
		"equity", state.Equity,
		"target", thresholds.Target,
		"floor", thresholds.Floor,
	)

	if err := e.markCompleted(ctx, account.UserEmail, at); err != nil && !errors.Is(err, storage.ErrAlreadyDecided) {
		// The decision itself is committed; the pairing heals via
		// repairPairing on the next cycle.
		return fmt.Errorf("mark trading state completed: %w", err)
	}
	return nil
}

// repairPairing re-marks the trading state completed for an account that is
// already decided.
func (e *Engine) repairPairing(ctx context.Context, result *CycleResult, email string) error {
	at := e.now().UTC()
	err := e.markCompleted(ctx, email, at)
	if err != nil && !errors.Is(err, storage.ErrAlreadyDecided) && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("repair pairing: %w", err)
	}

	result.Repaired++
	observability.DefaultMetrics.PairingsRepaired.Inc()
	e.logger.Warnw("repaired decided account left active",
		"cycle_id", result.CycleID,
		"user_email", email,
	)
	return nil
}

// Store access, each call bounded by the per-operation timeout.

func (e *Engine) listActive(ctx context.Context) ([]*domain.TradingState, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.tradingStates.ListActive(opCtx)
}

func (e *Engine) getUnevaluated(ctx context.Context, email string) (*domain.Account, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.accounts.GetUnevaluated(opCtx, email)
}

func (e *Engine) setChallengeStatus(ctx context.Context, email string, status domain.ChallengeStatus, at time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.accounts.SetChallengeStatus(opCtx, email, status, at)
}

func (e *Engine) markCompleted(ctx context.Context, email string, at time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.tradingStates.MarkCompleted(opCtx, email, at)
}
