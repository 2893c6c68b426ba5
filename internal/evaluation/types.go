package evaluation

import (
	"github.com/shopspring/decimal"

	"syntax-engine/internal/domain"
)

// Decision is the outcome of evaluating one account against its thresholds.
type Decision string

const (
	// DecisionNone means equity is within bounds; the account stays under evaluation.
	DecisionNone Decision = ""

	DecisionPassed   Decision = "passed"
	DecisionBreached Decision = "breached"
)

// ChallengeStatus maps a terminal decision to its persisted status.
// Must not be called for DecisionNone.
func (d Decision) ChallengeStatus() domain.ChallengeStatus {
	return domain.ChallengeStatus(d)
}

// Thresholds are the absolute pass/breach levels derived from an account's
// challenge configuration.
type Thresholds struct {
	// Target is start_balance + profit_target; equity at or above it passes.
	Target decimal.Decimal
	// Floor is start_balance - max_drawdown_limit; equity strictly below it breaches.
	Floor decimal.Decimal
}

// ComputeThresholds derives the absolute levels for an account.
func ComputeThresholds(a *domain.Account) Thresholds {
	return Thresholds{
		Target: a.StartBalance.Add(a.ProfitTarget),
		Floor:  a.StartBalance.Sub(a.MaxDrawdownLimit),
	}
}

// Degenerate reports whether the configuration places the drawdown floor
// above the profit target (e.g. a negative max_drawdown_limit). Such an
// account is still evaluated, with the pass check taking precedence.
func (t Thresholds) Degenerate() bool {
	return t.Floor.GreaterThan(t.Target)
}
