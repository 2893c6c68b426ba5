package evaluation

import (
	"github.com/shopspring/decimal"

	"syntax-engine/internal/domain"
)

// Evaluate applies the challenge decision rules to one account's current
// equity and returns the decision together with the thresholds it was
// judged against.
//
// The checks run in a fixed order, profit first:
//
//	equity >= start_balance + profit_target      → passed
//	equity <  start_balance - max_drawdown_limit → breached
//	otherwise                                    → no decision
//
// Equality at the profit target counts as a pass; equality exactly at the
// drawdown floor is NOT a breach (only strictly below). Callers rely on this
// asymmetry for boundary cases, so it must not change.
func Evaluate(a *domain.Account, equity decimal.Decimal) (Decision, Thresholds) {
	t := ComputeThresholds(a)

	if equity.GreaterThanOrEqual(t.Target) {
		return DecisionPassed, t
	}
	if equity.LessThan(t.Floor) {
		return DecisionBreached, t
	}
	return DecisionNone, t
}
