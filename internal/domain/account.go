package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChallengeStatus is the terminal outcome of an evaluation.
// A nil *ChallengeStatus on Account means the account is still under evaluation.
type ChallengeStatus string

const (
	ChallengePassed   ChallengeStatus = "passed"
	ChallengeBreached ChallengeStatus = "breached"
)

// Valid reports whether s is a known terminal status.
func (s ChallengeStatus) Valid() bool {
	return s == ChallengePassed || s == ChallengeBreached
}

// Account represents one user's challenge configuration.
// Corresponds to user_accounts table in PostgreSQL.
type Account struct {
	UserEmail        string           // PRIMARY KEY
	BrokerType       string           // e.g. "deriv"
	BrokerToken      string           // broker API token, never logged in full
	StartBalance     decimal.Decimal  // equity at evaluation start
	ProfitTarget     decimal.Decimal  // absolute profit required to pass
	MaxDrawdownLimit decimal.Decimal  // absolute loss allowed before breach
	ChallengeStatus  *ChallengeStatus // nil while under evaluation; terminal once set
	IsActive         bool             // onboarded and eligible for broker sync
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Decided reports whether the account has a terminal challenge status.
func (a *Account) Decided() bool {
	return a.ChallengeStatus != nil
}
