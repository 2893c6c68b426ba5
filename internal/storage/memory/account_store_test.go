package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
)

func testAccount(email string) *domain.Account {
	return &domain.Account{
		UserEmail:        email,
		BrokerType:       "deriv",
		BrokerToken:      "tok-" + email,
		StartBalance:     decimal.NewFromInt(10000),
		ProfitTarget:     decimal.NewFromInt(1000),
		MaxDrawdownLimit: decimal.NewFromInt(1000),
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
}

func TestAccountStore_GetUnevaluated(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	if _, err := store.GetUnevaluated(ctx, "missing@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing account: got %v, want ErrNotFound", err)
	}

	if err := store.Upsert(ctx, testAccount("trader@example.com")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	a, err := store.GetUnevaluated(ctx, "trader@example.com")
	if err != nil {
		t.Fatalf("get unevaluated: %v", err)
	}
	if a.UserEmail != "trader@example.com" || a.ChallengeStatus != nil {
		t.Errorf("unexpected account: %+v", a)
	}

	if err := store.SetChallengeStatus(ctx, "trader@example.com", domain.ChallengePassed, time.Now().UTC()); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, err := store.GetUnevaluated(ctx, "trader@example.com"); !errors.Is(err, storage.ErrAlreadyDecided) {
		t.Errorf("decided account: got %v, want ErrAlreadyDecided", err)
	}
}

func TestAccountStore_SetChallengeStatusConditional(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.SetChallengeStatus(ctx, "missing@example.com", domain.ChallengePassed, now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing account: got %v, want ErrNotFound", err)
	}

	if err := store.Upsert(ctx, testAccount("trader@example.com")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.SetChallengeStatus(ctx, "trader@example.com", "funded", now); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("invalid status: got %v, want ErrInvalidInput", err)
	}

	if err := store.SetChallengeStatus(ctx, "trader@example.com", domain.ChallengePassed, now); err != nil {
		t.Fatalf("first set: %v", err)
	}

	// A second decision must lose the conditional write.
	err := store.SetChallengeStatus(ctx, "trader@example.com", domain.ChallengeBreached, now)
	if !errors.Is(err, storage.ErrAlreadyDecided) {
		t.Fatalf("second set: got %v, want ErrAlreadyDecided", err)
	}

	passed, err := store.ListByChallengeStatus(ctx, domain.ChallengePassed)
	if err != nil {
		t.Fatalf("list passed: %v", err)
	}
	if len(passed) != 1 {
		t.Errorf("passed accounts = %d, want 1", len(passed))
	}
	breached, err := store.ListByChallengeStatus(ctx, domain.ChallengeBreached)
	if err != nil {
		t.Fatalf("list breached: %v", err)
	}
	if len(breached) != 0 {
		t.Errorf("first decision was overwritten: %+v", breached)
	}
}

func TestAccountStore_UpsertPreservesDecision(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, testAccount("trader@example.com")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.SetChallengeStatus(ctx, "trader@example.com", domain.ChallengeBreached, time.Now().UTC()); err != nil {
		t.Fatalf("set status: %v", err)
	}

	// Re-onboarding the same account must not clear the terminal status.
	if err := store.Upsert(ctx, testAccount("trader@example.com")); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if _, err := store.GetUnevaluated(ctx, "trader@example.com"); !errors.Is(err, storage.ErrAlreadyDecided) {
		t.Errorf("got %v, want ErrAlreadyDecided after re-upsert", err)
	}
}

func TestAccountStore_ListActive(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	active := testAccount("b@example.com")
	if err := store.Upsert(ctx, active); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	inactive := testAccount("a@example.com")
	inactive.IsActive = false
	if err := store.Upsert(ctx, inactive); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tokenless := testAccount("c@example.com")
	tokenless.BrokerToken = ""
	if err := store.Upsert(ctx, tokenless); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	result, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(result) != 1 || result[0].UserEmail != "b@example.com" {
		t.Errorf("unexpected active accounts: %+v", result)
	}
}

func TestAccountStore_SetChallengeParams(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	a := testAccount("trader@example.com")
	a.StartBalance = decimal.Zero
	a.ProfitTarget = decimal.Zero
	a.MaxDrawdownLimit = decimal.Zero
	if err := store.Upsert(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	err := store.SetChallengeParams(ctx, "trader@example.com",
		decimal.NewFromInt(5000), decimal.NewFromInt(500), decimal.NewFromInt(500), time.Now().UTC())
	if err != nil {
		t.Fatalf("set params: %v", err)
	}

	got, err := store.GetUnevaluated(ctx, "trader@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.StartBalance.Equal(decimal.NewFromInt(5000)) ||
		!got.ProfitTarget.Equal(decimal.NewFromInt(500)) ||
		!got.MaxDrawdownLimit.Equal(decimal.NewFromInt(500)) {
		t.Errorf("params not applied: %+v", got)
	}
}

func TestAccountStore_CopySemantics(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, testAccount("trader@example.com")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	a, err := store.GetUnevaluated(ctx, "trader@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	a.StartBalance = decimal.NewFromInt(1)

	again, err := store.GetUnevaluated(ctx, "trader@example.com")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if !again.StartBalance.Equal(decimal.NewFromInt(10000)) {
		t.Error("mutation of returned account leaked into the store")
	}
}
