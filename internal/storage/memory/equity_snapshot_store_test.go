package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
)

func TestEquitySnapshotStore_InsertAndRange(t *testing.T) {
	store := NewEquitySnapshotStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil snapshot: got %v, want ErrInvalidInput", err)
	}

	for _, ts := range []int64{3000, 1000, 2000} {
		err := store.Insert(ctx, &domain.EquitySnapshot{
			UserEmail:   "trader@example.com",
			TimestampMs: ts,
			Balance:     decimal.NewFromInt(10000),
			Equity:      decimal.NewFromInt(10000 + ts),
		})
		if err != nil {
			t.Fatalf("insert ts=%d: %v", ts, err)
		}
	}
	err := store.Insert(ctx, &domain.EquitySnapshot{
		UserEmail:   "other@example.com",
		TimestampMs: 1500,
		Balance:     decimal.NewFromInt(5000),
		Equity:      decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("insert other: %v", err)
	}

	// Inclusive range, sorted ascending, scoped to one user.
	got, err := store.GetByUserRange(ctx, "trader@example.com", 1000, 2000)
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("points = %d, want 2", len(got))
	}
	if got[0].TimestampMs != 1000 || got[1].TimestampMs != 2000 {
		t.Errorf("unexpected order: %d, %d", got[0].TimestampMs, got[1].TimestampMs)
	}

	empty, err := store.GetByUserRange(ctx, "nobody@example.com", 0, 5000)
	if err != nil {
		t.Fatalf("empty range query: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("points for unknown user = %d, want 0", len(empty))
	}
}
