package discounts

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestApplyToSubtotal(t *testing.T) {
	cases := []struct {
		name        string
		amount      int
		subtotal    int
		wantTotal   int
		wantApplied int
	}{
		{"regular", 50, 300, 250, 50},
		{"exact", 300, 300, 0, 300},
		{"clamped", 500, 300, 0, 300},
		{"zero subtotal", 50, 0, 0, 0},
	}
	for _, tc := range cases {
		total, applied, err := CartCoupon("SAVE", tc.amount).ApplyToSubtotal(tc.subtotal)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if total != tc.wantTotal || applied != tc.wantApplied {
			t.Fatalf("%s: expected (%d,%d), got (%d,%d)", tc.name, tc.wantTotal, tc.wantApplied, total, applied)
		}
		if tc.subtotal > 0 && tc.subtotal-applied != total {
			t.Fatalf("%s: subtotal - applied != total", tc.name)
		}
	}
}

func TestApplyToPriceRoundsHalfUp(t *testing.T) {
	cases := []struct {
		base    int
		percent string
		want    int
	}{
		{1000, "10", 900},
		{999, "50", 500},
		{1, "50", 1},
		{333, "33.33", 222},
		{1000, "0", 1000},
	}
	for _, tc := range cases {
		got, err := CatalogPercentage("p", decimal.RequireFromString(tc.percent)).ApplyToPrice(tc.base)
		if err != nil {
			t.Fatalf("base=%d percent=%s: unexpected error: %v", tc.base, tc.percent, err)
		}
		if got != tc.want {
			t.Fatalf("base=%d percent=%s: expected %d, got %d", tc.base, tc.percent, tc.want, got)
		}
	}
}

func TestApplyPathsRejectOtherKind(t *testing.T) {
	if _, _, err := CatalogPercentage("p", decimal.NewFromInt(10)).ApplyToSubtotal(100); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind from subtotal path, got %v", err)
	}
	if _, err := CartCoupon("SAVE", 10).ApplyToPrice(100); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind from price path, got %v", err)
	}
}

func TestValidatePercentBounds(t *testing.T) {
	for _, raw := range []string{"-1", "100", "150"} {
		if err := ValidatePercent(decimal.RequireFromString(raw)); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
	for _, raw := range []string{"0", "99.99"} {
		if err := ValidatePercent(decimal.RequireFromString(raw)); err != nil {
			t.Fatalf("expected %s to be accepted: %v", raw, err)
		}
	}
}
