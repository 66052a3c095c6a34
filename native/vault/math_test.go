package vault

import (
	"errors"
	"math"
	"testing"
)

func TestGrowVectors(t *testing.T) {
	cases := []struct {
		name    string
		price   FixedPointPrice
		elapsed int64
		want    FixedPointPrice
	}{
		{"zero elapsed", 1_000_000, 0, 1_000_000},
		{"one second truncates", 1_000_000, 1, 1_000_000},
		{"one hour truncates", 1_000_000, 3_600, 1_000_005},
		{"one day", 1_000_000, 86_400, 1_000_136},
		{"one year is exactly five percent", 1_000_000, int64(SecondsPerYear), 1_050_000},
		{"two years simple", 1_000_000, 2 * int64(SecondsPerYear), 1_100_000},
		{"grown base accrues on itself", 1_050_000, int64(SecondsPerYear), 1_102_500},
		{"half year", 1_000_000, int64(SecondsPerYear) / 2, 1_025_000},
	}
	for _, tc := range cases {
		got, err := tc.price.Grow(tc.elapsed)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestGrowSplitWindowsUnderApproximateCompounding(t *testing.T) {
	// Each call grows from the then-current price, so split windows accrue
	// at least as much as a single call over the union and at most true
	// period compounding.
	half, err := FixedPointPrice(1_000_000).Grow(int64(SecondsPerYear) / 2)
	if err != nil {
		t.Fatalf("first half: %v", err)
	}
	full, err := half.Grow(int64(SecondsPerYear) / 2)
	if err != nil {
		t.Fatalf("second half: %v", err)
	}
	oneShot, err := FixedPointPrice(1_000_000).Grow(int64(SecondsPerYear))
	if err != nil {
		t.Fatalf("one shot: %v", err)
	}
	if full < oneShot {
		t.Fatalf("split windows must not accrue less than one shot: %d < %d", full, oneShot)
	}
	compounded := FixedPointPrice(1_050_625)
	if full > compounded {
		t.Fatalf("split windows must not exceed true compounding: %d > %d", full, compounded)
	}
}

func TestGrowNegativeElapsed(t *testing.T) {
	if _, err := FixedPointPrice(1_000_000).Grow(-1); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected ErrArithmeticUnderflow, got %v", err)
	}
}

func TestGrowOverflowFailsClosed(t *testing.T) {
	if _, err := FixedPointPrice(math.MaxUint64).Grow(int64(SecondsPerYear)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestRedeemVectors(t *testing.T) {
	cases := []struct {
		name     string
		price    FixedPointPrice
		receipts uint64
		want     uint64
	}{
		{"par", 1_000_000, 5_000_000, 5_000_000},
		{"five percent", 1_050_000, 4_999_000, 5_248_950},
		{"floor bias", 1_050_000, 3, 3},
		{"floor bias fractional", 1_333_333, 1, 1},
		{"zero receipts", 1_050_000, 0, 0},
	}
	for _, tc := range cases {
		got, err := tc.price.Redeem(tc.receipts)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestRedeemNeverRoundsUp(t *testing.T) {
	// 7 receipts at 1.000001 is worth 7.000007; the payout must floor to 7.
	got, err := FixedPointPrice(1_000_001).Redeem(7)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got != 7 {
		t.Fatalf("payout must truncate toward zero: got %d", got)
	}
}

func TestRedeemOverflowFailsClosed(t *testing.T) {
	if _, err := FixedPointPrice(2_000_000).Redeem(math.MaxUint64); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestCheckedHelpers(t *testing.T) {
	if _, err := addChecked(math.MaxUint64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
	if _, err := subChecked(3, 4); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected ErrArithmeticUnderflow, got %v", err)
	}
	sum, err := addChecked(40, 2)
	if err != nil || sum != 42 {
		t.Fatalf("unexpected checked add result: %d %v", sum, err)
	}
}
