package vault

import (
	"math"

	"github.com/holiman/uint256"
)

// Grow applies the growth formula over elapsed seconds:
//
//	increment = price * RateNumerator * elapsed / (PriceScale * SecondsPerYear)
//
// computed with 256-bit intermediates, multiplying before the single
// division. Interest is simple per call: splitting a window across several
// calls accrues slightly less than one call over the whole window. Negative
// elapsed time fails closed, zero elapsed time returns the price unchanged.
func (p FixedPointPrice) Grow(elapsed int64) (FixedPointPrice, error) {
	if elapsed < 0 {
		return 0, ErrArithmeticUnderflow
	}
	if elapsed == 0 {
		return p, nil
	}
	numer := new(uint256.Int).SetUint64(uint64(p))
	numer.Mul(numer, uint256.NewInt(RateNumerator))
	numer.Mul(numer, uint256.NewInt(uint64(elapsed)))
	denom := new(uint256.Int).Mul(uint256.NewInt(PriceScale), uint256.NewInt(SecondsPerYear))
	increment := numer.Div(numer, denom)
	if !increment.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	grown, err := addChecked(uint64(p), increment.Uint64())
	if err != nil {
		return 0, err
	}
	return FixedPointPrice(grown), nil
}

// Redeem converts a receipt amount into base units at this price, rounding
// down. Truncation always shorts the redeemer, never the vault.
func (p FixedPointPrice) Redeem(receipts uint64) (uint64, error) {
	product := new(uint256.Int).SetUint64(receipts)
	product.Mul(product, uint256.NewInt(uint64(p)))
	payout := product.Div(product, uint256.NewInt(PriceScale))
	if !payout.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return payout.Uint64(), nil
}

func addChecked(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

func subChecked(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticUnderflow
	}
	return a - b, nil
}
