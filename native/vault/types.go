package vault

import (
	"vaultcore/crypto"
)

const (
	// PriceScale is the fixed-point scale for receipt prices. A price equal
	// to PriceScale redeems one receipt token for exactly one base unit.
	PriceScale uint64 = 1_000_000
	// RateNumerator encodes the simulated 5% annual growth rate, scaled by
	// PriceScale.
	RateNumerator uint64 = 50_000
	// SecondsPerYear converts elapsed wall-clock seconds into a fraction of
	// the annual rate.
	SecondsPerYear uint64 = 31_536_000
)

// ModuleName tags vault operations in pause views, logs and metrics.
const ModuleName = "vault"

// FixedPointPrice is the redemption value of one receipt token expressed in
// base-asset units and scaled by PriceScale. Once a vault is initialised the
// price never drops below PriceScale and only grows.
type FixedPointPrice uint64

// InitialPrice is the price every vault starts at: exactly 1.0.
func InitialPrice() FixedPointPrice {
	return FixedPointPrice(PriceScale)
}

// VaultState is the accounting singleton for a deployment.
type VaultState struct {
	// Price is the current redemption price of one receipt token.
	Price FixedPointPrice
	// LastUpdated is the unix timestamp (seconds) of the most recent price
	// growth application.
	LastUpdated int64
	// Admin is the only identity allowed to trigger price updates. It is
	// fixed by the initialisation call and never rotated.
	Admin crypto.Address
}

// Clone returns a deep copy so callers can hand snapshots out without
// exposing the engine's working record.
func (vs *VaultState) Clone() *VaultState {
	if vs == nil {
		return nil
	}
	clone := *vs
	if b := vs.Admin.Bytes(); b != nil {
		clone.Admin = crypto.NewAddress(vs.Admin.Prefix(), append([]byte(nil), b...))
	}
	return &clone
}

// VaultDeposit is the per-owner ledger record.
type VaultDeposit struct {
	// Owner is fixed at initialisation. Every withdrawal is authorised
	// against this field, never against whichever accounts a request
	// happens to supply.
	Owner crypto.Address
	// DepositedAmount accumulates lifetime principal in base units. It is
	// bookkeeping only: withdrawals never reduce it and it never bounds a
	// payout.
	DepositedAmount uint64
	// ReceiptTokenAmount is the receipt balance attributed to this record,
	// minted 1:1 on deposit and burned 1:1 on withdrawal.
	ReceiptTokenAmount uint64
}

// Clone returns a deep copy of the deposit record.
func (d *VaultDeposit) Clone() *VaultDeposit {
	if d == nil {
		return nil
	}
	clone := *d
	if b := d.Owner.Bytes(); b != nil {
		clone.Owner = crypto.NewAddress(d.Owner.Prefix(), append([]byte(nil), b...))
	}
	return &clone
}
