package events

import (
	"strconv"

	"vaultcore/crypto"
)

const (
	// TypeVaultStateInitialized is emitted once per deployment when the
	// accounting singleton is created.
	TypeVaultStateInitialized = "vault.state_initialized"
	// TypeVaultDepositInitialized is emitted when an owner's ledger record
	// is created.
	TypeVaultDepositInitialized = "vault.deposit_initialized"
	// TypeVaultDeposited is emitted after principal lands in custody and
	// receipts are minted.
	TypeVaultDeposited = "vault.deposited"
	// TypeVaultWithdrawn is emitted after receipts are burned and the payout
	// leaves custody.
	TypeVaultWithdrawn = "vault.withdrawn"
	// TypeVaultPriceUpdated is emitted by the admin-triggered growth step.
	TypeVaultPriceUpdated = "vault.price_updated"
	// TypeVaultLastUpdatedOverridden is emitted by the development-only
	// timestamp override.
	TypeVaultLastUpdatedOverridden = "vault.last_updated_overridden"
)

type VaultStateInitialized struct {
	Admin       crypto.Address
	Price       uint64
	LastUpdated int64
}

func (VaultStateInitialized) EventType() string { return TypeVaultStateInitialized }

func (e VaultStateInitialized) Event() *Envelope {
	return &Envelope{
		Type: TypeVaultStateInitialized,
		Attributes: map[string]string{
			"admin":       e.Admin.String(),
			"price":       strconv.FormatUint(e.Price, 10),
			"lastUpdated": strconv.FormatInt(e.LastUpdated, 10),
		},
	}
}

type VaultDepositInitialized struct {
	Owner crypto.Address
}

func (VaultDepositInitialized) EventType() string { return TypeVaultDepositInitialized }

func (e VaultDepositInitialized) Event() *Envelope {
	return &Envelope{
		Type: TypeVaultDepositInitialized,
		Attributes: map[string]string{
			"owner": e.Owner.String(),
		},
	}
}

type VaultDeposited struct {
	Owner          crypto.Address
	Amount         uint64
	Minted         uint64
	LifetimeTotal  uint64
	ReceiptBalance uint64
}

func (VaultDeposited) EventType() string { return TypeVaultDeposited }

func (e VaultDeposited) Event() *Envelope {
	return &Envelope{
		Type: TypeVaultDeposited,
		Attributes: map[string]string{
			"owner":          e.Owner.String(),
			"amount":         strconv.FormatUint(e.Amount, 10),
			"minted":         strconv.FormatUint(e.Minted, 10),
			"lifetimeTotal":  strconv.FormatUint(e.LifetimeTotal, 10),
			"receiptBalance": strconv.FormatUint(e.ReceiptBalance, 10),
		},
	}
}

type VaultWithdrawn struct {
	Owner          crypto.Address
	Receipts       uint64
	Payout         uint64
	Price          uint64
	ReceiptBalance uint64
}

func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

func (e VaultWithdrawn) Event() *Envelope {
	return &Envelope{
		Type: TypeVaultWithdrawn,
		Attributes: map[string]string{
			"owner":          e.Owner.String(),
			"receipts":       strconv.FormatUint(e.Receipts, 10),
			"payout":         strconv.FormatUint(e.Payout, 10),
			"price":          strconv.FormatUint(e.Price, 10),
			"receiptBalance": strconv.FormatUint(e.ReceiptBalance, 10),
		},
	}
}

type VaultPriceUpdated struct {
	OldPrice    uint64
	NewPrice    uint64
	Elapsed     int64
	LastUpdated int64
}

func (VaultPriceUpdated) EventType() string { return TypeVaultPriceUpdated }

func (e VaultPriceUpdated) Event() *Envelope {
	return &Envelope{
		Type: TypeVaultPriceUpdated,
		Attributes: map[string]string{
			"oldPrice":    strconv.FormatUint(e.OldPrice, 10),
			"newPrice":    strconv.FormatUint(e.NewPrice, 10),
			"elapsed":     strconv.FormatInt(e.Elapsed, 10),
			"lastUpdated": strconv.FormatInt(e.LastUpdated, 10),
		},
	}
}

type VaultLastUpdatedOverridden struct {
	Admin       crypto.Address
	LastUpdated int64
}

func (VaultLastUpdatedOverridden) EventType() string { return TypeVaultLastUpdatedOverridden }

func (e VaultLastUpdatedOverridden) Event() *Envelope {
	return &Envelope{
		Type: TypeVaultLastUpdatedOverridden,
		Attributes: map[string]string{
			"admin":       e.Admin.String(),
			"lastUpdated": strconv.FormatInt(e.LastUpdated, 10),
		},
	}
}
