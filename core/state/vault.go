package state

import (
	"fmt"
	"math"

	"vaultcore/crypto"
	"vaultcore/native/vault"
)

var (
	vaultStateKey      = []byte("vault/state")
	vaultDepositPrefix = []byte("vault/deposit/")
	depositorsKey      = []byte("vault/depositors")
)

func vaultDepositKey(owner []byte) []byte {
	buf := make([]byte, len(vaultDepositPrefix)+len(owner))
	copy(buf, vaultDepositPrefix)
	copy(buf[len(vaultDepositPrefix):], owner)
	return buf
}

// storedVaultState is the persisted layout of the accounting singleton. RLP
// has no signed integers, so the timestamp travels as uint64 and is
// range-checked on both directions.
type storedVaultState struct {
	Price       uint64
	LastUpdated uint64
	Admin       []byte
}

// storedVaultDeposit is the persisted layout of a per-owner record.
type storedVaultDeposit struct {
	Owner              []byte
	DepositedAmount    uint64
	ReceiptTokenAmount uint64
}

func uint64ToInt64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("state: timestamp %d out of range", value)
	}
	return int64(value), nil
}

// VaultState loads the accounting singleton. The boolean reports whether the
// deployment has been initialised.
func (m *Manager) VaultState() (*vault.VaultState, bool, error) {
	var stored storedVaultState
	ok, err := m.KVGet(vaultStateKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(stored.Admin) != crypto.AddressLength {
		return nil, false, fmt.Errorf("state: malformed vault admin")
	}
	lastUpdated, err := uint64ToInt64(stored.LastUpdated)
	if err != nil {
		return nil, false, err
	}
	return &vault.VaultState{
		Price:       vault.FixedPointPrice(stored.Price),
		LastUpdated: lastUpdated,
		Admin:       crypto.NewAddress(crypto.VaultPrefix, append([]byte(nil), stored.Admin...)),
	}, true, nil
}

// PutVaultState stages the accounting singleton.
func (m *Manager) PutVaultState(vs *vault.VaultState) error {
	if vs == nil {
		return fmt.Errorf("state: nil vault state")
	}
	if vs.LastUpdated < 0 {
		return fmt.Errorf("state: negative timestamp")
	}
	admin := vs.Admin.Bytes()
	if len(admin) != crypto.AddressLength {
		return fmt.Errorf("state: malformed vault admin")
	}
	stored := storedVaultState{
		Price:       uint64(vs.Price),
		LastUpdated: uint64(vs.LastUpdated),
		Admin:       append([]byte(nil), admin...),
	}
	return m.KVPut(vaultStateKey, stored)
}

// VaultDeposit loads the record owned by the given address. The boolean
// reports whether the owner ever initialised a record.
func (m *Manager) VaultDeposit(owner crypto.Address) (*vault.VaultDeposit, bool, error) {
	payload := owner.Bytes()
	if len(payload) != crypto.AddressLength {
		return nil, false, fmt.Errorf("state: malformed deposit owner")
	}
	var stored storedVaultDeposit
	ok, err := m.KVGet(vaultDepositKey(payload), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(stored.Owner) != crypto.AddressLength {
		return nil, false, fmt.Errorf("state: malformed deposit owner")
	}
	return &vault.VaultDeposit{
		Owner:              crypto.NewAddress(crypto.VaultPrefix, append([]byte(nil), stored.Owner...)),
		DepositedAmount:    stored.DepositedAmount,
		ReceiptTokenAmount: stored.ReceiptTokenAmount,
	}, true, nil
}

// PutVaultDeposit stages a deposit record and indexes its owner so auditors
// can enumerate every record without scanning raw keys.
func (m *Manager) PutVaultDeposit(dep *vault.VaultDeposit) error {
	if dep == nil {
		return fmt.Errorf("state: nil vault deposit")
	}
	owner := dep.Owner.Bytes()
	if len(owner) != crypto.AddressLength {
		return fmt.Errorf("state: malformed deposit owner")
	}
	stored := storedVaultDeposit{
		Owner:              append([]byte(nil), owner...),
		DepositedAmount:    dep.DepositedAmount,
		ReceiptTokenAmount: dep.ReceiptTokenAmount,
	}
	if err := m.KVPut(vaultDepositKey(owner), stored); err != nil {
		return err
	}
	return m.KVAppend(depositorsKey, owner)
}

// Depositors returns every owner that has initialised a record, in insertion
// order.
func (m *Manager) Depositors() ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(depositorsKey, &raw); err != nil {
		return nil, err
	}
	owners := make([]crypto.Address, 0, len(raw))
	for _, payload := range raw {
		if len(payload) != crypto.AddressLength {
			return nil, fmt.Errorf("state: malformed depositor index entry")
		}
		owners = append(owners, crypto.NewAddress(crypto.VaultPrefix, append([]byte(nil), payload...)))
	}
	return owners, nil
}
