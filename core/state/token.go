package state

import (
	"fmt"
	"math"

	"vaultcore/crypto"
)

var (
	balancePrefix  = []byte("token/balance/")
	supplyPrefix   = []byte("token/supply/")
	rpcNoncePrefix = []byte("rpc/nonce/")
	genesisKey     = []byte("genesis/applied")
)

func balanceKey(symbol string, addr []byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr)
	return buf
}

func supplyKey(symbol string) []byte {
	buf := make([]byte, len(supplyPrefix)+len(symbol))
	copy(buf, supplyPrefix)
	copy(buf[len(supplyPrefix):], symbol)
	return buf
}

func nonceKey(addr []byte) []byte {
	buf := make([]byte, len(rpcNoncePrefix)+len(addr))
	copy(buf, rpcNoncePrefix)
	copy(buf[len(rpcNoncePrefix):], addr)
	return buf
}

// Balance reports a holder's balance for the named asset. Token balances
// default to zero; only vault records carry initialisation semantics.
func (m *Manager) Balance(symbol string, addr crypto.Address) (uint64, error) {
	var balance uint64
	ok, err := m.KVGet(balanceKey(symbol, addr.Bytes()), &balance)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return balance, nil
}

// SetBalance stages a holder's balance for the named asset.
func (m *Manager) SetBalance(symbol string, addr crypto.Address, amount uint64) error {
	return m.KVPut(balanceKey(symbol, addr.Bytes()), amount)
}

// Supply reports the outstanding supply of the named asset.
func (m *Manager) Supply(symbol string) (uint64, error) {
	var supply uint64
	ok, err := m.KVGet(supplyKey(symbol), &supply)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return supply, nil
}

// SetSupply stages the outstanding supply of the named asset.
func (m *Manager) SetSupply(symbol string, amount uint64) error {
	return m.KVPut(supplyKey(symbol), amount)
}

// AccountNonce reports the next expected request nonce for a signer. Fresh
// accounts start at zero.
func (m *Manager) AccountNonce(addr crypto.Address) (uint64, error) {
	var nonce uint64
	ok, err := m.KVGet(nonceKey(addr.Bytes()), &nonce)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return nonce, nil
}

// SetAccountNonce stages the next expected request nonce for a signer.
func (m *Manager) SetAccountNonce(addr crypto.Address, nonce uint64) error {
	return m.KVPut(nonceKey(addr.Bytes()), nonce)
}

// GenesisAlloc seeds one balance of the base asset at first boot.
type GenesisAlloc struct {
	Address crypto.Address
	Amount  uint64
}

// GenesisApplied reports whether the one-time allocations have been written.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.KVGet(genesisKey, nil)
}

// ApplyGenesis writes the base-asset allocations and the matching supply
// total, then marks genesis done. It refuses to run twice.
func (m *Manager) ApplyGenesis(symbol string, allocs []GenesisAlloc) error {
	applied, err := m.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return fmt.Errorf("state: genesis already applied")
	}
	var total uint64
	for _, alloc := range allocs {
		existing, err := m.Balance(symbol, alloc.Address)
		if err != nil {
			return err
		}
		if alloc.Amount > math.MaxUint64-existing {
			return fmt.Errorf("state: genesis balance overflow for %s", alloc.Address.String())
		}
		if err := m.SetBalance(symbol, alloc.Address, existing+alloc.Amount); err != nil {
			return err
		}
		if alloc.Amount > math.MaxUint64-total {
			return fmt.Errorf("state: genesis supply overflow")
		}
		total += alloc.Amount
	}
	supply, err := m.Supply(symbol)
	if err != nil {
		return err
	}
	if total > math.MaxUint64-supply {
		return fmt.Errorf("state: genesis supply overflow")
	}
	if err := m.SetSupply(symbol, supply+total); err != nil {
		return err
	}
	return m.KVPut(genesisKey, true)
}
