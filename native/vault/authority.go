package vault

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultcore/crypto"
)

// custodySeedPrefix is the fixed, public seed material behind the vault's
// signing authority. The derivation takes no key material, so any observer can
// recompute the custody address and confirm that a mint or custody release was
// vault-authorised.
const custodySeedPrefix = "module/vault/custody/"

// DeriveAuthority maps an asset symbol to the canonical custody authority
// address for that asset. The derivation is pure: same seed, same address,
// on every node and in every audit.
func DeriveAuthority(asset string) crypto.Address {
	seed := custodySeedPrefix + asset
	hash := ethcrypto.Keccak256([]byte(seed))
	payload := make([]byte, crypto.AddressLength)
	copy(payload, hash[len(hash)-crypto.AddressLength:])
	return crypto.NewAddress(crypto.VaultPrefix, payload)
}
