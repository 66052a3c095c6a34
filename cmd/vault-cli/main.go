package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"vaultcore/cmd/internal/passphrase"
	"vaultcore/crypto"
)

// Endpoint and credentials come from flags or the environment; the static
// bearer token gates mutations, the admin JWT gates price administration.
var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv("VAULT_RPC_TOKEN")
	adminJWT     = os.Getenv("VAULT_ADMIN_JWT")
	keystorePass = passphrase.NewSource("VAULT_KEYSTORE_PASS")
)

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("VAULT_RPC_URL")); url != "" {
		return url
	}
	return "http://localhost:8545/rpc"
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		if len(args) < 2 {
			fail("usage: vault-cli generate-key <keystore-file>")
		}
		generateKey(args[1])
	case "import-key":
		if len(args) < 3 {
			fail("usage: vault-cli import-key <hex-private-key> <keystore-file>")
		}
		importKey(args[1], args[2])
	case "show-address":
		if len(args) < 2 {
			fail("usage: vault-cli show-address <keystore-file>")
		}
		showAddress(args[1])
	case "init-state":
		if len(args) < 2 {
			fail("usage: vault-cli init-state <keystore-file>")
		}
		initState(args[1])
	case "init-deposit":
		if len(args) < 2 {
			fail("usage: vault-cli init-deposit <keystore-file>")
		}
		initDeposit(args[1])
	case "deposit":
		if len(args) < 3 {
			fail("usage: vault-cli deposit <amount> <keystore-file>")
		}
		deposit(parseAmount(args[1]), args[2])
	case "withdraw":
		if len(args) < 3 {
			fail("usage: vault-cli withdraw <receipt-amount> <keystore-file>")
		}
		withdraw(parseAmount(args[1]), args[2])
	case "update-price":
		if len(args) < 2 {
			fail("usage: vault-cli update-price <keystore-file>")
		}
		updatePrice(args[1])
	case "set-last-updated":
		if len(args) < 3 {
			fail("usage: vault-cli set-last-updated <unix-seconds> <keystore-file>")
		}
		ts, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fail("invalid timestamp: " + args[1])
		}
		setLastUpdated(ts, args[2])
	case "transfer":
		if len(args) < 5 {
			fail("usage: vault-cli transfer <asset> <to-address> <amount> <keystore-file>")
		}
		transfer(args[1], args[2], parseAmount(args[3]), args[4])
	case "state":
		getState()
	case "deposit-of":
		if len(args) < 2 {
			fail("usage: vault-cli deposit-of <address>")
		}
		getDeposit(args[1])
	case "preview":
		if len(args) < 2 {
			fail("usage: vault-cli preview <receipt-amount>")
		}
		previewRedeem(parseAmount(args[1]))
	case "balance":
		if len(args) < 3 {
			fail("usage: vault-cli balance <asset> <address>")
		}
		getBalance(args[1], args[2])
	case "supply":
		if len(args) < 2 {
			fail("usage: vault-cli supply <asset>")
		}
		getSupply(args[1])
	case "authority":
		getAuthority()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL")
			}
			i++
			rpcEndpoint = args[i]
		case strings.HasPrefix(args[i], "--rpc="):
			rpcEndpoint = strings.TrimPrefix(args[i], "--rpc=")
		default:
			out = append(out, args[i])
		}
	}
	if strings.TrimSpace(rpcEndpoint) == "" {
		return nil, fmt.Errorf("rpc endpoint must not be empty")
	}
	return out, nil
}

func parseAmount(raw string) uint64 {
	amount, err := strconv.ParseUint(strings.ReplaceAll(raw, "_", ""), 10, 64)
	if err != nil {
		fail("invalid amount: " + raw)
	}
	return amount
}

func fail(message string) {
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}

func loadKey(path string) *crypto.PrivateKey {
	pass, err := keystorePass.Get()
	if err != nil {
		fail(err.Error())
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		fail(fmt.Sprintf("failed to load keystore %s: %v", path, err))
	}
	return key
}

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fail(fmt.Sprintf("failed to generate key: %v", err))
	}
	pass, err := keystorePass.Get()
	if err != nil {
		fail(err.Error())
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		fail(fmt.Sprintf("failed to write keystore: %v", err))
	}
	fmt.Printf("new key saved to %s\naddress: %s\n", path, key.PubKey().Address().String())
}

func importKey(hexKey, path string) {
	raw, err := decodeHex(hexKey)
	if err != nil {
		fail("invalid private key hex: " + err.Error())
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		fail(fmt.Sprintf("invalid private key: %v", err))
	}
	pass, err := keystorePass.Get()
	if err != nil {
		fail(err.Error())
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		fail(fmt.Sprintf("failed to write keystore: %v", err))
	}
	fmt.Printf("key imported to %s\naddress: %s\n", path, key.PubKey().Address().String())
}

func showAddress(path string) {
	key := loadKey(path)
	fmt.Println(key.PubKey().Address().String())
}

func printUsage() {
	fmt.Println(`Usage: vault-cli [--rpc <url>] <command> [arguments]

Key management:
  generate-key <keystore-file>                create a key and save it encrypted
  import-key <hex-private-key> <keystore-file>  import a raw key
  show-address <keystore-file>                print the bech32 address

Vault operations (signed; require VAULT_RPC_TOKEN):
  init-state <keystore-file>                  create the vault singleton, caller becomes admin
  init-deposit <keystore-file>                create the caller's deposit record
  deposit <amount> <keystore-file>            move principal into custody, mint receipts 1:1
  withdraw <receipt-amount> <keystore-file>   burn receipts, redeem at the current price
  transfer <asset> <to> <amount> <keystore-file>  move VUSD or SVUSD between holders

Price administration (additionally require VAULT_ADMIN_JWT):
  update-price <keystore-file>                accrue interest up to now
  set-last-updated <unix-seconds> <keystore-file>  override the accrual anchor (dev nodes only)

Queries:
  state                                       vault price, accrual anchor, admin
  deposit-of <address>                        a holder's deposit record
  preview <receipt-amount>                    quote a redemption without executing it
  balance <asset> <address>                   token balance
  supply <asset>                              outstanding token supply
  authority                                   derived custody authority

Environment: VAULT_RPC_URL, VAULT_RPC_TOKEN, VAULT_ADMIN_JWT, VAULT_KEYSTORE_PASS`)
}
