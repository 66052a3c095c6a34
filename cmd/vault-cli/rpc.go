package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultcore/crypto"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

const (
	authNone   = ""
	authBearer = "bearer"
	authAdmin  = "admin"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// call posts one JSON-RPC request and decodes the result into out. The auth
// mode picks which credential travels in the Authorization header.
func call(method string, params interface{}, out interface{}, auth string) {
	payload := rpcRequest{JSONRPC: "2.0", Method: method, ID: 1}
	if params != nil {
		payload.Params = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		fail(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		fail(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	switch auth {
	case authBearer:
		if strings.TrimSpace(rpcAuthToken) == "" {
			fail("VAULT_RPC_TOKEN is required for this command")
		}
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	case authAdmin:
		if strings.TrimSpace(adminJWT) == "" {
			fail("VAULT_ADMIN_JWT is required for this command")
		}
		req.Header.Set("Authorization", "Bearer "+adminJWT)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		fail(fmt.Sprintf("rpc request failed: %v", err))
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		fail(fmt.Sprintf("failed to decode response (http %d): %v", resp.StatusCode, err))
	}
	if decoded.Error != nil {
		detail := ""
		if decoded.Error.Data != nil {
			detail = fmt.Sprintf(" (%v)", decoded.Error.Data)
		}
		fail(fmt.Sprintf("rpc error %d: %s%s", decoded.Error.Code, decoded.Error.Message, detail))
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			fail(fmt.Sprintf("failed to decode result: %v", err))
		}
	}
}

func decodeHex(value string) ([]byte, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	return hex.DecodeString(cleaned)
}

// nextNonce asks the node for the caller's last committed nonce and returns
// the next usable one.
func nextNonce(addr crypto.Address) uint64 {
	var result struct {
		Nonce uint64 `json:"nonce"`
	}
	call("vault_getNonce", map[string]string{"address": addr.String()}, &result, authNone)
	return result.Nonce + 1
}

// signDigest produces the 65-byte recoverable signature the server verifies
// against the declared caller.
func signDigest(key *crypto.PrivateKey, digest []byte) string {
	sig, err := ethcrypto.Sign(digest, key.PrivateKey)
	if err != nil {
		fail(fmt.Sprintf("failed to sign request: %v", err))
	}
	return "0x" + hex.EncodeToString(sig)
}

func sum256(payload string) []byte {
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

// Digest layouts mirror the server's canonical forms byte for byte; a drift
// here surfaces as a signature mismatch, never as a forged call.
func initializeStateDigest(caller string, nonce uint64) []byte {
	return sum256(fmt.Sprintf("vault_initializeState|%s|%d", strings.ToLower(caller), nonce))
}

func initializeDepositDigest(caller string, nonce uint64) []byte {
	return sum256(fmt.Sprintf("vault_initializeDeposit|%s|%d", strings.ToLower(caller), nonce))
}

func depositDigest(caller, owner string, amount, nonce uint64) []byte {
	return sum256(fmt.Sprintf("vault_deposit|%s|%s|%d|%d", strings.ToLower(caller), strings.ToLower(owner), amount, nonce))
}

func withdrawDigest(caller, owner string, receipts, nonce uint64) []byte {
	return sum256(fmt.Sprintf("vault_withdraw|%s|%s|%d|%d", strings.ToLower(caller), strings.ToLower(owner), receipts, nonce))
}

func updatePriceDigest(caller string, nonce uint64) []byte {
	return sum256(fmt.Sprintf("vault_updatePrice|%s|%d", strings.ToLower(caller), nonce))
}

func setLastUpdatedDigest(caller string, lastUpdated int64, nonce uint64) []byte {
	return sum256(fmt.Sprintf("vault_setLastUpdated|%s|%d|%d", strings.ToLower(caller), lastUpdated, nonce))
}

func transferDigest(asset, from, to string, amount, nonce uint64) []byte {
	return sum256(fmt.Sprintf("token_transfer|%s|%s|%s|%d|%d",
		strings.ToUpper(asset), strings.ToLower(from), strings.ToLower(to), amount, nonce))
}

type stateView struct {
	Price       uint64 `json:"price"`
	PriceScale  uint64 `json:"priceScale"`
	LastUpdated int64  `json:"lastUpdated"`
	Admin       string `json:"admin"`
}

type depositView struct {
	Owner              string `json:"owner"`
	DepositedAmount    uint64 `json:"depositedAmount"`
	ReceiptTokenAmount uint64 `json:"receiptTokenAmount"`
}

func printState(st stateView) {
	fmt.Printf("price:        %d (scale %d, %.6fx)\n", st.Price, st.PriceScale, float64(st.Price)/float64(st.PriceScale))
	fmt.Printf("last updated: %d (%s)\n", st.LastUpdated, time.Unix(st.LastUpdated, 0).UTC().Format(time.RFC3339))
	fmt.Printf("admin:        %s\n", st.Admin)
}

func printDeposit(dep depositView) {
	fmt.Printf("owner:            %s\n", dep.Owner)
	fmt.Printf("deposited (life): %d\n", dep.DepositedAmount)
	fmt.Printf("receipt balance:  %d\n", dep.ReceiptTokenAmount)
}

func initState(keyPath string) {
	key := loadKey(keyPath)
	caller := key.PubKey().Address().String()
	nonce := nextNonce(key.PubKey().Address())
	var result stateView
	call("vault_initializeState", map[string]interface{}{
		"caller":    caller,
		"nonce":     nonce,
		"signature": signDigest(key, initializeStateDigest(caller, nonce)),
	}, &result, authBearer)
	fmt.Println("vault state initialised")
	printState(result)
}

func initDeposit(keyPath string) {
	key := loadKey(keyPath)
	caller := key.PubKey().Address().String()
	nonce := nextNonce(key.PubKey().Address())
	var result depositView
	call("vault_initializeDeposit", map[string]interface{}{
		"caller":    caller,
		"nonce":     nonce,
		"signature": signDigest(key, initializeDepositDigest(caller, nonce)),
	}, &result, authBearer)
	fmt.Println("deposit record initialised")
	printDeposit(result)
}

func deposit(amount uint64, keyPath string) {
	key := loadKey(keyPath)
	caller := key.PubKey().Address().String()
	nonce := nextNonce(key.PubKey().Address())
	var result depositView
	call("vault_deposit", map[string]interface{}{
		"caller":    caller,
		"owner":     caller,
		"amount":    amount,
		"nonce":     nonce,
		"signature": signDigest(key, depositDigest(caller, caller, amount, nonce)),
	}, &result, authBearer)
	fmt.Printf("deposited %d base units, minted %d receipts\n", amount, amount)
	printDeposit(result)
}

func withdraw(receipts uint64, keyPath string) {
	key := loadKey(keyPath)
	caller := key.PubKey().Address().String()
	nonce := nextNonce(key.PubKey().Address())
	var result struct {
		Deposit depositView `json:"deposit"`
		Payout  uint64      `json:"payout"`
		Price   uint64      `json:"price"`
	}
	call("vault_withdraw", map[string]interface{}{
		"caller":        caller,
		"owner":         caller,
		"receiptAmount": receipts,
		"nonce":         nonce,
		"signature":     signDigest(key, withdrawDigest(caller, caller, receipts, nonce)),
	}, &result, authBearer)
	fmt.Printf("burned %d receipts at price %d, paid out %d base units\n", receipts, result.Price, result.Payout)
	printDeposit(result.Deposit)
}

func updatePrice(keyPath string) {
	key := loadKey(keyPath)
	caller := key.PubKey().Address().String()
	nonce := nextNonce(key.PubKey().Address())
	var result stateView
	call("vault_updatePrice", map[string]interface{}{
		"caller":    caller,
		"nonce":     nonce,
		"signature": signDigest(key, updatePriceDigest(caller, nonce)),
	}, &result, authAdmin)
	fmt.Println("price updated")
	printState(result)
}

func setLastUpdated(lastUpdated int64, keyPath string) {
	key := loadKey(keyPath)
	caller := key.PubKey().Address().String()
	nonce := nextNonce(key.PubKey().Address())
	var result stateView
	call("vault_setLastUpdated", map[string]interface{}{
		"caller":      caller,
		"lastUpdated": lastUpdated,
		"nonce":       nonce,
		"signature":   signDigest(key, setLastUpdatedDigest(caller, lastUpdated, nonce)),
	}, &result, authAdmin)
	fmt.Println("accrual anchor overridden")
	printState(result)
}

func transfer(asset, to string, amount uint64, keyPath string) {
	key := loadKey(keyPath)
	from := key.PubKey().Address().String()
	nonce := nextNonce(key.PubKey().Address())
	var result struct {
		Asset  string `json:"asset"`
		From   string `json:"from"`
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	call("token_transfer", map[string]interface{}{
		"asset":     asset,
		"from":      from,
		"to":        to,
		"amount":    amount,
		"nonce":     nonce,
		"signature": signDigest(key, transferDigest(asset, from, to, amount, nonce)),
	}, &result, authBearer)
	fmt.Printf("transferred %d %s from %s to %s\n", result.Amount, result.Asset, result.From, result.To)
}

func getState() {
	var result stateView
	call("vault_getState", nil, &result, authNone)
	printState(result)
}

func getDeposit(address string) {
	var result depositView
	call("vault_getDeposit", map[string]string{"owner": address}, &result, authNone)
	printDeposit(result)
}

func previewRedeem(receipts uint64) {
	var result struct {
		Receipts uint64 `json:"receipts"`
		Payout   uint64 `json:"payout"`
		Price    uint64 `json:"price"`
	}
	call("vault_previewRedeem", map[string]uint64{"receipts": receipts}, &result, authNone)
	fmt.Printf("%d receipts redeem for %d base units at price %d\n", result.Receipts, result.Payout, result.Price)
}

func getBalance(asset, address string) {
	var result struct {
		Asset   string `json:"asset"`
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
		Nonce   uint64 `json:"nonce"`
	}
	call("token_getBalance", map[string]string{"asset": asset, "address": address}, &result, authNone)
	fmt.Printf("%s balance of %s: %d (nonce %d)\n", result.Asset, result.Address, result.Balance, result.Nonce)
}

func getSupply(asset string) {
	var result struct {
		Asset  string `json:"asset"`
		Supply uint64 `json:"supply"`
	}
	call("token_getSupply", map[string]string{"asset": asset}, &result, authNone)
	fmt.Printf("%s outstanding supply: %d\n", result.Asset, result.Supply)
}

func getAuthority() {
	var result struct {
		Authority string `json:"authority"`
		Asset     string `json:"asset"`
	}
	call("vault_getAuthority", nil, &result, authNone)
	fmt.Printf("custody authority (%s): %s\n", result.Asset, result.Authority)
}
