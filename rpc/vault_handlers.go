package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultcore/crypto"
	"vaultcore/native/token"
	"vaultcore/native/vault"
)

type vaultInitializeStateParams struct {
	Caller    string `json:"caller"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type vaultInitializeDepositParams struct {
	Caller    string `json:"caller"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type vaultDepositParams struct {
	Caller    string `json:"caller"`
	Owner     string `json:"owner"`
	Amount    uint64 `json:"amount"`
	Authority string `json:"authority,omitempty"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type vaultWithdrawParams struct {
	Caller        string `json:"caller"`
	Owner         string `json:"owner"`
	ReceiptAmount uint64 `json:"receiptAmount"`
	Authority     string `json:"authority,omitempty"`
	Nonce         uint64 `json:"nonce"`
	Signature     string `json:"signature"`
}

type vaultUpdatePriceParams struct {
	Caller    string `json:"caller"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type vaultSetLastUpdatedParams struct {
	Caller      string `json:"caller"`
	LastUpdated int64  `json:"lastUpdated"`
	Nonce       uint64 `json:"nonce"`
	Signature   string `json:"signature"`
}

type vaultGetDepositParams struct {
	Owner string `json:"owner"`
}

type vaultPreviewRedeemParams struct {
	Receipts uint64 `json:"receipts"`
}

type vaultStateResult struct {
	Price       uint64 `json:"price"`
	PriceScale  uint64 `json:"priceScale"`
	LastUpdated int64  `json:"lastUpdated"`
	Admin       string `json:"admin"`
}

type vaultDepositResult struct {
	Owner              string `json:"owner"`
	DepositedAmount    uint64 `json:"depositedAmount"`
	ReceiptTokenAmount uint64 `json:"receiptTokenAmount"`
}

type vaultWithdrawResult struct {
	Deposit vaultDepositResult `json:"deposit"`
	Payout  uint64             `json:"payout"`
	Price   uint64             `json:"price"`
}

type vaultPreviewRedeemResult struct {
	Receipts uint64 `json:"receipts"`
	Payout   uint64 `json:"payout"`
	Price    uint64 `json:"price"`
}

type vaultAuthorityResult struct {
	Authority string `json:"authority"`
	Asset     string `json:"asset"`
}

func stateResult(st *vault.VaultState) vaultStateResult {
	return vaultStateResult{
		Price:       uint64(st.Price),
		PriceScale:  vault.PriceScale,
		LastUpdated: st.LastUpdated,
		Admin:       st.Admin.String(),
	}
}

func depositResult(dep *vault.VaultDeposit) vaultDepositResult {
	return vaultDepositResult{
		Owner:              dep.Owner.String(),
		DepositedAmount:    dep.DepositedAmount,
		ReceiptTokenAmount: dep.ReceiptTokenAmount,
	}
}

func initializeStateDigest(caller string, nonce uint64) []byte {
	payload := fmt.Sprintf("vault_initializeState|%s|%d", strings.ToLower(strings.TrimSpace(caller)), nonce)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

func initializeDepositDigest(caller string, nonce uint64) []byte {
	payload := fmt.Sprintf("vault_initializeDeposit|%s|%d", strings.ToLower(strings.TrimSpace(caller)), nonce)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

func depositDigest(caller, owner string, amount, nonce uint64) []byte {
	payload := fmt.Sprintf("vault_deposit|%s|%s|%d|%d", strings.ToLower(strings.TrimSpace(caller)), strings.ToLower(strings.TrimSpace(owner)), amount, nonce)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

func withdrawDigest(caller, owner string, receipts, nonce uint64) []byte {
	payload := fmt.Sprintf("vault_withdraw|%s|%s|%d|%d", strings.ToLower(strings.TrimSpace(caller)), strings.ToLower(strings.TrimSpace(owner)), receipts, nonce)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

func updatePriceDigest(caller string, nonce uint64) []byte {
	payload := fmt.Sprintf("vault_updatePrice|%s|%d", strings.ToLower(strings.TrimSpace(caller)), nonce)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

func setLastUpdatedDigest(caller string, lastUpdated int64, nonce uint64) []byte {
	payload := fmt.Sprintf("vault_setLastUpdated|%s|%d|%d", strings.ToLower(strings.TrimSpace(caller)), lastUpdated, nonce)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

func decodeHexBytes(value string) ([]byte, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if len(cleaned)%2 == 1 {
		cleaned = "0" + cleaned
	}
	if cleaned == "" {
		return nil, fmt.Errorf("hex value required")
	}
	return hex.DecodeString(cleaned)
}

func decodeBech32(value string) (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(value))
}

// verifyCallerSignature recovers the secp256k1 signer of digest and demands
// it matches the declared caller.
func verifyCallerSignature(digest []byte, signature string, caller crypto.Address) *RPCError {
	sig, err := decodeHexBytes(signature)
	if err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid signature", Data: err.Error()}
	}
	if len(sig) != 65 {
		return &RPCError{Code: codeInvalidParams, Message: "signature must be 65 bytes"}
	}
	pubKey, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid signature", Data: err.Error()}
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	if !strings.EqualFold(recovered.Hex()[2:], hex.EncodeToString(caller.Bytes())) {
		return &RPCError{Code: codeInvalidParams, Message: "signature does not match caller"}
	}
	return nil
}

// resolveAuthority decodes an explicitly pinned authority or falls back to
// the node's derived one. Pinning lets clients fail fast when pointed at the
// wrong deployment.
func (s *Server) resolveAuthority(value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return s.node.Authority(), nil
	}
	return decodeBech32(value)
}

func (s *Server) handleVaultInitializeState(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "initializeState requires parameter object", nil)
		return
	}
	var params vaultInitializeStateParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Caller == "" || params.Signature == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller and signature are required", nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if sigErr := verifyCallerSignature(initializeStateDigest(params.Caller, params.Nonce), params.Signature, caller); sigErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, sigErr.Code, sigErr.Message, sigErr.Data)
		return
	}
	st, err := s.node.InitializeVaultState(vault.InitializeVaultStateRequest{Caller: caller}, params.Nonce)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stateResult(st))
}

func (s *Server) handleVaultInitializeDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "initializeDeposit requires parameter object", nil)
		return
	}
	var params vaultInitializeDepositParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Caller == "" || params.Signature == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller and signature are required", nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if sigErr := verifyCallerSignature(initializeDepositDigest(params.Caller, params.Nonce), params.Signature, caller); sigErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, sigErr.Code, sigErr.Message, sigErr.Data)
		return
	}
	dep, err := s.node.InitializeDeposit(vault.InitializeDepositRequest{Caller: caller}, params.Nonce)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, depositResult(dep))
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "deposit requires parameter object", nil)
		return
	}
	var params vaultDepositParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Caller == "" || params.Owner == "" || params.Signature == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller, owner and signature are required", nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	owner, err := decodeBech32(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	authority, err := s.resolveAuthority(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority", err.Error())
		return
	}
	if sigErr := verifyCallerSignature(depositDigest(params.Caller, params.Owner, params.Amount, params.Nonce), params.Signature, caller); sigErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, sigErr.Code, sigErr.Message, sigErr.Data)
		return
	}
	dep, err := s.node.Deposit(vault.DepositRequest{
		Caller:    caller,
		Owner:     owner,
		Amount:    params.Amount,
		Authority: authority,
	}, params.Nonce)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, depositResult(dep))
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "withdraw requires parameter object", nil)
		return
	}
	var params vaultWithdrawParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Caller == "" || params.Owner == "" || params.Signature == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller, owner and signature are required", nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	owner, err := decodeBech32(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	authority, err := s.resolveAuthority(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority", err.Error())
		return
	}
	if sigErr := verifyCallerSignature(withdrawDigest(params.Caller, params.Owner, params.ReceiptAmount, params.Nonce), params.Signature, caller); sigErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, sigErr.Code, sigErr.Message, sigErr.Data)
		return
	}
	res, err := s.node.Withdraw(vault.WithdrawRequest{
		Caller:        caller,
		Owner:         owner,
		ReceiptAmount: params.ReceiptAmount,
		Authority:     authority,
	}, params.Nonce)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultWithdrawResult{
		Deposit: depositResult(res.Deposit),
		Payout:  res.Payout,
		Price:   uint64(res.Price),
	})
}

func (s *Server) handleVaultUpdatePrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "updatePrice requires parameter object", nil)
		return
	}
	var params vaultUpdatePriceParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Caller == "" || params.Signature == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller and signature are required", nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if sigErr := verifyCallerSignature(updatePriceDigest(params.Caller, params.Nonce), params.Signature, caller); sigErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, sigErr.Code, sigErr.Message, sigErr.Data)
		return
	}
	st, err := s.node.UpdatePrice(vault.UpdatePriceRequest{Caller: caller}, params.Nonce)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stateResult(st))
}

func (s *Server) handleVaultSetLastUpdated(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "setLastUpdated requires parameter object", nil)
		return
	}
	var params vaultSetLastUpdatedParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Caller == "" || params.Signature == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller and signature are required", nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if sigErr := verifyCallerSignature(setLastUpdatedDigest(params.Caller, params.LastUpdated, params.Nonce), params.Signature, caller); sigErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, sigErr.Code, sigErr.Message, sigErr.Data)
		return
	}
	st, err := s.node.SetLastUpdated(vault.SetLastUpdatedRequest{Caller: caller, LastUpdated: params.LastUpdated}, params.Nonce)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stateResult(st))
}

func (s *Server) handleVaultGetState(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	st, err := s.node.VaultState()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stateResult(st))
}

func (s *Server) handleVaultGetDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "getDeposit requires parameter object", nil)
		return
	}
	var params vaultGetDepositParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Owner == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner is required", nil)
		return
	}
	owner, err := decodeBech32(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	dep, err := s.node.VaultDeposit(owner)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, depositResult(dep))
}

func (s *Server) handleVaultPreviewRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "previewRedeem requires parameter object", nil)
		return
	}
	var params vaultPreviewRedeemParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	payout, err := s.node.PreviewRedeem(params.Receipts)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	st, err := s.node.VaultState()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultPreviewRedeemResult{
		Receipts: params.Receipts,
		Payout:   payout,
		Price:    uint64(st.Price),
	})
}

type vaultGetNonceParams struct {
	Address string `json:"address"`
}

type vaultGetNonceResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

// handleVaultGetNonce reports the caller's last committed nonce so signing
// clients can pick the next one without local bookkeeping.
func (s *Server) handleVaultGetNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "getNonce requires parameter object", nil)
		return
	}
	var params vaultGetNonceParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	nonce, err := s.node.AccountNonce(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultGetNonceResult{Address: addr.String(), Nonce: nonce})
}

func (s *Server) handleVaultGetAuthority(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, vaultAuthorityResult{
		Authority: s.node.Authority().String(),
		Asset:     token.BaseSymbol,
	})
}
