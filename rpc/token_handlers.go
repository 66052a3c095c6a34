package rpc

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type tokenTransferParams struct {
	Asset     string `json:"asset"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type tokenBalanceParams struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
}

type tokenSupplyParams struct {
	Asset string `json:"asset"`
}

// tokenBalanceResult carries the holder's committed nonce alongside the
// balance so signing clients can derive their next nonce in one call.
type tokenBalanceResult struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type tokenSupplyResult struct {
	Asset  string `json:"asset"`
	Supply uint64 `json:"supply"`
}

type tokenTransferResult struct {
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func transferDigest(asset, from, to string, amount, nonce uint64) []byte {
	payload := fmt.Sprintf("token_transfer|%s|%s|%s|%d|%d",
		strings.ToUpper(strings.TrimSpace(asset)),
		strings.ToLower(strings.TrimSpace(from)),
		strings.ToLower(strings.TrimSpace(to)),
		amount, nonce)
	digest := sha256.Sum256([]byte(payload))
	return digest[:]
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "transfer requires parameter object", nil)
		return
	}
	var params tokenTransferParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Asset == "" || params.From == "" || params.To == "" || params.Signature == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "asset, from, to and signature are required", nil)
		return
	}
	from, err := decodeBech32(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sender", err.Error())
		return
	}
	to, err := decodeBech32(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient", err.Error())
		return
	}
	if sigErr := verifyCallerSignature(transferDigest(params.Asset, params.From, params.To, params.Amount, params.Nonce), params.Signature, from); sigErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, sigErr.Code, sigErr.Message, sigErr.Data)
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(params.Asset))
	if err := s.node.TransferToken(asset, from, to, params.Amount, params.Nonce); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tokenTransferResult{
		Asset:  asset,
		From:   from.String(),
		To:     to.String(),
		Amount: params.Amount,
	})
}

func (s *Server) handleTokenGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "getBalance requires parameter object", nil)
		return
	}
	var params tokenBalanceParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Asset == "" || params.Address == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "asset and address are required", nil)
		return
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(params.Asset))
	balance, err := s.node.TokenBalance(asset, addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	nonce, err := s.node.AccountNonce(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tokenBalanceResult{
		Asset:   asset,
		Address: addr.String(),
		Balance: balance,
		Nonce:   nonce,
	})
}

func (s *Server) handleTokenGetSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "getSupply requires parameter object", nil)
		return
	}
	var params tokenSupplyParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	if params.Asset == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "asset is required", nil)
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(params.Asset))
	supply, err := s.node.TokenSupply(asset)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tokenSupplyResult{Asset: asset, Supply: supply})
}
