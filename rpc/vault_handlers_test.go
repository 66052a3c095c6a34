package rpc

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"vaultcore/native/vault"
)

func TestHandleVaultDepositLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key := generateKey(t)
	user := key.PubKey().Address().String()
	env.fund(t, key.PubKey().Address(), 10_000_000)

	initParams := vaultInitializeDepositParams{Caller: user, Nonce: 1}
	initParams.Signature = signDigest(t, key, initializeDepositDigest(user, initParams.Nonce))
	initReq := &RPCRequest{ID: 1, Params: []json.RawMessage{marshalParam(t, initParams)}}
	initRec := httptest.NewRecorder()
	env.server.handleVaultInitializeDeposit(initRec, env.newRequest(), initReq)
	if _, rpcErr := decodeRPCResponse(t, initRec); rpcErr != nil {
		t.Fatalf("initialize deposit rejected: %+v", rpcErr)
	}

	depParams := vaultDepositParams{Caller: user, Owner: user, Amount: 4_000_000, Nonce: 2}
	depParams.Signature = signDigest(t, key, depositDigest(user, user, depParams.Amount, depParams.Nonce))
	depReq := &RPCRequest{ID: 2, Params: []json.RawMessage{marshalParam(t, depParams)}}
	depRec := httptest.NewRecorder()
	env.server.handleVaultDeposit(depRec, env.newRequest(), depReq)
	result, rpcErr := decodeRPCResponse(t, depRec)
	if rpcErr != nil {
		t.Fatalf("deposit rejected: %+v", rpcErr)
	}
	var dep vaultDepositResult
	if err := json.Unmarshal(result, &dep); err != nil {
		t.Fatalf("decode deposit result: %v", err)
	}
	if dep.ReceiptTokenAmount != 4_000_000 || dep.DepositedAmount != 4_000_000 {
		t.Fatalf("unexpected deposit record: %+v", dep)
	}

	wdParams := vaultWithdrawParams{Caller: user, Owner: user, ReceiptAmount: 1_000_000, Nonce: 3}
	wdParams.Signature = signDigest(t, key, withdrawDigest(user, user, wdParams.ReceiptAmount, wdParams.Nonce))
	wdReq := &RPCRequest{ID: 3, Params: []json.RawMessage{marshalParam(t, wdParams)}}
	wdRec := httptest.NewRecorder()
	env.server.handleVaultWithdraw(wdRec, env.newRequest(), wdReq)
	wdRaw, rpcErr := decodeRPCResponse(t, wdRec)
	if rpcErr != nil {
		t.Fatalf("withdraw rejected: %+v", rpcErr)
	}
	var wd vaultWithdrawResult
	if err := json.Unmarshal(wdRaw, &wd); err != nil {
		t.Fatalf("decode withdraw result: %v", err)
	}
	if wd.Payout != 1_000_000 {
		t.Fatalf("unexpected payout at par price: %d", wd.Payout)
	}
	if wd.Deposit.ReceiptTokenAmount != 3_000_000 {
		t.Fatalf("unexpected remaining receipts: %d", wd.Deposit.ReceiptTokenAmount)
	}
	// Lifetime principal is bookkeeping only and never shrinks.
	if wd.Deposit.DepositedAmount != 4_000_000 {
		t.Fatalf("withdraw must not reduce lifetime principal: %d", wd.Deposit.DepositedAmount)
	}
}

func TestHandleVaultDepositSignatureMismatch(t *testing.T) {
	env := newTestEnv(t)
	key := generateKey(t)
	otherKey := generateKey(t)
	user := key.PubKey().Address().String()
	env.fund(t, key.PubKey().Address(), 1_000_000)

	params := vaultDepositParams{Caller: user, Owner: user, Amount: 100, Nonce: 1}
	params.Signature = signDigest(t, otherKey, depositDigest(user, user, params.Amount, params.Nonce))
	req := &RPCRequest{ID: 1, Params: []json.RawMessage{marshalParam(t, params)}}
	rec := httptest.NewRecorder()
	env.server.handleVaultDeposit(rec, env.newRequest(), req)
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil {
		t.Fatal("expected signature mismatch error")
	}
	if rpcErr.Code != codeInvalidParams {
		t.Fatalf("unexpected error code: %d", rpcErr.Code)
	}
}

func TestHandleVaultDepositTamperedAmount(t *testing.T) {
	env := newTestEnv(t)
	key := generateKey(t)
	user := key.PubKey().Address().String()
	env.fund(t, key.PubKey().Address(), 1_000_000)

	// Signature covers amount 100; request claims 900.
	params := vaultDepositParams{Caller: user, Owner: user, Amount: 900, Nonce: 1}
	params.Signature = signDigest(t, key, depositDigest(user, user, 100, params.Nonce))
	req := &RPCRequest{ID: 1, Params: []json.RawMessage{marshalParam(t, params)}}
	rec := httptest.NewRecorder()
	env.server.handleVaultDeposit(rec, env.newRequest(), req)
	if _, rpcErr := decodeRPCResponse(t, rec); rpcErr == nil {
		t.Fatal("expected tampered amount to be rejected")
	}
}

func TestHandleVaultDepositNonceReplay(t *testing.T) {
	env := newTestEnv(t)
	key := generateKey(t)
	user := key.PubKey().Address().String()
	env.fund(t, key.PubKey().Address(), 1_000_000)

	initParams := vaultInitializeDepositParams{Caller: user, Nonce: 1}
	initParams.Signature = signDigest(t, key, initializeDepositDigest(user, initParams.Nonce))
	initReq := &RPCRequest{ID: 1, Params: []json.RawMessage{marshalParam(t, initParams)}}
	initRec := httptest.NewRecorder()
	env.server.handleVaultInitializeDeposit(initRec, env.newRequest(), initReq)
	if _, rpcErr := decodeRPCResponse(t, initRec); rpcErr != nil {
		t.Fatalf("initialize deposit rejected: %+v", rpcErr)
	}

	params := vaultDepositParams{Caller: user, Owner: user, Amount: 100, Nonce: 1}
	params.Signature = signDigest(t, key, depositDigest(user, user, params.Amount, params.Nonce))
	req := &RPCRequest{ID: 2, Params: []json.RawMessage{marshalParam(t, params)}}
	rec := httptest.NewRecorder()
	env.server.handleVaultDeposit(rec, env.newRequest(), req)
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil {
		t.Fatal("expected nonce replay rejection")
	}
	if rpcErr.Code != codeInvalidParams {
		t.Fatalf("unexpected error code: %d", rpcErr.Code)
	}
}

func TestHandleVaultUpdatePriceRejectsNonAdmin(t *testing.T) {
	env := newTestEnv(t)
	adminKey := generateKey(t)
	intruderKey := generateKey(t)
	admin := adminKey.PubKey().Address().String()
	env.fund(t, adminKey.PubKey().Address(), 1)

	initParams := vaultInitializeStateParams{Caller: admin, Nonce: 1}
	initParams.Signature = signDigest(t, adminKey, initializeStateDigest(admin, initParams.Nonce))
	initReq := &RPCRequest{ID: 1, Params: []json.RawMessage{marshalParam(t, initParams)}}
	initRec := httptest.NewRecorder()
	env.server.handleVaultInitializeState(initRec, env.newRequest(), initReq)
	if _, rpcErr := decodeRPCResponse(t, initRec); rpcErr != nil {
		t.Fatalf("initialize state rejected: %+v", rpcErr)
	}

	intruder := intruderKey.PubKey().Address().String()
	params := vaultUpdatePriceParams{Caller: intruder, Nonce: 1}
	params.Signature = signDigest(t, intruderKey, updatePriceDigest(intruder, params.Nonce))
	req := &RPCRequest{ID: 2, Params: []json.RawMessage{marshalParam(t, params)}}
	rec := httptest.NewRecorder()
	env.server.handleVaultUpdatePrice(rec, env.newRequest(), req)
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil {
		t.Fatal("expected non-admin update to be rejected")
	}
	if rpcErr.Code != codeUnauthorized {
		t.Fatalf("unexpected error code: %d", rpcErr.Code)
	}
}

func TestHandleVaultGetStateAndAuthority(t *testing.T) {
	env := newTestEnv(t)
	adminKey := generateKey(t)
	admin := adminKey.PubKey().Address().String()

	initParams := vaultInitializeStateParams{Caller: admin, Nonce: 1}
	initParams.Signature = signDigest(t, adminKey, initializeStateDigest(admin, initParams.Nonce))
	initReq := &RPCRequest{ID: 1, Params: []json.RawMessage{marshalParam(t, initParams)}}
	initRec := httptest.NewRecorder()
	env.server.handleVaultInitializeState(initRec, env.newRequest(), initReq)
	if _, rpcErr := decodeRPCResponse(t, initRec); rpcErr != nil {
		t.Fatalf("initialize state rejected: %+v", rpcErr)
	}

	stateReq := &RPCRequest{ID: 2}
	stateRec := httptest.NewRecorder()
	env.server.handleVaultGetState(stateRec, env.newRequest(), stateReq)
	raw, rpcErr := decodeRPCResponse(t, stateRec)
	if rpcErr != nil {
		t.Fatalf("getState rejected: %+v", rpcErr)
	}
	var st vaultStateResult
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Price != vault.PriceScale || st.Admin != admin {
		t.Fatalf("unexpected state: %+v", st)
	}

	authReq := &RPCRequest{ID: 3}
	authRec := httptest.NewRecorder()
	env.server.handleVaultGetAuthority(authRec, env.newRequest(), authReq)
	authRaw, rpcErr := decodeRPCResponse(t, authRec)
	if rpcErr != nil {
		t.Fatalf("getAuthority rejected: %+v", rpcErr)
	}
	var auth vaultAuthorityResult
	if err := json.Unmarshal(authRaw, &auth); err != nil {
		t.Fatalf("decode authority: %v", err)
	}
	if auth.Authority != env.node.Authority().String() {
		t.Fatalf("authority mismatch: %s", auth.Authority)
	}
}

func TestHandleVaultPreviewRedeem(t *testing.T) {
	env := newTestEnv(t)
	adminKey := generateKey(t)
	admin := adminKey.PubKey().Address().String()

	initParams := vaultInitializeStateParams{Caller: admin, Nonce: 1}
	initParams.Signature = signDigest(t, adminKey, initializeStateDigest(admin, initParams.Nonce))
	initReq := &RPCRequest{ID: 1, Params: []json.RawMessage{marshalParam(t, initParams)}}
	initRec := httptest.NewRecorder()
	env.server.handleVaultInitializeState(initRec, env.newRequest(), initReq)
	if _, rpcErr := decodeRPCResponse(t, initRec); rpcErr != nil {
		t.Fatalf("initialize state rejected: %+v", rpcErr)
	}

	req := &RPCRequest{ID: 2, Params: []json.RawMessage{marshalParam(t, vaultPreviewRedeemParams{Receipts: 2_500_000})}}
	rec := httptest.NewRecorder()
	env.server.handleVaultPreviewRedeem(rec, env.newRequest(), req)
	raw, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("previewRedeem rejected: %+v", rpcErr)
	}
	var preview vaultPreviewRedeemResult
	if err := json.Unmarshal(raw, &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if preview.Payout != 2_500_000 {
		t.Fatalf("unexpected payout at par: %d", preview.Payout)
	}
}
