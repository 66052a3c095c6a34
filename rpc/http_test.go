package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"vaultcore/core"
	"vaultcore/native/token"
	"vaultcore/native/vault"
)

func postRPC(t *testing.T, env *testEnv, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)
	return rec
}

func authHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func TestHandleRejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	rec := postRPC(t, env, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeInvalidRequest {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
}

func TestHandleRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	rec := postRPC(t, env, "{not json", nil)
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeParseError {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
}

func TestHandleRejectsWrongVersion(t *testing.T) {
	env := newTestEnv(t)
	rec := postRPC(t, env, `{"jsonrpc":"1.0","method":"vault_getState","id":1}`, nil)
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeInvalidRequest {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
}

func TestHandleRejectsUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	rec := postRPC(t, env, `{"jsonrpc":"2.0","method":"vault_obliterate","id":1}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeMethodNotFound {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
}

func TestHandleRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t)
	env.server.maxRequestBytes = 128

	padding := bytes.Repeat([]byte("a"), 512)
	body := `{"jsonrpc":"2.0","method":"vault_getState","id":1,"params":["` + string(padding) + `"]}`
	rec := postRPC(t, env, body, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestHandleMutationRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)
	body := `{"jsonrpc":"2.0","method":"vault_deposit","id":1,"params":[{}]}`

	rec := postRPC(t, env, body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status without token: %d", rec.Code)
	}
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}

	rec = postRPC(t, env, body, authHeader("wrong-token"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status with bad token: %d", rec.Code)
	}
}

func TestHandleQueriesNeedNoToken(t *testing.T) {
	env := newTestEnv(t)
	// Uninitialised vault: the method is reachable, the engine declines.
	rec := postRPC(t, env, `{"jsonrpc":"2.0","method":"vault_getState","id":1}`, nil)
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil {
		t.Fatal("expected engine rejection for uninitialised vault")
	}
	if rpcErr.Code == codeUnauthorized {
		t.Fatalf("query must not demand auth: %+v", rpcErr)
	}
}

func TestHandleRateLimitsMutations(t *testing.T) {
	env := newTestEnv(t)
	env.server.limits = newRequestLimiter(1, 1)

	body := `{"jsonrpc":"2.0","method":"vault_deposit","id":1,"params":[{}]}`
	first := postRPC(t, env, body, authHeader(testAuthToken))
	if first.Code == http.StatusTooManyRequests {
		t.Fatal("first request must pass the limiter")
	}
	second := postRPC(t, env, body, authHeader(testAuthToken))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", second.Code)
	}
	_, rpcErr := decodeRPCResponse(t, second)
	if rpcErr == nil || rpcErr.Code != codeRateLimited {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
}

func signAdminJWT(t *testing.T, secret, scope string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return token
}

func TestHandleAdminMethodsRequireJWTScope(t *testing.T) {
	const secret = "admin-test-secret"
	t.Setenv(JWTSecretEnv, secret)
	env := newTestEnv(t)

	body := `{"jsonrpc":"2.0","method":"vault_updatePrice","id":1,"params":[{}]}`

	// Static bearer token is not an admin credential.
	rec := postRPC(t, env, body, authHeader(testAuthToken))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("static token accepted for admin method: %d", rec.Code)
	}

	// JWT without the scope is refused.
	rec = postRPC(t, env, body, authHeader(signAdminJWT(t, secret, "vault.read")))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("scopeless JWT accepted: %d", rec.Code)
	}
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Message != "insufficient scope" {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}

	// JWT signed with the wrong key is refused.
	rec = postRPC(t, env, body, authHeader(signAdminJWT(t, "other-secret", adminScope)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged JWT accepted: %d", rec.Code)
	}

	// The scoped JWT clears auth; the handler then rejects the empty params.
	rec = postRPC(t, env, body, authHeader(signAdminJWT(t, secret, adminScope)))
	_, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr == nil {
		t.Fatal("expected parameter validation error")
	}
	if rpcErr.Code == codeUnauthorized {
		t.Fatalf("scoped JWT rejected: %+v", rpcErr)
	}
}

func TestWriteNodeErrorCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		status int
	}{
		{"halted", core.ErrHalted, codeNodeHalted, http.StatusServiceUnavailable},
		{"unauthorized", vault.ErrUnauthorized, codeUnauthorized, http.StatusUnauthorized},
		{"backdate disabled", vault.ErrBackdateDisabled, codeUnauthorized, http.StatusUnauthorized},
		{"authority mismatch", token.ErrAuthorityMismatch, codeUnauthorized, http.StatusUnauthorized},
		{"not initialized", vault.ErrNotInitialized, codeStateConflict, http.StatusConflict},
		{"already initialized", vault.ErrAlreadyInitialized, codeStateConflict, http.StatusConflict},
		{"insufficient funds", vault.ErrInsufficientFunds, codeInsufficient, http.StatusBadRequest},
		{"custody shortfall", vault.ErrCustodyShortfall, codeInsufficient, http.StatusBadRequest},
		{"insufficient balance", token.ErrInsufficientBalance, codeInsufficient, http.StatusBadRequest},
		{"zero amount", vault.ErrZeroAmount, codeInvalidParams, http.StatusBadRequest},
		{"constraint violation", vault.ErrConstraintViolation, codeInvalidParams, http.StatusBadRequest},
		{"overflow", vault.ErrArithmeticOverflow, codeInvalidParams, http.StatusBadRequest},
		{"unknown asset", token.ErrUnknownAsset, codeInvalidParams, http.StatusBadRequest},
		{"unclassified", errors.New("disk on fire"), codeServerError, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeNodeError(rec, 1, tc.err)
			if rec.Code != tc.status {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			_, rpcErr := decodeRPCResponse(t, rec)
			if rpcErr == nil || rpcErr.Code != tc.code {
				t.Fatalf("unexpected error: %+v", rpcErr)
			}
		})
	}
}

func TestRouterServesHealthAndRPC(t *testing.T) {
	env := newTestEnv(t)
	router := env.server.Router()

	healthReq := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	healthRec := httptest.NewRecorder()
	router.ServeHTTP(healthRec, healthReq)
	if healthRec.Code != http.StatusOK {
		t.Fatalf("unexpected health status: %d", healthRec.Code)
	}
	if healthRec.Body.String() != "ok" {
		t.Fatalf("unexpected health body: %q", healthRec.Body.String())
	}

	rpcReq := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","method":"vault_getAuthority","id":7}`))
	rpcRec := httptest.NewRecorder()
	router.ServeHTTP(rpcRec, rpcReq)
	result, rpcErr := decodeRPCResponse(t, rpcRec)
	if rpcErr != nil {
		t.Fatalf("getAuthority rejected: %+v", rpcErr)
	}
	var auth vaultAuthorityResult
	if err := json.Unmarshal(result, &auth); err != nil {
		t.Fatalf("decode authority: %v", err)
	}
	if auth.Authority != env.node.Authority().String() {
		t.Fatalf("authority mismatch: %s", auth.Authority)
	}

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	router.ServeHTTP(metricsRec, metricsReq)
	if metricsRec.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status: %d", metricsRec.Code)
	}
}

func TestClientSourcePrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if source := clientSource(req); source != "203.0.113.9" {
		t.Fatalf("unexpected source: %q", source)
	}

	bare := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	bare.RemoteAddr = "192.0.2.7:9999"
	if source := clientSource(bare); source != "192.0.2.7" {
		t.Fatalf("unexpected source: %q", source)
	}
}
