package rpc

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultcore/core"
	"vaultcore/core/state"
	"vaultcore/crypto"
	"vaultcore/storage"
)

const testAuthToken = "test-token"

type testEnv struct {
	server *Server
	node   *core.Node
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(AuthTokenEnv, testAuthToken)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node := core.NewNode(storage.NewMemDB(), core.NodeOptions{Logger: logger})
	server := NewServer(node, ServerOptions{Logger: logger})
	return &testEnv{server: server, node: node, token: testAuthToken}
}

func (env *testEnv) fund(t *testing.T, addr crypto.Address, amount uint64) {
	t.Helper()
	if _, err := env.node.ApplyGenesis([]state.GenesisAlloc{{Address: addr, Amount: amount}}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
}

func (env *testEnv) newRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	return req
}

func marshalParam(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal param: %v", err)
	}
	return raw
}

func decodeRPCResponse(t *testing.T, rec *httptest.ResponseRecorder) (json.RawMessage, *RPCError) {
	t.Helper()
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Result, resp.Error
}

func signDigest(t *testing.T, key *crypto.PrivateKey, digest []byte) string {
	t.Helper()
	sig, err := ethcrypto.Sign(digest, key.PrivateKey)
	if err != nil {
		t.Fatalf("sign digest: %v", err)
	}
	return "0x" + hex.EncodeToString(sig)
}

func generateKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}
