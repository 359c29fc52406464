package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stablevault/core"
	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/integrations/indexer"
	"stablevault/native/common"
	"stablevault/storage"
)

const (
	testSecret = "rpc-test-secret"
	testIssuer = "rpc-tests"
)

type testEnv struct {
	node   *core.Node
	server *Server
	http   *httptest.Server
	hub    *Hub
	store  *indexer.Store
	sys    core.System
	owner  crypto.Address
}

func testAddress(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newTestEnv(t *testing.T, mutate func(*ServerConfig)) *testEnv {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), common.DefaultRoles())
	require.NoError(t, err)
	node.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := indexer.New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := NewHub(nil)
	node.SetEmitter(events.Multi{store, hub})

	owner := testAddress(1)
	cfg := core.DefaultSystemConfig()
	cfg.InitialPrice = big.NewInt(1_000_000)
	sys, err := node.DeploySystem(owner, cfg)
	require.NoError(t, err)

	serverCfg := ServerConfig{Auth: AuthConfig{HMACSecret: testSecret, Issuer: testIssuer}}
	if mutate != nil {
		mutate(&serverCfg)
	}
	srv, err := NewServer(node, store, hub, serverCfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{node: node, server: srv, http: ts, hub: hub, store: store, sys: sys, owner: owner}
}

func (e *testEnv) token(t *testing.T, who crypto.Address) string {
	t.Helper()
	tok, err := IssueToken(testSecret, testIssuer, who, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) call(t *testing.T, token, method string, params interface{}) (int, RPCResponse) {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return e.post(t, token, body)
}

func (e *testEnv) post(t *testing.T, token string, body []byte) (int, RPCResponse) {
	t.Helper()
	httpReq, err := http.NewRequest(http.MethodPost, e.http.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.http.Client().Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func decodeResult(t *testing.T, resp RPCResponse, dst interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestWriteRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)
	status, resp := env.call(t, "", "vault_create", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, _ = env.call(t, "", "system_addresses", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	forged, err := IssueToken("other-secret", testIssuer, testAddress(2), time.Hour)
	require.NoError(t, err)
	status, _ = env.call(t, forged, "vault_create", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	wrongIssuer, err := IssueToken(testSecret, "someone-else", testAddress(2), time.Hour)
	require.NoError(t, err)
	status, _ = env.call(t, wrongIssuer, "vault_create", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestAnonymousReads(t *testing.T) {
	env := newTestEnv(t, func(cfg *ServerConfig) { cfg.AllowAnonymousReads = true })

	status, resp := env.call(t, "", "system_addresses", nil)
	require.Equal(t, http.StatusOK, status)
	var addrs SystemAddressesResult
	decodeResult(t, resp, &addrs)
	require.Equal(t, env.sys.Vault.String(), addrs.Vault)
	require.Equal(t, env.owner.String(), addrs.Owner)

	status, _ = env.call(t, "", "vault_create", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestVaultFlowOverRPC(t *testing.T) {
	env := newTestEnv(t, nil)
	user := testAddress(2)
	ownerToken := env.token(t, env.owner)
	userToken := env.token(t, user)
	oneCollateral := "1000000000000"

	status, resp := env.call(t, ownerToken, "token_mint", map[string]string{
		"token": "collateral", "to": user.String(), "amount": oneCollateral,
	})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	status, resp = env.call(t, userToken, "token_approve", map[string]string{
		"token": "collateral", "spender": env.sys.Vault.String(), "amount": oneCollateral,
	})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)

	status, resp = env.call(t, userToken, "vault_create", nil)
	require.Equal(t, http.StatusOK, status)
	var created struct {
		ID    uint64 `json:"id"`
		Owner string `json:"owner"`
	}
	decodeResult(t, resp, &created)
	require.Zero(t, created.ID)
	require.Equal(t, user.String(), created.Owner)

	status, resp = env.call(t, userToken, "vault_deposit", map[string]interface{}{"id": 0, "amount": oneCollateral})
	require.Equal(t, http.StatusOK, status)
	var details VaultDetailsResult
	decodeResult(t, resp, &details)
	require.Equal(t, oneCollateral, details.Collateral)
	require.Equal(t, "0", details.Debt)

	status, resp = env.call(t, userToken, "vault_debtCeiling", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusOK, status)
	var ceiling struct {
		Ceiling string `json:"ceiling"`
	}
	decodeResult(t, resp, &ceiling)
	require.Equal(t, "500000", ceiling.Ceiling)

	status, resp = env.call(t, userToken, "vault_borrow", map[string]interface{}{"id": 0, "amount": "400000"})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	decodeResult(t, resp, &details)
	require.Equal(t, "400000", details.Debt)

	status, resp = env.call(t, userToken, "vault_borrow", map[string]interface{}{"id": 0, "amount": "100001"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeRejected, resp.Error.Code)

	status, resp = env.call(t, userToken, "token_balanceOf", map[string]string{"token": "stable", "owner": user.String()})
	require.Equal(t, http.StatusOK, status)
	var balance struct {
		Balance string `json:"balance"`
	}
	decodeResult(t, resp, &balance)
	require.Equal(t, "400000", balance.Balance)

	status, resp = env.call(t, userToken, "vault_payBack", map[string]interface{}{"id": 0, "amount": "999999"})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	var repaid struct {
		Repaid string `json:"repaid"`
	}
	decodeResult(t, resp, &repaid)
	require.Equal(t, "400000", repaid.Repaid)

	status, resp = env.call(t, userToken, "vault_withdraw", map[string]interface{}{"id": 0, "amount": "5000000000000"})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	var withdrawn struct {
		Withdrawn string `json:"withdrawn"`
	}
	decodeResult(t, resp, &withdrawn)
	require.Equal(t, oneCollateral, withdrawn.Withdrawn)

	status, _ = env.call(t, userToken, "vault_destroy", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusOK, status)

	status, resp = env.call(t, userToken, "events_list", map[string]interface{}{"type": events.TypeVaultDestroyed})
	require.Equal(t, http.StatusOK, status)
	var listed struct {
		Events []indexer.Record `json:"events"`
	}
	decodeResult(t, resp, &listed)
	require.Len(t, listed.Events, 1)
	require.Equal(t, "0", listed.Events[0].Attributes["vaultId"])
	require.True(t, indexer.Verify(listed.Events[0]))
}

func TestContractErrorsMapToCodes(t *testing.T) {
	env := newTestEnv(t, nil)
	userToken := env.token(t, testAddress(2))

	status, resp := env.call(t, userToken, "vault_details", map[string]interface{}{"id": 99})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeNotFound, resp.Error.Code)

	status, resp = env.call(t, userToken, "vault_deposit", map[string]interface{}{"id": 0, "amount": "-5"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = env.call(t, userToken, "vault_details", map[string]interface{}{"id": 0, "bogus": true})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = env.call(t, userToken, "token_mint", map[string]string{
		"token": "stable", "to": testAddress(2).String(), "amount": "1",
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = env.call(t, userToken, "oracle_setPrice", map[string]string{"price": "1"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, _ = env.call(t, userToken, "vault_create", nil)
	require.Equal(t, http.StatusOK, status)
	status, resp = env.call(t, env.token(t, testAddress(3)), "vault_buyRisky", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeRejected, resp.Error.Code)

	status, resp = env.call(t, userToken, "no_such_method", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	status, resp = env.post(t, userToken, []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeParseError, resp.Error.Code)
}

func TestPauseBlocksBorrowOverRPC(t *testing.T) {
	env := newTestEnv(t, nil)
	ownerToken := env.token(t, env.owner)
	userToken := env.token(t, testAddress(2))

	status, resp := env.call(t, userToken, "vault_pause", nil)
	require.Equal(t, http.StatusForbidden, status, "%+v", resp.Error)

	status, _ = env.call(t, ownerToken, "vault_pause", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = env.call(t, userToken, "vault_create", nil)
	require.Equal(t, http.StatusOK, status)
	status, resp = env.call(t, userToken, "vault_borrow", map[string]interface{}{"id": 0, "amount": "1"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeRejected, resp.Error.Code)

	status, resp = env.call(t, userToken, "vault_totals", nil)
	require.Equal(t, http.StatusOK, status)
	var totals VaultTotalsResult
	decodeResult(t, resp, &totals)
	require.True(t, totals.Paused)
	require.EqualValues(t, 1, totals.Positions)
}

func TestRateLimitPerCaller(t *testing.T) {
	env := newTestEnv(t, func(cfg *ServerConfig) {
		cfg.RateLimit = RateLimit{RequestsPerMinute: 1, Burst: 2}
	})
	first := env.token(t, testAddress(2))
	second := env.token(t, testAddress(3))

	for i := 0; i < 2; i++ {
		status, _ := env.call(t, first, "system_addresses", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, resp := env.call(t, first, "system_addresses", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)

	status, _ = env.call(t, second, "system_addresses", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestControllerParametersRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ownerToken := env.token(t, env.owner)

	status, resp := env.call(t, ownerToken, "controller_getParameters", nil)
	require.Equal(t, http.StatusOK, status)
	var params RateParametersResult
	decodeResult(t, resp, &params)
	require.NotEmpty(t, params.MaximumCollateralCoefficientE6)

	params.InterestRateStepE12 = "7"
	status, resp = env.call(t, ownerToken, "controller_setParameters", params)
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)

	status, resp = env.call(t, ownerToken, "controller_getParameters", nil)
	require.Equal(t, http.StatusOK, status)
	var updated RateParametersResult
	decodeResult(t, resp, &updated)
	require.Equal(t, "7", updated.InterestRateStepE12)
}

func TestControlStableOverRPC(t *testing.T) {
	env := newTestEnv(t, nil)
	ownerToken := env.token(t, env.owner)

	status, resp := env.call(t, ownerToken, "measurer_setStability", map[string]interface{}{"value": 45})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	params := RateParametersResult{
		InterestRateStepE12:            "0",
		MaximumCollateralCoefficientE6: "2000000",
		CollateralStepValueE6:          "0",
		StableInterestRateStepE12:      "100",
	}
	status, resp = env.call(t, ownerToken, "controller_setParameters", params)
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)

	status, resp = env.call(t, env.token(t, testAddress(4)), "controller_controlStable", nil)
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	var out struct {
		HolderRateE12 string `json:"holderRateE12"`
	}
	decodeResult(t, resp, &out)
	require.Equal(t, "500", out.HolderRateE12)

	status, _ = env.call(t, "", "controller_controlStable", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := env.http.Client().Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, true, body["deployed"])
}
