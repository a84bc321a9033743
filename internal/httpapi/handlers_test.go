package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/giving-vault/internal/gateway/memory"
	"github.com/sheikh-saqib/giving-vault/internal/ledger"
	memstore "github.com/sheikh-saqib/giving-vault/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const (
	vaultAddr       = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	beneficiaryAddr = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
	donorAddr       = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

type testAPI struct {
	handler http.Handler
	gw      *memory.Gateway
}

func newTestAPI(t *testing.T, limiter *RateLimiter) *testAPI {
	t.Helper()
	gw := memory.New()
	vault, err := ledger.New(context.Background(), ledger.Config{
		VaultID:     vaultAddr,
		Beneficiary: beneficiaryAddr,
		Store:       memstore.NewMemoryLedgerStore(),
		Gateway:     gw,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	h := NewHandlers(vault, 18, zerolog.Nop(), gw)
	return &testAPI{handler: NewRouter(h, zerolog.Nop(), limiter), gw: gw}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) (int, gjson.Result) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec.Code, gjson.Parse(rec.Body.String())
}

func donorPath(suffix string) string {
	return "/donors/" + strings.ToLower(donorAddr) + suffix
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, nil)

	code, body := api.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Get("status").String())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDepositAndWithdraw(t *testing.T) {
	api := newTestAPI(t, nil)

	code, body := api.do(t, http.MethodPost, "/sim/accounts/"+strings.ToLower(donorAddr)+"/credit", `{"amount":"10"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, donorAddr, body.Get("account").String())

	code, body = api.do(t, http.MethodPost, donorPath("/deposits"), `{"amount":"1.5"}`, "Idempotency-Key", "dep-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "deposit", body.Get("kind").String())
	assert.Equal(t, donorAddr, body.Get("donor").String())
	assert.Equal(t, "1500000000000000000", body.Get("amount.base").String())
	assert.Equal(t, "1.5", body.Get("principal.units").String())
	assert.False(t, body.Get("replayed").Bool())
	opID := body.Get("operation_id").String()

	code, body = api.do(t, http.MethodPost, donorPath("/deposits"), `{"amount":"1.5"}`, "Idempotency-Key", "dep-1")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, body.Get("replayed").Bool())
	assert.Equal(t, opID, body.Get("operation_id").String())

	code, body = api.do(t, http.MethodPost, donorPath("/deposits"), `{"amount":"2"}`, "Idempotency-Key", "dep-1")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "idempotency_conflict", body.Get("error").String())

	code, body = api.do(t, http.MethodGet, donorPath("/principal"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.5", body.Get("principal.units").String())

	code, body = api.do(t, http.MethodPost, donorPath("/withdrawals"), `{"amount":"5"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "insufficient_principal", body.Get("error").String())

	code, body = api.do(t, http.MethodPost, donorPath("/withdrawals"), `{"amount":"1.5"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "0", body.Get("principal.base").String())

	code, body = api.do(t, http.MethodGet, donorPath(""), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "10", body.Get("wallet.units").String())
	assert.Equal(t, "0", body.Get("balance.units").String())

	code, body = api.do(t, http.MethodGet, "/ledger/entries?donor="+strings.ToLower(donorAddr), "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Array(), 2)
	assert.Equal(t, "-1500000000000000000", body.Get("1.principal_delta.base").String())
}

func TestDonateRewards(t *testing.T) {
	api := newTestAPI(t, nil)
	api.do(t, http.MethodPost, "/sim/accounts/"+donorAddr+"/credit", `{"amount":"100"}`)
	code, _ := api.do(t, http.MethodPost, donorPath("/deposits"), `{"amount":"100"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := api.do(t, http.MethodPost, "/vault/donations", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_rewards_available", body.Get("error").String())

	code, _ = api.do(t, http.MethodPost, "/sim/vault/yield", `{"amount":"5"}`)
	require.Equal(t, http.StatusOK, code)

	code, body = api.do(t, http.MethodGet, "/vault/rewards", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "5", body.Get("staking_rewards.units").String())

	code, body = api.do(t, http.MethodPost, "/vault/donations", "")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "donation", body.Get("kind").String())
	assert.Equal(t, beneficiaryAddr, body.Get("donor").String())
	assert.Equal(t, "5", body.Get("amount.units").String())

	code, body = api.do(t, http.MethodGet, "/vault", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100", body.Get("vault_balance.units").String())
	assert.Equal(t, "100", body.Get("total_principal.units").String())
	assert.Equal(t, "0", body.Get("staking_rewards.units").String())
	assert.Equal(t, beneficiaryAddr, body.Get("beneficiary").String())
}

func TestShortfallIsVisible(t *testing.T) {
	api := newTestAPI(t, nil)
	api.do(t, http.MethodPost, "/sim/accounts/"+donorAddr+"/credit", `{"amount":"10"}`)
	api.do(t, http.MethodPost, donorPath("/deposits"), `{"amount":"10"}`)
	api.do(t, http.MethodPost, "/sim/vault/slash", `{"amount":"1"}`)

	code, body := api.do(t, http.MethodGet, "/vault", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1", body.Get("shortfall.units").String())
	assert.Equal(t, "0", body.Get("staking_rewards.units").String())
}

func TestRejectsBadInput(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad address", http.MethodPost, "/donors/0x123/deposits", `{"amount":"1"}`, http.StatusBadRequest, "invalid_identity"},
		{"malformed amount", http.MethodPost, donorPath("/deposits"), `{"amount":"lots"}`, http.StatusBadRequest, "invalid_amount"},
		{"too many decimals", http.MethodPost, donorPath("/deposits"), `{"amount":"0.0000000000000000001"}`, http.StatusBadRequest, "invalid_amount"},
		{"zero amount", http.MethodPost, donorPath("/withdrawals"), `{"amount":"0"}`, http.StatusBadRequest, "invalid_amount"},
		{"negative amount", http.MethodPost, donorPath("/deposits"), `{"amount":"-1"}`, http.StatusBadRequest, "invalid_amount"},
		{"exponent amount", http.MethodPost, donorPath("/deposits"), `{"amount":"1e3"}`, http.StatusBadRequest, "invalid_amount"},
		{"too many digits", http.MethodPost, donorPath("/deposits"), `{"amount":"1` + strings.Repeat("0", 70) + `"}`, http.StatusBadRequest, "invalid_amount"},
		{"oversized body", http.MethodPost, donorPath("/deposits"), `{"amount":"1` + strings.Repeat("0", 8<<10) + `"}`, http.StatusBadRequest, "invalid_request"},
		{"oversized resolve", http.MethodPost, "/intents/abc/resolve", `{"transferred":false,"pad":"` + strings.Repeat("x", 8<<10) + `"}`, http.StatusBadRequest, "invalid_request"},
		{"not json", http.MethodPost, donorPath("/deposits"), `amount=1`, http.StatusBadRequest, "invalid_request"},
		{"vault as donor", http.MethodPost, "/donors/" + vaultAddr + "/deposits", `{"amount":"1"}`, http.StatusBadRequest, "invalid_identity"},
		{"empty wallet", http.MethodPost, donorPath("/deposits"), `{"amount":"1"}`, http.StatusBadGateway, "transfer_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, body.Get("error").String())
		})
	}
}

func TestGatewayDown(t *testing.T) {
	api := newTestAPI(t, nil)
	api.gw.SetUnavailable(true)

	code, body := api.do(t, http.MethodGet, "/vault/balance", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "gateway_unavailable", body.Get("error").String())
}

func TestResolveIntent(t *testing.T) {
	api := newTestAPI(t, nil)

	code, body := api.do(t, http.MethodPost, "/intents/abc/resolve", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", body.Get("error").String())

	code, body = api.do(t, http.MethodPost, "/intents/abc/resolve", `{"transferred":false}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "intent_not_found", body.Get("error").String())

	code, body = api.do(t, http.MethodGet, "/intents/pending", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body.Array())
}

func TestRateLimiter(t *testing.T) {
	api := newTestAPI(t, NewRateLimiter(1, 1))

	code, _ := api.do(t, http.MethodGet, "/vault/beneficiary", "")
	assert.Equal(t, http.StatusOK, code)

	code, body := api.do(t, http.MethodGet, "/vault/beneficiary", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", body.Get("error").String())

	// health is outside the limited group
	code, _ = api.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
