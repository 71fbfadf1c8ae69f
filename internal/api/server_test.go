package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avicenne-studio/bridge-hub/internal/chains/solana/costestimator"
	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/events"
	"github.com/avicenne-studio/bridge-hub/internal/fees"
	"github.com/avicenne-studio/bridge-hub/internal/httpclient"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/registry"
	"github.com/avicenne-studio/bridge-hub/internal/orders"
	"github.com/avicenne-studio/bridge-hub/internal/signer"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

func testServer(t *testing.T) (*Server, orders.Repository, events.Repository, *registry.Registry) {
	t.Helper()
	ordersRepo := orders.NewMemRepository()
	eventsRepo := events.NewMemRepository()
	reg := registry.New([]string{"http://oracle-a", "http://oracle-b", "http://oracle-c", "http://oracle-d"})
	for _, u := range []string{"http://oracle-a", "http://oracle-b", "http://oracle-c", "http://oracle-d"} {
		reg.Update(u, domain.OracleHealth{URL: u, Status: domain.OracleOK, Timestamp: time.Now(), RelayerFeeS: 2, RelayerFeeQ: 3})
	}

	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"priorityFeeEstimate":0}}`))
	}))
	t.Cleanup(rpcSrv.Close)
	cost := costestimator.New(httpclient.New(httpclient.Config{}), rpcSrv.URL)
	estimator := fees.New(reg, cost, fees.Config{MinHealthy: 1})

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	sign := signer.New(domain.HubKeys{
		HubID:   "hub-1",
		Current: domain.KeyMaterial{KeyID: "k1", PublicKey: pub, PrivateKey: priv},
	})

	srv := NewServer(Config{RateLimitMax: 10_000}, Deps{
		Orders:    ordersRepo,
		Events:    eventsRepo,
		Registry:  reg,
		Estimator: estimator,
		Signer:    sign,
	}, logger.New("api-test"))

	return srv, ordersRepo, eventsRepo, reg
}

func doRequest(srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthBridge_AlwaysPaused(t *testing.T) {
	srv, _, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/health/bridge", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paused":true}`, rec.Body.String())
}

func TestHealthOracles_ListsRegistrySnapshot(t *testing.T) {
	srv, _, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/health/oracles", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Oracles []map[string]interface{} `json:"oracles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Oracles, 4)
}

func TestKeys_ReturnsFingerprintedCurrentKey(t *testing.T) {
	srv, _, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/keys", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		HubID   string `json:"hubId"`
		Current struct {
			KID          string `json:"kid"`
			PublicKeyPem string `json:"publicKeyPem"`
			Fingerprint  string `json:"fingerprint"`
		} `json:"current"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hub-1", body.HubID)
	assert.Equal(t, "k1", body.Current.KID)
	assert.Len(t, body.Current.Fingerprint, 64)
	assert.Contains(t, body.Current.PublicKeyPem, "PUBLIC KEY")
}

func TestListOrders_FiltersByStatus(t *testing.T) {
	srv, repo, _, _ := testServer(t)
	ctx := context.Background()
	for _, status := range []domain.OrderStatus{domain.StatusPending, domain.StatusRelayed} {
		_, err := repo.Create(ctx, &domain.Order{
			Source: domain.ChainS, Dest: domain.ChainQ, From: "a", To: "b",
			Amount: math.NewInt(10), RelayerFee: math.NewInt(1), OriginTrxHash: "tx-" + string(status), Status: status,
		})
		require.NoError(t, err)
	}

	rec := doRequest(srv, http.MethodGet, "/api/orders?status=pending", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw.Data, 1)
	assert.Equal(t, "pending", raw.Data[0]["status"])
	assert.Contains(t, raw.Data[0], "origin_trx_hash")
	assert.Contains(t, raw.Data[0], "oracle_accept_to_relay")
	assert.Contains(t, raw.Data[0], "createdAt")
	assert.NotContains(t, raw.Data[0], "OriginTrxHash")

	var body struct {
		Data       []domain.Order `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Pagination.Total)
	assert.Equal(t, domain.StatusPending, body.Data[0].Status)
}

func TestOrderByID_404WhenAbsent(t *testing.T) {
	srv, _, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/orders/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderByTrxHash_RequiresHash(t *testing.T) {
	srv, _, _, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/orders/trx-hash", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimate_Returns503WhenInsufficientOracles(t *testing.T) {
	srv, _, _, reg := testServer(t)
	reg.Update("http://oracle-a", domain.OracleHealth{URL: "http://oracle-a", Status: domain.OracleDown})
	reg.Update("http://oracle-b", domain.OracleHealth{URL: "http://oracle-b", Status: domain.OracleDown})
	reg.Update("http://oracle-c", domain.OracleHealth{URL: "http://oracle-c", Status: domain.OracleDown})
	reg.Update("http://oracle-d", domain.OracleHealth{URL: "http://oracle-d", Status: domain.OracleDown})

	body, _ := json.Marshal(estimateRequest{
		NetworkIn: domain.ChainS, NetworkOut: domain.ChainQ, FromAddress: "a", ToAddress: "b", Amount: "1000",
	})
	rec := doRequest(srv, http.MethodPost, "/api/orders/estimate", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestEstimate_MatchesDocumentedScenario replays spec scenario S4:
// relayerFeeQubic in {2,4,6,8}, amount=1_000_000, chainS->chainQ, and
// asserts the exact documented response body, not just a 200 status.
func TestEstimate_MatchesDocumentedScenario(t *testing.T) {
	srv, _, _, reg := testServer(t)
	urls := []string{"http://oracle-a", "http://oracle-b", "http://oracle-c", "http://oracle-d"}
	relayerFeesQ := []int64{2, 4, 6, 8}
	for i, u := range urls {
		reg.Update(u, domain.OracleHealth{URL: u, Status: domain.OracleOK, Timestamp: time.Now(), RelayerFeeQ: relayerFeesQ[i]})
	}

	body, _ := json.Marshal(estimateRequest{
		NetworkIn: domain.ChainS, NetworkOut: domain.ChainQ, FromAddress: "a", ToAddress: "b", Amount: "1000000",
	})
	rec := doRequest(srv, http.MethodPost, "/api/orders/estimate", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"data": {
			"bridgeFee": {"oracleFee":"10000","protocolFee":"1000","total":"11000"},
			"relayerFee": "5",
			"networkFee": "2190440",
			"userReceives": "988995"
		}
	}`, rec.Body.String())
}

func TestOrderSignatures_OnlyReturnsRelayableOrders(t *testing.T) {
	srv, repo, _, _ := testServer(t)
	ctx := context.Background()
	o, err := repo.Create(ctx, &domain.Order{
		Source: domain.ChainS, Dest: domain.ChainQ, From: "a", To: "b",
		Amount: math.NewInt(10), RelayerFee: math.NewInt(1), OriginTrxHash: "tx-1", Status: domain.StatusReadyForRelay,
	})
	require.NoError(t, err)
	_, err = repo.AddSignatures(ctx, o.ID, []string{"sig1"})
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/api/orders/signatures", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			OrderID    string   `json:"orderId"`
			Signatures []string `json:"signatures"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, o.ID, body.Data[0].OrderID)
	assert.Equal(t, []string{"sig1"}, body.Data[0].Signatures)
}

func TestOrderEvents_ReturnsCursor(t *testing.T) {
	srv, _, eventsRepo, _ := testServer(t)
	ctx := context.Background()
	_, err := eventsRepo.Create(ctx, &domain.StoredEvent{
		Signature: "sig", Chain: domain.ChainQ, Type: domain.EventLock, Nonce: "n1", Payload: []byte("x"),
	})
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/api/orders/events?limit=10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		Data   []map[string]interface{} `json:"data"`
		Cursor map[string]interface{}   `json:"cursor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw.Data, 1)
	assert.Contains(t, raw.Data[0], "createdAt")
	assert.Contains(t, raw.Data[0], "signature")
	assert.Contains(t, raw.Cursor, "createdAt")
	assert.Contains(t, raw.Cursor, "id")
	assert.NotContains(t, raw.Cursor, "CreatedAt")

	var body struct {
		Data   []domain.StoredEvent `json:"data"`
		Cursor domain.EventCursor   `json:"cursor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, body.Data[0].ID, body.Cursor.ID)
}

func TestStats_ReportsOrderCountsAndOracleHealth(t *testing.T) {
	srv, repo, _, _ := testServer(t)
	_, err := repo.Create(context.Background(), &domain.Order{
		Source: domain.ChainS, Dest: domain.ChainQ, From: "a", To: "b",
		Amount: math.NewInt(1), RelayerFee: math.NewInt(0), OriginTrxHash: "tx-1", Status: domain.StatusPending,
	})
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OrdersByStatus map[string]int `json:"ordersByStatus"`
		Oracles        struct {
			Healthy int `json:"healthy"`
			Total   int `json:"total"`
		} `json:"oracles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.OrdersByStatus["pending"])
	assert.Equal(t, 4, body.Oracles.Healthy)
	assert.Equal(t, 4, body.Oracles.Total)
}
