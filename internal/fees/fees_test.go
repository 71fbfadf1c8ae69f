package fees

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avicenne-studio/bridge-hub/internal/bherr"
	"github.com/avicenne-studio/bridge-hub/internal/chains/solana/costestimator"
	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/httpclient"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/registry"
)

func ints(vals ...int64) []math.Int {
	out := make([]math.Int, len(vals))
	for i, v := range vals {
		out[i] = math.NewInt(v)
	}
	return out
}

// Property 6: median invariant.
func TestMedian_OddAndEven(t *testing.T) {
	assert.True(t, Median(ints(1, 3, 2)).Equal(math.NewInt(2)))
	assert.True(t, Median(ints(2, 4, 6, 8)).Equal(math.NewInt(5)))
	assert.True(t, Median(ints(8, 2, 6, 4)).Equal(math.NewInt(5)))
}

func healthyRegistry(t *testing.T, feesQ ...int64) *registry.Registry {
	t.Helper()
	urls := make([]string, len(feesQ))
	for i := range feesQ {
		urls[i] = "oracle" + string(rune('a'+i))
	}
	reg := registry.New(urls)
	for i, fee := range feesQ {
		reg.Update(urls[i], domain.OracleHealth{URL: urls[i], Status: domain.OracleOK, RelayerFeeQ: fee})
	}
	return reg
}

// S4 — fee estimation median.
func TestEstimate_S4Figures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"priorityFeeEstimate":0}}`))
	}))
	defer srv.Close()

	reg := healthyRegistry(t, 2, 4, 6, 8)
	cost := costestimator.New(httpclient.New(httpclient.Config{}), srv.URL)
	est := New(reg, cost, Config{})

	out, err := est.Estimate(context.Background(), EstimateInput{
		NetworkIn:   domain.ChainS,
		NetworkOut:  domain.ChainQ,
		FromAddress: "from",
		ToAddress:   "to",
		Amount:      math.NewInt(1_000_000),
	})
	require.NoError(t, err)

	assert.True(t, out.BridgeFee.Oracle.Equal(math.NewInt(10_000)))
	assert.True(t, out.BridgeFee.Protocol.Equal(math.NewInt(1_000)))
	assert.True(t, out.BridgeFee.Total.Equal(math.NewInt(11_000)))
	assert.True(t, out.RelayerFee.Equal(math.NewInt(5)))
	assert.True(t, out.NetworkFee.Equal(math.NewInt(2_190_440)))
	assert.True(t, out.UserReceives.Equal(math.NewInt(988_995)))
}

// S5 — insufficient healthy oracles.
func TestEstimate_S5InsufficientOracles(t *testing.T) {
	reg := healthyRegistry(t, 2, 4) // only 2 healthy, default minHealthy=4
	cost := costestimator.New(httpclient.New(httpclient.Config{}), "http://unused")
	est := New(reg, cost, Config{})

	_, err := est.Estimate(context.Background(), EstimateInput{
		NetworkIn:  domain.ChainS,
		NetworkOut: domain.ChainQ,
		Amount:     math.NewInt(1000),
	})
	require.Error(t, err)
	var be *bherr.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, bherr.KindEstimateUnavail, be.Kind)
}

func TestEstimate_RejectsSameNetwork(t *testing.T) {
	reg := healthyRegistry(t, 1, 2, 3, 4)
	cost := costestimator.New(httpclient.New(httpclient.Config{}), "http://unused")
	est := New(reg, cost, Config{})

	_, err := est.Estimate(context.Background(), EstimateInput{
		NetworkIn:  domain.ChainS,
		NetworkOut: domain.ChainS,
		Amount:     math.NewInt(1000),
	})
	assert.Error(t, err)
}
