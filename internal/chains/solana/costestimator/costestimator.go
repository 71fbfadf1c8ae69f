// Package costestimator implements the Chain-S Cost Estimator (C14): an
// RPC-driven priority-fee lookup composed into a total lamport estimate
// (spec.md §4.14).
package costestimator

import (
	"context"
	"math"

	"github.com/avicenne-studio/bridge-hub/internal/httpclient"
)

// Constants from spec.md §4.14.
const (
	BaseFee           int64 = 5000
	OutboundOrderRent int64 = 2_185_440
	OutboundCU        int64 = 30_000
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type priorityFeeOptions struct {
	Recommended bool `json:"recommended"`
}

type priorityFeeParams struct {
	AccountKeys []string           `json:"accountKeys"`
	Options     priorityFeeOptions `json:"options"`
}

type rpcResponse struct {
	Result struct {
		PriorityFeeEstimate float64 `json:"priorityFeeEstimate"`
	} `json:"result"`
}

// Estimator calls the chain-S RPC's getPriorityFeeEstimate method.
type Estimator struct {
	http   *httpclient.Client
	rpcURL string
}

func New(http *httpclient.Client, rpcURL string) *Estimator {
	return &Estimator{http: http, rpcURL: rpcURL}
}

// EstimateUserNetworkFee returns the total lamport fee: base fee +
// priority portion (derived from the RPC's microLamports-per-compute-unit
// estimate) + the outbound order's rent-exemption deposit.
func (e *Estimator) EstimateUserNetworkFee(ctx context.Context, accountKeys []string) (int64, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getPriorityFeeEstimate",
		Params: []interface{}{
			priorityFeeParams{AccountKeys: accountKeys, Options: priorityFeeOptions{Recommended: true}},
		},
	}

	resp, err := httpclient.PostJSON[rpcResponse](ctx, e.http, e.rpcURL, "", req, nil)
	if err != nil {
		return 0, err
	}

	priority := int64(math.Ceil(resp.Result.PriorityFeeEstimate * float64(OutboundCU) / 1_000_000))
	return BaseFee + priority + OutboundOrderRent, nil
}
