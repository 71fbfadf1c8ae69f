// Package fees implements the Fee Estimator (C13): bridge fee (bps
// math), median-of-healthy-oracles relayer fee, and network fee
// composed from the chain-specific cost estimator (C14), per spec.md
// §4.13.
package fees

import (
	"context"
	"fmt"
	"sort"

	"cosmossdk.io/math"

	"github.com/avicenne-studio/bridge-hub/internal/bherr"
	"github.com/avicenne-studio/bridge-hub/internal/chains/solana/costestimator"
	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/registry"
)

// Defaults from spec.md §4.13.
const (
	DefaultBpsFee              int64 = 100
	DefaultProtocolFeeBpsOfBps int64 = 1000
	DefaultMinHealthy          int   = 4
)

// Config tunes the estimator's constants; zero values fall back to the
// spec.md defaults.
type Config struct {
	BpsFee              int64
	ProtocolFeeBpsOfBps int64
	MinHealthy          int
	QubicNetworkFee     int64 // mocked constant until a real chain-Q estimator exists
}

func (c Config) withDefaults() Config {
	if c.BpsFee == 0 {
		c.BpsFee = DefaultBpsFee
	}
	if c.ProtocolFeeBpsOfBps == 0 {
		c.ProtocolFeeBpsOfBps = DefaultProtocolFeeBpsOfBps
	}
	if c.MinHealthy == 0 {
		c.MinHealthy = DefaultMinHealthy
	}
	return c
}

// BridgeFee is the oracle + protocol split of the bridge's own cut.
type BridgeFee struct {
	Oracle   math.Int `json:"oracleFee"`
	Protocol math.Int `json:"protocolFee"`
	Total    math.Int `json:"total"`
}

// EstimateInput is the POST /api/orders/estimate request body.
type EstimateInput struct {
	NetworkIn   domain.Chain
	NetworkOut  domain.Chain
	FromAddress string
	ToAddress   string
	Amount      math.Int
}

// EstimateOutput is the response; every monetary field renders as a
// decimal string at the API boundary.
type EstimateOutput struct {
	BridgeFee    BridgeFee `json:"bridgeFee"`
	RelayerFee   math.Int  `json:"relayerFee"`
	NetworkFee   math.Int  `json:"networkFee"`
	UserReceives math.Int  `json:"userReceives"`
}

// Estimator combines C14 (chain-S network fee) with a mocked chain-Q
// network fee constant and the Oracle Registry's healthy relayer fee
// quotes.
type Estimator struct {
	cfg        Config
	registry   *registry.Registry
	solanaCost *costestimator.Estimator
}

func New(registry *registry.Registry, solanaCost *costestimator.Estimator, cfg Config) *Estimator {
	return &Estimator{cfg: cfg.withDefaults(), registry: registry, solanaCost: solanaCost}
}

// Estimate implements spec.md §4.13's five steps.
func (e *Estimator) Estimate(ctx context.Context, in EstimateInput) (EstimateOutput, error) {
	if in.NetworkIn == in.NetworkOut {
		return EstimateOutput{}, fmt.Errorf("networkIn and networkOut must differ")
	}

	bridgeFee := computeBridgeFee(in.Amount, e.cfg.BpsFee, e.cfg.ProtocolFeeBpsOfBps)

	relayerFee, err := e.computeRelayerFee(in.NetworkOut)
	if err != nil {
		return EstimateOutput{}, err
	}

	networkFee, err := e.computeNetworkFee(ctx, in)
	if err != nil {
		return EstimateOutput{}, err
	}

	userReceives := in.Amount.Sub(bridgeFee.Total).Sub(relayerFee)

	return EstimateOutput{
		BridgeFee:    bridgeFee,
		RelayerFee:   relayerFee,
		NetworkFee:   networkFee,
		UserReceives: userReceives,
	}, nil
}

func computeBridgeFee(amount math.Int, bpsFee, protocolFeeBpsOfBps int64) BridgeFee {
	oracle := amount.Mul(math.NewInt(bpsFee)).Quo(math.NewInt(10_000))
	protocol := oracle.Mul(math.NewInt(protocolFeeBpsOfBps)).Quo(math.NewInt(10_000))
	return BridgeFee{Oracle: oracle, Protocol: protocol, Total: oracle.Add(protocol)}
}

// computeRelayerFee applies the destination chain's relayer fee quote
// (DESIGN.md open-question decision #2): the relayer acts on the
// destination chain, so that's whose native relayer cost applies.
func (e *Estimator) computeRelayerFee(networkOut domain.Chain) (math.Int, error) {
	healthy := e.registry.Healthy()
	if len(healthy) < e.cfg.MinHealthy {
		return math.Int{}, bherr.WithMeta(bherr.KindEstimateUnavail, "insufficient healthy oracles", map[string]interface{}{
			"healthy":    len(healthy),
			"minHealthy": e.cfg.MinHealthy,
		})
	}

	quotes := make([]math.Int, 0, len(healthy))
	for _, h := range healthy {
		if networkOut == domain.ChainQ {
			quotes = append(quotes, math.NewInt(h.RelayerFeeQ))
		} else {
			quotes = append(quotes, math.NewInt(h.RelayerFeeS))
		}
	}
	return Median(quotes), nil
}

func (e *Estimator) computeNetworkFee(ctx context.Context, in EstimateInput) (math.Int, error) {
	if in.NetworkIn == domain.ChainS {
		lamports, err := e.solanaCost.EstimateUserNetworkFee(ctx, []string{in.FromAddress, in.ToAddress})
		if err != nil {
			return math.Int{}, err
		}
		return math.NewInt(lamports), nil
	}
	return math.NewInt(e.cfg.QubicNetworkFee), nil
}

// Median implements spec.md §4.13's big-integer median: for even n,
// (sorted[n/2-1]+sorted[n/2])/2 with integer division; never rounds
// through floats.
func Median(xs []math.Int) math.Int {
	sorted := make([]math.Int, len(xs))
	copy(sorted, xs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LT(sorted[j]) })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Quo(math.NewInt(2))
}
