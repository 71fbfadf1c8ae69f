// Package healthpoll implements the Oracle Health Poller (C8): a
// round-based fan-out to every configured oracle's /api/health, feeding
// results into the Oracle Registry (C6).
package healthpoll

import (
	"context"
	"time"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/httpclient"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/registry"
	"github.com/avicenne-studio/bridge-hub/internal/sched"
	"github.com/avicenne-studio/bridge-hub/internal/signer"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

// healthResponse is the oracle's raw /api/health payload (spec.md §4.8).
type healthResponse struct {
	Status          string  `json:"status"`
	Timestamp       *int64  `json:"timestamp"`
	RelayerFeeS     *int64  `json:"relayerFeeSolana"`
	RelayerFeeQ     *int64  `json:"relayerFeeQubic"`
}

// New builds the C8 poller. servers are oracle origins (schema+host, no
// trailing slash); reg is updated once per round with every result,
// including synthetic "down" records for transport failures.
func New(servers []string, http *httpclient.Client, sign *signer.Signer, reg *registry.Registry, cfg sched.Config) *sched.Poller[domain.OracleHealth] {
	log := logger.New("healthpoll")

	fetchOne := func(ctx context.Context, server string) (domain.OracleHealth, error) {
		headers, err := sign.Sign("GET", "/api/health", nil)
		if err != nil {
			log.Warn("signing failed", "server", server, "err", err.Error())
			return downRecord(server), nil
		}

		resp, err := httpclient.GetJSON[healthResponse](ctx, http, server, "/api/health", headers.Map())
		if err != nil {
			log.Warn("health fetch failed", "server", server, "err", err.Error())
			return downRecord(server), nil
		}
		return toOracleHealth(server, resp), nil
	}

	onRound := func(ctx context.Context, results []domain.OracleHealth) {
		for _, r := range results {
			reg.Update(r.URL, r)
		}
	}

	return sched.New("health", servers, fetchOne, onRound, cfg)
}

func downRecord(server string) domain.OracleHealth {
	return domain.OracleHealth{URL: server, Status: domain.OracleDown, Timestamp: time.Now()}
}

func toOracleHealth(server string, resp healthResponse) domain.OracleHealth {
	h := domain.OracleHealth{URL: server, Timestamp: time.Now()}

	if resp.Status == string(domain.OracleOK) {
		h.Status = domain.OracleOK
	} else {
		h.Status = domain.OracleDown
	}
	if resp.Timestamp != nil {
		h.Timestamp = time.Unix(*resp.Timestamp, 0)
	}
	if resp.RelayerFeeS != nil && *resp.RelayerFeeS >= 0 {
		h.RelayerFeeS = *resp.RelayerFeeS
	}
	if resp.RelayerFeeQ != nil && *resp.RelayerFeeQ >= 0 {
		h.RelayerFeeQ = *resp.RelayerFeeQ
	}
	return h
}
