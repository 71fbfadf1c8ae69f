// Package orderspoll implements the Oracle Orders Poller (C9): a
// round-based fan-out to every healthy oracle's /api/orders, reconciled
// via C7 and persisted via the Orders Repository (C4).
package orderspoll

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	cmath "cosmossdk.io/math"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/httpclient"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/reconcile"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/registry"
	"github.com/avicenne-studio/bridge-hub/internal/orders"
	"github.com/avicenne-studio/bridge-hub/internal/sched"
	"github.com/avicenne-studio/bridge-hub/internal/signer"
	"github.com/avicenne-studio/bridge-hub/internal/wireshape"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

// reportWire is one oracle's signed view of one order.
type reportWire struct {
	ID                  string   `json:"id"`
	Source              string   `json:"source"`
	Dest                string   `json:"dest"`
	From                string   `json:"from"`
	To                  string   `json:"to"`
	Amount              cmath.Int `json:"amount"`
	RelayerFee          cmath.Int `json:"relayerFee"`
	OriginTrxHash       string   `json:"origin_trx_hash"`
	DestinationTrxHash  string   `json:"destination_trx_hash,omitempty"`
	OracleAcceptToRelay bool     `json:"oracle_accept_to_relay"`
	Status              string   `json:"status"`
	Signature            string   `json:"signature"`
}

func (w reportWire) toReport() reconcile.Report {
	return reconcile.Report{
		OrderID:             w.ID,
		Source:              domain.Chain(w.Source),
		Dest:                domain.Chain(w.Dest),
		From:                w.From,
		To:                  w.To,
		Amount:              w.Amount,
		RelayerFee:          w.RelayerFee,
		OriginTrxHash:       w.OriginTrxHash,
		OracleAcceptToRelay: w.OracleAcceptToRelay,
		Status:              domain.OrderStatus(w.Status),
		DestinationTrxHash:  w.DestinationTrxHash,
		Signature:           w.Signature,
	}
}

// Threshold configures computeRequiredSignatures (spec.md §4.9).
type Threshold struct {
	Value       float64 // ratio in (0,1] or an absolute count
	OracleCount int
}

// ComputeRequiredSignatures implements spec.md §4.9's formula: a ratio
// in (0,1] is ceil(oracleCount*value); otherwise value is taken as an
// absolute floor-ed count. Always lower-bounded at 1.
func ComputeRequiredSignatures(threshold float64, oracleCount int) int {
	var required int
	if threshold > 0 && threshold <= 1 {
		required = int(math.Ceil(threshold * float64(oracleCount)))
	} else {
		required = int(math.Floor(threshold))
	}
	if required < 1 {
		required = 1
	}
	return required
}

// New builds the C9 poller. servers are oracle origins.
func New(
	servers []string,
	http *httpclient.Client,
	sign *signer.Signer,
	reg *registry.Registry,
	repo orders.Repository,
	threshold Threshold,
	cfg sched.Config,
) *sched.Poller[[]reconcile.Report] {
	log := logger.New("orderspoll")

	fetchOne := func(ctx context.Context, server string) ([]reconcile.Report, error) {
		if h, ok := reg.Get(server); !ok || h.Status != domain.OracleOK {
			return nil, nil
		}

		headers, err := sign.Sign("GET", "/api/orders", nil)
		if err != nil {
			return nil, err
		}

		raw, err := httpclient.GetJSON[json.RawMessage](ctx, http, server, "/api/orders", headers.Map())
		if err != nil {
			return nil, err
		}

		wireItems, ok, mismatch := wireshape.DecodeArrayOrEnvelope[reportWire](raw)
		if !ok {
			log.Warn("orders payload schema mismatch", "server", server, "payloadType", mismatch.PayloadType, "payloadKeys", mismatch.PayloadKeys)
			return nil, nil
		}

		reports := make([]reconcile.Report, 0, len(wireItems))
		for _, w := range wireItems {
			reports = append(reports, w.toReport())
		}
		return reports, nil
	}

	onRound := func(ctx context.Context, perServer [][]reconcile.Report) {
		grouped := make(map[string][]reconcile.Report)
		var order []string
		for _, reports := range perServer {
			for _, r := range reports {
				if _, seen := grouped[r.OrderID]; !seen {
					order = append(order, r.OrderID)
				}
				grouped[r.OrderID] = append(grouped[r.OrderID], r)
			}
		}
		sort.Strings(order)

		required := ComputeRequiredSignatures(threshold.Value, threshold.OracleCount)

		for _, orderID := range order {
			group := grouped[orderID]
			processGroup(ctx, orderID, group, repo, required, log)
		}
	}

	return sched.New("orders", servers, fetchOne, onRound, cfg)
}

func processGroup(ctx context.Context, orderID string, group []reconcile.Report, repo orders.Repository, required int, log *logger.Logger) {
	consensus, err := reconcile.Reconcile(group)
	if err != nil {
		log.Warn("reconcile failed", "orderId", orderID, "err", err.Error())
		return
	}

	existing, err := repo.FindByID(ctx, orderID)
	if err != nil {
		log.Warn("lookup failed", "orderId", orderID, "err", err.Error())
		return
	}
	if existing == nil {
		_, err := repo.Create(ctx, &domain.Order{
			ID:                  orderID,
			Source:              consensus.Source,
			Dest:                consensus.Dest,
			From:                consensus.From,
			To:                  consensus.To,
			Amount:              consensus.Amount,
			RelayerFee:          consensus.RelayerFee,
			OriginTrxHash:       consensus.OriginTrxHash,
			DestinationTrxHash:  consensus.DestinationTrxHash,
			OracleAcceptToRelay: consensus.OracleAcceptToRelay,
			Status:              consensus.Status,
		})
		if err != nil {
			log.Warn("create failed", "orderId", orderID, "err", err.Error())
			return
		}
	}

	counts, err := repo.AddSignatures(ctx, orderID, consensus.Signatures)
	if err != nil {
		log.Warn("addSignatures failed", "orderId", orderID, "err", err.Error())
		return
	}

	meetsThreshold := counts.Total >= required
	canBeRelayable := !consensus.Status.Terminal()
	newStatus := consensus.Status
	if meetsThreshold && canBeRelayable {
		newStatus = domain.StatusReadyForRelay
	}

	partial := orders.Partial{Status: &newStatus}
	if consensus.DestinationTrxHash != "" {
		destHash := consensus.DestinationTrxHash
		partial.DestinationTrxHash = &destHash
	}

	updated, err := repo.Update(ctx, orderID, partial)
	if err != nil {
		log.Warn("update failed", "orderId", orderID, "err", err.Error())
		return
	}
	if updated == nil {
		log.Warn("skipped missing order", "orderId", orderID)
	}
}
