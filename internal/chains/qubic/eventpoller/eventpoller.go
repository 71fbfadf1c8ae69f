// Package eventpoller implements the Chain-Q Event Poller (C12): a
// simple single-endpoint poll, deduplicated via the Events Repository
// (C5), per spec.md §4.12. Each round requests /events with no time
// window or cursor parameters.
package eventpoller

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/events"
	"github.com/avicenne-studio/bridge-hub/internal/httpclient"
	"github.com/avicenne-studio/bridge-hub/internal/sched"
	"github.com/avicenne-studio/bridge-hub/internal/wireshape"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

// wire is the raw /events payload shape for one chain-Q event.
type wire struct {
	TrxHash string `json:"trxHash"`
	Type    string `json:"type"` // lock | override-lock | unlock
	Nonce   string `json:"nonce"`
	Payload string `json:"payload"` // hex-encoded raw payload
}

// New builds the C12 poller. endpoint is the single chain-Q RPC origin.
func New(endpoint string, http *httpclient.Client, repo events.Repository, cfg sched.Config) *sched.Poller[[]wire] {
	log := logger.New("qubic.eventpoller")

	fetchOne := func(ctx context.Context, server string) ([]wire, error) {
		raw, err := httpclient.GetJSON[json.RawMessage](ctx, http, server, "/events", nil)
		if err != nil {
			return nil, err
		}

		items, ok, mismatch := wireshape.DecodeArrayOrEnvelope[wire](raw)
		if !ok {
			log.Warn("events payload schema mismatch", "payloadType", mismatch.PayloadType, "payloadKeys", mismatch.PayloadKeys)
			return nil, nil
		}

		filtered := make([]wire, 0, len(items))
		for _, it := range items {
			if it.TrxHash == "" {
				continue
			}
			filtered = append(filtered, it)
		}
		return filtered, nil
	}

	onRound := func(ctx context.Context, perServer [][]wire) {
		for _, items := range perServer {
			for _, it := range items {
				persist(ctx, it, repo, log)
			}
		}
	}

	return sched.New("qubic-events", []string{endpoint}, fetchOne, onRound, cfg)
}

func persist(ctx context.Context, it wire, repo events.Repository, log *logger.Logger) {
	payload, err := hex.DecodeString(it.Payload)
	if err != nil {
		log.Warn("malformed payload", "trxHash", it.TrxHash, "err", err.Error())
		return
	}

	stored, err := repo.Create(ctx, &domain.StoredEvent{
		Signature: it.TrxHash,
		Chain:     domain.ChainQ,
		Type:      domain.EventType(it.Type),
		Nonce:     it.Nonce,
		Payload:   payload,
	})
	if err != nil {
		log.Warn("create failed", "trxHash", it.TrxHash, "err", err.Error())
		return
	}
	if stored == nil {
		log.Debug("duplicate event skipped", "trxHash", it.TrxHash)
	}
}
