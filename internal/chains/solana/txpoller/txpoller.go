// Package txpoller implements the Chain-S Transaction Poller (C10): a
// paginated, time-windowed sweep with tiered backoff and overlap on
// failure, deduplicated via the Events Repository (C5), per spec.md
// §4.10.
package txpoller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avicenne-studio/bridge-hub/internal/chains/solana/decode"
	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/events"
	"github.com/avicenne-studio/bridge-hub/internal/httpclient"
	"github.com/avicenne-studio/bridge-hub/internal/sched"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

// overlapWindow is the fixed look-back applied after a failed round, so
// restarts/outages never lose events spanning them (spec.md §4.10).
const overlapWindow = 60 * time.Second

// backoffMultipliers is the tiered interval stretch applied on quiet
// rounds (spec.md §4.10): tier 0 -> 1x, 1 -> 2x, 2 -> 3x (capped).
var backoffMultipliers = []int{1, 2, 3}

// Config parameterizes the poller's timing.
type Config struct {
	IntervalMs   int
	TimeoutMs    int
	RetryDelayMs int
	TokenMint    string
	PageRetries  int // additional attempts per page beyond the first; default 2
}

func (c Config) withDefaults() Config {
	if c.PageRetries == 0 {
		c.PageRetries = 2
	}
	return c
}

// txMeta is the subset of a transaction's metadata the poller inspects.
type txMeta struct {
	Err         interface{} `json:"err"`
	LogMessages []string    `json:"logMessages"`
}

// TxWire is one transaction as returned by the chain-S RPC.
type TxWire struct {
	Signature string `json:"signature"`
	Slot      int64  `json:"slot"`
	Meta      txMeta `json:"meta"`
}

// pageResponse is {data, paginationToken?} (spec.md §4.10).
type pageResponse struct {
	Data            []TxWire `json:"data"`
	PaginationToken *string  `json:"paginationToken"`
}

// Poller is the chain-S transaction poller. Unlike C8/C9/C11/C12 it
// targets a single logical RPC endpoint with pagination and window
// state that doesn't fit the generic sched.Poller fan-out shape, so it
// owns its own round loop built the same way (context + cancel +
// done-channel) as sched.Poller and the WS listener's reconnect loop.
type Poller struct {
	rpcOrigin string
	http      *httpclient.Client
	repo      events.Repository
	cfg       Config
	log       *logger.Logger

	mu             sync.Mutex
	tier           int
	degraded       bool
	lastSuccessEnd time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	running   bool
}

func New(rpcOrigin string, http *httpclient.Client, repo events.Repository, cfg Config) *Poller {
	return &Poller{
		rpcOrigin:      rpcOrigin,
		http:           http,
		repo:           repo,
		cfg:            cfg.withDefaults(),
		log:            logger.New("txpoller"),
		lastSuccessEnd: time.Now(),
	}
}

// Start spawns the round loop. Calling Start twice without an
// intervening Stop panics, matching sched.Poller's contract.
func (p *Poller) Start(ctx context.Context) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.running {
		panic("txpoller: started twice")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	go p.loop(loopCtx)
}

// Stop cancels in-flight work and waits for the loop to exit. Idempotent.
func (p *Poller) Stop() {
	p.lifecycle.Lock()
	if !p.running {
		p.lifecycle.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.lifecycle.Unlock()

	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	for {
		start := time.Now()
		interval := p.currentInterval()

		if err := p.runRound(ctx); err != nil {
			p.log.Warn("round failed", "err", err.Error())
		}

		if ctx.Err() != nil {
			return
		}

		elapsed := time.Since(start)
		remaining := interval - elapsed
		if remaining < 0 {
			remaining = 0
		}
		if err := sched.Sleep(ctx, remaining); err != nil {
			return
		}
	}
}

func (p *Poller) currentInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.cfg.IntervalMs
	if base <= 0 {
		base = 1000
	}
	return time.Duration(base*backoffMultipliers[p.tier]) * time.Millisecond
}

// window computes this round's time bounds, switching to degraded
// (overlap) mode if the previous round failed.
func (p *Poller) window() (time.Time, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.degraded {
		return p.lastSuccessEnd.Add(-overlapWindow), now
	}
	intervalSeconds := p.cfg.IntervalMs / 1000
	if intervalSeconds == 0 {
		intervalSeconds = 1
	}
	lookback := time.Duration(intervalSeconds)*time.Second + overlapWindow
	return now.Add(-lookback), now
}

func (p *Poller) onRoundSuccess(end time.Time, sawTransactions bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.degraded = false
	p.lastSuccessEnd = end
	if sawTransactions {
		p.tier = 0
		return
	}
	if p.tier < len(backoffMultipliers)-1 {
		p.tier++
	}
}

func (p *Poller) onRoundFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tier = 0
	p.degraded = true
}

// runRound executes one full paginated sweep.
func (p *Poller) runRound(ctx context.Context) error {
	start, end := p.window()

	var wg sync.WaitGroup
	var totalSeen int32
	token := ""

	for {
		page, err := p.fetchPageWithRetry(ctx, start, end, token)
		if err != nil {
			wg.Wait()
			p.onRoundFailure()
			return err
		}

		atomic.AddInt32(&totalSeen, int32(len(page.Data)))

		if len(page.Data) > 0 {
			survivors := p.dedupe(ctx, page.Data)
			for _, tx := range survivors {
				wg.Add(1)
				go func(tx TxWire) {
					defer wg.Done()
					p.processTx(ctx, tx)
				}(tx)
			}
		}

		if page.PaginationToken == nil {
			break
		}
		token = *page.PaginationToken
	}

	wg.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.onRoundSuccess(end, totalSeen > 0)
	return nil
}

func (p *Poller) dedupe(ctx context.Context, txs []TxWire) []TxWire {
	sigs := make([]string, len(txs))
	for i, tx := range txs {
		sigs[i] = tx.Signature
	}
	existing, err := p.repo.FindExistingSignatures(ctx, sigs)
	if err != nil {
		p.log.Warn("dedup lookup failed", "err", err.Error())
		return txs
	}
	survivors := make([]TxWire, 0, len(txs))
	for _, tx := range txs {
		if !existing[tx.Signature] {
			survivors = append(survivors, tx)
		}
	}
	return survivors
}

func (p *Poller) fetchPageWithRetry(ctx context.Context, start, end time.Time, token string) (pageResponse, error) {
	attempts := 1 + p.cfg.PageRetries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.retryDelay()
			if err := sched.Sleep(ctx, delay); err != nil {
				return pageResponse{}, err
			}
		}

		page, err := p.fetchPage(ctx, start, end, token)
		if err == nil {
			return page, nil
		}
		lastErr = err
	}
	return pageResponse{}, fmt.Errorf("fetching page after %d attempts: %w", attempts, lastErr)
}

func (p *Poller) retryDelay() time.Duration {
	base := time.Duration(p.cfg.RetryDelayMs) * time.Millisecond
	if base <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Float64() * float64(base))
	return base + jitter
}

func (p *Poller) fetchPage(ctx context.Context, start, end time.Time, token string) (pageResponse, error) {
	path := fmt.Sprintf("/transactions?from=%d&to=%d&tokenMint=%s", start.Unix(), end.Unix(), p.cfg.TokenMint)
	if token != "" {
		path += "&paginationToken=" + token
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.TimeoutMs > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	raw, err := httpclient.GetJSON[json.RawMessage](reqCtx, p.http, p.rpcOrigin, path, nil)
	if err != nil {
		return pageResponse{}, err
	}
	var page pageResponse
	if err := json.Unmarshal(raw, &page); err != nil {
		return pageResponse{}, fmt.Errorf("decoding page: %w", err)
	}
	return page, nil
}

func (p *Poller) processTx(ctx context.Context, tx TxWire) {
	if tx.Meta.Err != nil || len(tx.Meta.LogMessages) == 0 {
		return
	}

	for _, line := range tx.Meta.LogMessages {
		if !strings.HasPrefix(line, "Program data: ") {
			continue
		}
		ev, ok := decode.DecodeLogLine(line)
		if !ok {
			continue
		}
		p.persist(ctx, tx, ev)
	}
}

func (p *Poller) persist(ctx context.Context, tx TxWire, ev *decode.Event) {
	payload, err := encodePayload(ev)
	if err != nil {
		p.log.Warn("encoding payload failed", "signature", tx.Signature, "err", err.Error())
		return
	}

	slot := tx.Slot
	stored, err := p.repo.Create(ctx, &domain.StoredEvent{
		Signature: tx.Signature,
		Slot:      &slot,
		Chain:     domain.ChainS,
		Type:      ev.Type,
		Nonce:     ev.NonceHex(),
		Payload:   payload,
	})
	if err != nil {
		p.log.Warn("create failed", "signature", tx.Signature, "err", err.Error())
		return
	}
	if stored == nil {
		p.log.Debug("duplicate event skipped", "signature", tx.Signature)
	}
}

func encodePayload(ev *decode.Event) ([]byte, error) {
	switch {
	case ev.Outbound != nil:
		return json.Marshal(ev.Outbound)
	case ev.Override != nil:
		return json.Marshal(ev.Override)
	default:
		return nil, fmt.Errorf("decoded event has no payload")
	}
}
