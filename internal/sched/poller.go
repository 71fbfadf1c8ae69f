// Package sched provides the Clock & Scheduler (C1): cancellable sleeps
// and the Poller abstraction used by the fan-out components C8, C9 and
// C12 (the chain-S tx poller and WS listener run their own loops).
package sched

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
// Returns ctx.Err() on cancellation, nil on normal expiry.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchFunc fetches one round's result from a single server. It must
// honor ctx's deadline and return an error on failure; the poller
// swallows the error at the round boundary (spec.md §4.1).
type FetchFunc[T any] func(ctx context.Context, server string) (T, error)

// OnRoundFunc is invoked exactly once per completed round, with every
// successful fetch result from that round (order-independent).
type OnRoundFunc[T any] func(ctx context.Context, successes []T)

// Config parameterizes a Poller.
type Config struct {
	IntervalMs       int
	RequestTimeoutMs int
	JitterMs         int
}

// Poller runs a single-threaded cooperative round loop over a fixed set
// of servers: optional jitter, concurrent fan-out with a per-request
// deadline, then onRound with the survivors (spec.md §4.1).
type Poller[T any] struct {
	name     string
	servers  []string
	fetchOne FetchFunc[T]
	onRound  OnRoundFunc[T]
	cfg      Config
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New constructs a Poller. servers must be non-empty.
func New[T any](name string, servers []string, fetchOne FetchFunc[T], onRound OnRoundFunc[T], cfg Config) *Poller[T] {
	if len(servers) == 0 {
		panic(fmt.Sprintf("sched: poller %q started with an empty server set", name))
	}
	return &Poller[T]{
		name:     name,
		servers:  servers,
		fetchOne: fetchOne,
		onRound:  onRound,
		cfg:      cfg,
		log:      logger.New("sched." + name),
	}
}

// Start spawns the round loop. Calling Start twice without an
// intervening Stop is a programmer error and panics (spec.md §4.1).
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		panic(fmt.Sprintf("sched: poller %q started twice", p.name))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(loopCtx)
}

// Stop cancels the current round's in-flight work and waits for the
// loop to exit. Idempotent; safe to call even if Start was never called.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Poller[T]) loop(ctx context.Context) {
	defer close(p.done)

	for {
		start := time.Now()

		if p.cfg.JitterMs > 0 {
			jitter := time.Duration(rand.Intn(p.cfg.JitterMs+1)) * time.Millisecond
			if err := Sleep(ctx, jitter); err != nil {
				return
			}
		}

		successes, ok := p.runRound(ctx)
		if !ok {
			return
		}
		p.onRound(ctx, successes)

		elapsed := time.Since(start)
		interval := time.Duration(p.cfg.IntervalMs) * time.Millisecond
		remaining := interval - elapsed
		if remaining < 0 {
			remaining = 0
		}
		if err := Sleep(ctx, remaining); err != nil {
			return
		}
	}
}

// runRound fans out to every server concurrently and collects the
// successes. The bool return is false when the round itself was
// cancelled before completing (so the caller must not invoke onRound).
func (p *Poller[T]) runRound(ctx context.Context) ([]T, bool) {
	type result struct {
		val T
		err error
	}

	results := make([]result, len(p.servers))
	var wg sync.WaitGroup
	timeout := time.Duration(p.cfg.RequestTimeoutMs) * time.Millisecond

	for i, server := range p.servers {
		wg.Add(1)
		go func(i int, server string) {
			defer wg.Done()
			reqCtx := ctx
			var cancel context.CancelFunc
			if timeout > 0 {
				reqCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			val, err := p.fetchOne(reqCtx, server)
			results[i] = result{val: val, err: err}
		}(i, server)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, false
	}

	successes := make([]T, 0, len(results))
	for i, r := range results {
		if r.err != nil {
			p.log.Warn("fetch failed", "server", p.servers[i], "err", r.err.Error())
			continue
		}
		successes = append(successes, r.val)
	}
	return successes, true
}
