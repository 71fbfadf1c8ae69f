package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleep_ReturnsOnExpiry(t *testing.T) {
	err := Sleep(context.Background(), time.Millisecond)
	assert.NoError(t, err)
}

func TestSleep_ReturnsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

// Property 8: of K servers, if F<K fail, onRound sees exactly K-F successes.
func TestPoller_FanOutPartialFailure(t *testing.T) {
	servers := []string{"s1", "s2", "s3", "s4"}
	failing := map[string]bool{"s2": true}

	var roundsMu sync.Mutex
	var rounds [][]string

	fetch := func(ctx context.Context, server string) (string, error) {
		if failing[server] {
			return "", errors.New("boom")
		}
		return server, nil
	}

	done := make(chan struct{}, 1)
	onRound := func(ctx context.Context, successes []string) {
		roundsMu.Lock()
		rounds = append(rounds, append([]string(nil), successes...))
		roundsMu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}

	p := New("test", servers, fetch, onRound, Config{IntervalMs: 1000, RequestTimeoutMs: 100})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("round never completed")
	}

	roundsMu.Lock()
	defer roundsMu.Unlock()
	require.NotEmpty(t, rounds)
	assert.Len(t, rounds[0], 3)
	assert.NotContains(t, rounds[0], "s2")
}

// Property 9: after Stop() completes, no further onRound invocation
// happens and the loop goroutine has exited.
func TestPoller_StopPreventsFurtherRounds(t *testing.T) {
	var roundCount int32

	fetch := func(ctx context.Context, server string) (int, error) { return 1, nil }
	onRound := func(ctx context.Context, successes []int) {
		atomic.AddInt32(&roundCount, 1)
	}

	p := New("test", []string{"only"}, fetch, onRound, Config{IntervalMs: 5, RequestTimeoutMs: 50})
	p.Start(context.Background())

	time.Sleep(30 * time.Millisecond)
	p.Stop()

	countAtStop := atomic.LoadInt32(&roundCount)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, countAtStop, atomic.LoadInt32(&roundCount))
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	fetch := func(ctx context.Context, server string) (int, error) { return 1, nil }
	onRound := func(ctx context.Context, successes []int) {}

	p := New("test", []string{"only"}, fetch, onRound, Config{IntervalMs: 1000})
	p.Start(context.Background())
	p.Stop()
	assert.NotPanics(t, func() { p.Stop() })
}

func TestPoller_StartTwicePanics(t *testing.T) {
	fetch := func(ctx context.Context, server string) (int, error) { return 1, nil }
	onRound := func(ctx context.Context, successes []int) {}

	p := New("test", []string{"only"}, fetch, onRound, Config{IntervalMs: 1000})
	p.Start(context.Background())
	defer p.Stop()

	assert.Panics(t, func() { p.Start(context.Background()) })
}

func TestNew_EmptyServersPanics(t *testing.T) {
	fetch := func(ctx context.Context, server string) (int, error) { return 1, nil }
	onRound := func(ctx context.Context, successes []int) {}
	assert.Panics(t, func() { New("test", nil, fetch, onRound, Config{}) })
}
