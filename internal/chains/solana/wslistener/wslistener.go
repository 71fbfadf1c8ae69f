// Package wslistener implements the Chain-S WebSocket Log Listener
// (C11): a logsSubscribe client with primary/fallback failover,
// exponential-backoff reconnect, and a single-consumer FIFO dispatch
// queue, per spec.md §4.11. Connection/backoff plumbing is grounded on
// explorer/indexer/internal/subscriber/subscriber.go's
// dial/subscribe/listen/reconnect shape, generalized to a state machine
// with primary/fallback failover that the teacher's subscriber doesn't
// need.
package wslistener

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avicenne-studio/bridge-hub/internal/chains/solana/decode"
	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/events"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

// State is one node of the connection state machine described in
// spec.md §4.11.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateSubscribing State = "subscribing"
	StateSubscribed  State = "subscribed"
	StateClosed      State = "closed"
)

// Config tunes reconnect timing and failover.
type Config struct {
	PrimaryURL                    string
	FallbackURL                   string // optional; empty disables failover
	ProgramAddress                string
	ReconnectBaseMs               int
	ReconnectMaxMs                int
	FallbackRetryMs               int // "try primary again" timer; default 60s
	ConsecutiveFailuresToFallback int // default 3
	QueueSize                     int // default 256
}

func (c Config) withDefaults() Config {
	if c.ReconnectBaseMs == 0 {
		c.ReconnectBaseMs = 500
	}
	if c.ReconnectMaxMs == 0 {
		c.ReconnectMaxMs = 30_000
	}
	if c.FallbackRetryMs == 0 {
		c.FallbackRetryMs = 60_000
	}
	if c.ConsecutiveFailuresToFallback == 0 {
		c.ConsecutiveFailuresToFallback = 3
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	return c
}

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type subscribeConfirm struct {
	ID     *int   `json:"id"`
	Result *int64 `json:"result"`
}

type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Value notificationValue `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

type notificationValue struct {
	Err  json.RawMessage `json:"err"`
	Logs []string        `json:"logs"`
}

// task is one decoded event queued for sequential persistence.
type task struct {
	ev *decode.Event
}

// Listener is the C11 WS client.
type Listener struct {
	cfg  Config
	repo events.Repository
	log  *logger.Logger

	mu               sync.Mutex
	state            State
	conn             *websocket.Conn
	subscriptionID   int64
	usingFallback    bool
	fallbackSince    time.Time
	consecutiveFails int
	reconnectAttempt int

	queue chan task

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	consDone  chan struct{}
	running   bool
}

func New(cfg Config, repo events.Repository) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		cfg:   cfg,
		repo:  repo,
		log:   logger.New("wslistener"),
		state: StateIdle,
		queue: make(chan task, cfg.QueueSize),
	}
}

// Start spawns the connection loop and the FIFO consumer.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if l.running {
		panic("wslistener: started twice")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.consDone = make(chan struct{})
	l.running = true

	go l.consume(loopCtx)
	go l.connectionLoop(loopCtx)
}

// Stop cancels all reconnect timers, unsubscribes if connected, and
// waits for both the connection loop and the consumer to exit.
func (l *Listener) Stop() {
	l.lifecycle.Lock()
	if !l.running {
		l.lifecycle.Unlock()
		return
	}
	cancel, done, consDone := l.cancel, l.done, l.consDone
	l.running = false
	l.lifecycle.Unlock()

	cancel()
	<-done
	close(l.queue)
	<-consDone
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// connectionLoop owns exactly one pending reconnect attempt at a time,
// per spec.md §9's "single scheduler" guard against duplicate reconnect
// storms.
func (l *Listener) connectionLoop(ctx context.Context) {
	defer close(l.done)
	defer l.setState(StateClosed)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := l.runConnection(ctx); err != nil {
			l.log.Warn("connection ended", "err", err.Error())
			l.onConnectionFailure()
		}

		if ctx.Err() != nil {
			return
		}

		delay := l.backoffDelay()
		if err := sleepCtx(ctx, delay); err != nil {
			return
		}
	}
}

func (l *Listener) currentURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	// "Try primary again" timer: once enough time has passed on the
	// fallback, give the primary another shot (spec.md §4.11).
	if l.usingFallback && time.Since(l.fallbackSince) >= time.Duration(l.cfg.FallbackRetryMs)*time.Millisecond {
		l.usingFallback = false
		l.consecutiveFails = 0
	}

	if l.usingFallback && l.cfg.FallbackURL != "" {
		return l.cfg.FallbackURL
	}
	return l.cfg.PrimaryURL
}

func (l *Listener) onConnectionFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveFails++
	l.reconnectAttempt++
	if !l.usingFallback && l.cfg.FallbackURL != "" && l.consecutiveFails >= l.cfg.ConsecutiveFailuresToFallback {
		l.usingFallback = true
		l.fallbackSince = time.Now()
		l.consecutiveFails = 0
	}
}

func (l *Listener) onConnectionSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveFails = 0
	l.reconnectAttempt = 0
}

func (l *Listener) backoffDelay() time.Duration {
	l.mu.Lock()
	attempt := l.reconnectAttempt
	l.mu.Unlock()

	base := time.Duration(l.cfg.ReconnectBaseMs) * time.Millisecond
	max := time.Duration(l.cfg.ReconnectMaxMs) * time.Millisecond
	delay := base * time.Duration(1<<uint(minInt(attempt, 20)))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// runConnection dials, subscribes, and reads until the connection ends
// (error, or ctx cancellation). Returns nil only on a clean shutdown.
func (l *Listener) runConnection(ctx context.Context) error {
	l.setState(StateConnecting)
	url := l.currentURL()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		c := l.conn
		l.conn = nil
		l.mu.Unlock()
		if c != nil {
			c.Close()
		}
	}()

	l.setState(StateSubscribing)
	if err := l.subscribe(conn); err != nil {
		return err
	}
	l.setState(StateSubscribed)
	l.onConnectionSuccess()

	return l.readLoop(ctx, conn)
}

func (l *Listener) subscribe(conn *websocket.Conn) error {
	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{l.cfg.ProgramAddress}},
			map[string]interface{}{"commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return err
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	var confirm subscribeConfirm
	if err := json.Unmarshal(msg, &confirm); err != nil {
		return err
	}
	if confirm.Result != nil {
		l.mu.Lock()
		l.subscriptionID = *confirm.Result
		l.mu.Unlock()
	}
	return nil
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.unsubscribeAndClose(conn)
		case <-stop:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		l.handleMessage(msg)
	}
}

func (l *Listener) handleMessage(msg []byte) {
	var notif logsNotification
	if err := json.Unmarshal(msg, &notif); err != nil {
		l.log.Warn("malformed notification", "err", err.Error())
		return
	}
	if notif.Method != "logsNotification" {
		return
	}

	value := notif.Params.Result.Value
	if len(value.Err) == 0 {
		return // missing -> ignore
	}
	if string(value.Err) != "null" {
		return // present and non-null -> tx failed, ignore
	}

	for _, line := range value.Logs {
		if !strings.HasPrefix(line, "Program data: ") {
			continue
		}
		ev, ok := decode.DecodeLogLine(line)
		if !ok {
			continue
		}
		// Inbound events are left to the HTTP poller to avoid double
		// ingest (spec.md §4.11, open question §9 #1 — resolved OFF).
		if ev.Type == domain.EventInbound {
			continue
		}
		select {
		case l.queue <- task{ev: ev}:
		default:
			l.log.Warn("dispatch queue full, dropping event", "nonce", ev.NonceHex())
		}
	}
}

// consume is the single FIFO reader; it preserves relative ordering of
// events within and across notifications on this connection.
func (l *Listener) consume(ctx context.Context) {
	defer close(l.consDone)
	for t := range l.queue {
		l.persist(ctx, t.ev)
	}
}

func (l *Listener) persist(ctx context.Context, ev *decode.Event) {
	payload, err := encodeEventPayload(ev)
	if err != nil {
		l.log.Warn("encode payload failed", "err", err.Error())
		return
	}
	// WS notifications carry no transaction signature distinct from the
	// log itself, so the nonce stands in here while the tx poller keys
	// the same event on tx.Signature; the two paths only converge for
	// outbound/override events, where WS ingestion is the sole producer
	// (inbound stays poller-only, see the open-question decision).
	stored, err := l.repo.Create(ctx, &domain.StoredEvent{
		Signature: ev.NonceHex(),
		Chain:     domain.ChainS,
		Type:      ev.Type,
		Nonce:     ev.NonceHex(),
		Payload:   payload,
	})
	if err != nil {
		l.log.Warn("create failed", "err", err.Error())
		return
	}
	if stored == nil {
		l.log.Debug("duplicate event skipped", "nonce", ev.NonceHex())
	}
}

func encodeEventPayload(ev *decode.Event) ([]byte, error) {
	switch {
	case ev.Outbound != nil:
		return json.Marshal(ev.Outbound)
	case ev.Override != nil:
		return json.Marshal(ev.Override)
	default:
		return nil, errNoPayload
	}
}

var errNoPayload = jsonErr("decoded event has no payload")

type jsonErr string

func (e jsonErr) Error() string { return string(e) }

func (l *Listener) unsubscribeAndClose(conn *websocket.Conn) {
	l.mu.Lock()
	subID := l.subscriptionID
	subscribed := l.state == StateSubscribed
	l.mu.Unlock()

	if subscribed && subID != 0 {
		req := subscribeRequest{JSONRPC: "2.0", ID: 2, Method: "logsUnsubscribe", Params: []interface{}{subID}}
		_ = conn.WriteJSON(req)
	}
	conn.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
