package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bustrack/internal/metrics"
	"bustrack/internal/model"
)

const (
	readWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	ackTimeout     = 5 * time.Second
	manualAttempts = 10
	manualInterval = time.Second
)

// Options configures a hub connection.
type Options struct {
	Endpoint string
	Token    string

	// MaxReconnectAttempts bounds the automatic retry loop (default 5).
	MaxReconnectAttempts int
	// MonitorInterval is the reconciliation tick (default 5s).
	MonitorInterval time.Duration
	// LocationInterval caps outbound location pushes (default 5s).
	LocationInterval time.Duration
	// RetryInitialInterval and RetryMaxInterval shape the reconnect
	// backoff (defaults 1s and 30s; delays double and never decrease).
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	Log zerolog.Logger
}

// Conn owns one persistent socket per hub endpoint. All methods are safe
// for concurrent use; at most one live socket exists per Conn.
type Conn struct {
	endpoint     string
	token        string
	maxReconnect int
	monitorEvery time.Duration
	retryInitial time.Duration
	retryMax     time.Duration
	log          zerolog.Logger
	dialer       *websocket.Dialer
	limiter      *rate.Limiter
	dispatcher   *Dispatcher

	mu        sync.Mutex
	ws        *websocket.Conn
	state     ConnState
	dialed    bool // a connection attempt has been made at least once
	closed    bool // Stop was called and no Connect since
	retrying  bool // automatic retry loop in flight
	exhausted bool // automatic budget spent since the last explicit Connect
	monitorOn bool
	stopCh    chan struct{}
	invSeq    uint64
	pending   map[string]chan error
	stateFns  []func(ConnState)

	// wmu serializes socket writes; gorilla allows one writer at a time.
	wmu sync.Mutex
}

func NewConn(opts Options) *Conn {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = 5 * time.Second
	}
	if opts.LocationInterval <= 0 {
		opts.LocationInterval = 5 * time.Second
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = time.Second
	}
	if opts.RetryMaxInterval <= 0 {
		opts.RetryMaxInterval = 30 * time.Second
	}
	log := opts.Log.With().Str("component", "hub").Logger()
	return &Conn{
		endpoint:     opts.Endpoint,
		token:        opts.Token,
		maxReconnect: opts.MaxReconnectAttempts,
		monitorEvery: opts.MonitorInterval,
		retryInitial: opts.RetryInitialInterval,
		retryMax:     opts.RetryMaxInterval,
		log:          log,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		limiter:      rate.NewLimiter(rate.Every(opts.LocationInterval), 1),
		dispatcher:   newDispatcher(log),
		stopCh:       make(chan struct{}),
		pending:      map[string]chan error{},
	}
}

// State returns the current lifecycle state without blocking.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) IsConnected() bool { return c.State() == StateConnected }

// Exhausted reports whether the automatic reconnect budget has been spent
// since the last explicit Connect.
func (c *Conn) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// OnStateChange registers a hook observing every state transition. Hooks
// run outside the connection lock and must not block for long.
func (c *Conn) OnStateChange(fn func(ConnState)) {
	c.mu.Lock()
	c.stateFns = append(c.stateFns, fn)
	c.mu.Unlock()
}

// Connect dials the hub. It is idempotent: while connected, connecting or
// auto-reconnecting it returns immediately without a second socket. On
// failure the state returns to Disconnected and the error is surfaced to
// the caller, never swallowed.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	c.dialed = true
	c.exhausted = false
	if c.closed {
		c.closed = false
		c.stopCh = make(chan struct{})
	}
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	ws, err := c.dial(ctx)
	c.mu.Lock()
	if err != nil {
		notify = c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify()
		return err
	}
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return ErrNotConnected
	}
	c.adoptLocked(ws)
	notify = c.setStateLocked(StateConnected)
	c.mu.Unlock()
	notify()
	c.log.Info().Str("endpoint", c.endpoint).Msg("hub connected")
	return nil
}

// Stop tears the socket down deterministically. It always succeeds, even
// when the socket is already gone, and releases the monitor and any retry
// timers. A later explicit Connect brings the connection back.
func (c *Conn) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.retrying = false
	c.monitorOn = false
	ws := c.ws
	c.ws = nil
	close(c.stopCh)
	c.failPendingLocked(ErrNotConnected)
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	notify()

	if ws != nil {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = ws.Close()
	}
	c.log.Info().Msg("hub stopped")
}

// EnsureConnected is the caller-driven recovery tier for consumers that
// need a guaranteed-live connection, e.g. before joining a room. It polls
// on a fixed cadence up to a small ceiling and only issues its own Connect
// while the automatic retry tier is idle. Its budget is independent of the
// automatic one; the two tiers are never merged.
func (c *Conn) EnsureConnected(ctx context.Context) error {
	for i := 0; i < manualAttempts; i++ {
		if c.IsConnected() {
			return nil
		}
		c.mu.Lock()
		idle := c.state == StateDisconnected && !c.retrying
		c.mu.Unlock()
		if idle {
			if err := c.Connect(ctx); err == nil {
				return nil
			} else {
				c.log.Warn().Err(err).Int("attempt", i+1).Msg("manual recovery connect failed")
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(manualInterval):
		}
	}
	return fmt.Errorf("manual recovery gave up: %w", ErrNotConnected)
}

// On registers the handler for an inbound event, replacing any previous
// one. Before any connection attempt has been made this is a warning
// no-op: UI mount order is not guaranteed relative to connection readiness.
func (c *Conn) On(event string, h Handler) {
	c.mu.Lock()
	dialed := c.dialed
	c.mu.Unlock()
	if !dialed {
		c.log.Warn().Str("event", event).Msg("subscribe before any connection attempt, ignoring")
		return
	}
	c.dispatcher.on(event, h)
}

// Off removes the handler for an event; safe when never registered.
func (c *Conn) Off(event string) {
	c.dispatcher.off(event)
}

// JoinTrip subscribes this connection to a trip's room. Requires Connected;
// otherwise it warns and no-ops so unmount paths never throw. The join is
// server-acknowledged: membership is only certain once the completion
// arrives. Rooms are not re-joined automatically after a reconnect.
func (c *Conn) JoinTrip(tripID string) error {
	return c.invoke(TargetJoinTrip, roomPayload{TripID: tripID})
}

// LeaveTrip leaves a trip's room; same contract as JoinTrip.
func (c *Conn) LeaveTrip(tripID string) error {
	return c.invoke(TargetLeaveTrip, roomPayload{TripID: tripID})
}

type roomPayload struct {
	TripID string `json:"tripId"`
}

// ValidTripID reports whether s is a canonical lowercase hyphenated
// 8-4-4-4-12 hex identifier.
func ValidTripID(s string) bool {
	if len(s) != 36 || s != strings.ToLower(s) {
		return false
	}
	u, err := uuid.Parse(s)
	return err == nil && u.String() == s
}

// SendLocation pushes a vehicle position to the hub. Malformed trip ids
// are rejected before anything reaches the socket; sends are capped at one
// per configured interval, dropping extras quietly.
func (c *Conn) SendLocation(sample model.LocationSample) error {
	if !ValidTripID(sample.TripID) {
		metrics.LocationsSent.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %q", ErrInvalidTripID, sample.TripID)
	}
	c.mu.Lock()
	ws := c.ws
	connected := c.state == StateConnected && ws != nil
	exhausted := c.exhausted
	c.mu.Unlock()
	if !connected {
		metrics.LocationsSent.WithLabelValues("dropped").Inc()
		if exhausted {
			return ErrRetryExhausted
		}
		return ErrNotConnected
	}
	if !c.limiter.Allow() {
		metrics.LocationsSent.WithLabelValues("throttled").Inc()
		return nil
	}
	payload, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	if err := c.write(ws, Frame{Type: frameInvocation, Target: TargetSendLocation, Payload: payload}); err != nil {
		metrics.LocationsSent.WithLabelValues("error").Inc()
		return err
	}
	metrics.LocationsSent.WithLabelValues("sent").Inc()
	return nil
}

func (c *Conn) invoke(target string, payload any) error {
	c.mu.Lock()
	if c.state != StateConnected || c.ws == nil {
		c.mu.Unlock()
		c.log.Warn().Str("target", target).Str("state", c.State().String()).
			Msg("hub not connected, ignoring invocation")
		return nil
	}
	c.invSeq++
	id := strconv.FormatUint(c.invSeq, 10)
	ch := make(chan error, 1)
	c.pending[id] = ch
	ws := c.ws
	c.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		c.dropPending(id)
		return err
	}
	if err := c.write(ws, Frame{Type: frameInvocation, ID: id, Target: target, Payload: body}); err != nil {
		c.dropPending(id)
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-time.After(ackTimeout):
		c.dropPending(id)
		return fmt.Errorf("%s: server ack timeout", target)
	}
}

func (c *Conn) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// dial opens the websocket with the bearer token. An HTTP 401/403 upgrade
// rejection surfaces as ErrUnauthorized and must not be retried.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+c.token)
	ws, resp, err := c.dialer.DialContext(ctx, c.endpoint, hdr)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("dial %s: %w", c.endpoint, ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	return ws, nil
}

// adoptLocked installs a freshly dialed socket and starts its read pump
// and, once per Conn lifecycle, the reconciliation monitor.
func (c *Conn) adoptLocked(ws *websocket.Conn) {
	c.ws = ws
	go c.readPump(ws)
	c.startMonitorLocked()
}

func (c *Conn) readPump(ws *websocket.Conn) {
	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			c.handleDrop(ws, err)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		switch f.Type {
		case frameInvocation:
			// Delivered in receipt order: this loop is the only caller.
			c.dispatcher.dispatch(f.Target, f.Payload)
		case frameCompletion:
			c.resolve(f)
		case framePing:
			_ = c.write(ws, Frame{Type: framePong})
		}
	}
}

func (c *Conn) resolve(f Frame) {
	c.mu.Lock()
	ch := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()
	if ch == nil {
		return
	}
	if f.Error != "" {
		ch <- fmt.Errorf("hub rejected invocation: %s", f.Error)
		return
	}
	ch <- nil
}

func (c *Conn) failPendingLocked(err error) {
	for id, ch := range c.pending {
		delete(c.pending, id)
		select {
		case ch <- err:
		default:
		}
	}
}

// handleDrop runs when a read pump exits. Replaced or deliberately stopped
// sockets are ignored; an unexpected drop of the current socket starts the
// supervised automatic retry loop.
func (c *Conn) handleDrop(ws *websocket.Conn, err error) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.failPendingLocked(ErrNotConnected)
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.retrying = true
	notify := c.setStateLocked(StateReconnecting)
	stop := c.stopCh
	c.mu.Unlock()
	notify()
	c.log.Warn().Err(err).Msg("hub connection dropped, starting automatic reconnect")
	go c.retryLoop(stop)
}

// retryLoop is the automatic tier: bounded attempts with capped exponential
// delay. Exhaustion is terminal until a fresh explicit Connect.
func (c *Conn) retryLoop(stop <-chan struct{}) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxInterval = c.retryMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	for attempt := 1; attempt <= c.maxReconnect; attempt++ {
		select {
		case <-stop:
			return
		case <-time.After(bo.NextBackOff()):
		}
		c.mu.Lock()
		if c.closed || c.state != StateReconnecting {
			c.retrying = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ws, err := c.dial(context.Background())
		if err != nil {
			metrics.ReconnectAttempts.WithLabelValues("failure").Inc()
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			continue
		}
		metrics.ReconnectAttempts.WithLabelValues("success").Inc()
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = ws.Close()
			return
		}
		c.adoptLocked(ws)
		c.retrying = false
		notify := c.setStateLocked(StateConnected)
		c.mu.Unlock()
		notify()
		c.log.Info().Int("attempt", attempt).Msg("hub reconnected")
		return
	}

	c.mu.Lock()
	c.retrying = false
	c.exhausted = true
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	notify()
	c.log.Error().Int("attempts", c.maxReconnect).Msg("automatic reconnect exhausted")
}

// startMonitorLocked launches the low-frequency reconciliation monitor,
// the single resync point between the transport's authoritative state and
// the published state.
func (c *Conn) startMonitorLocked() {
	if c.monitorOn {
		return
	}
	c.monitorOn = true
	stop := c.stopCh
	every := c.monitorEvery
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				c.reconcile()
			}
		}
	}()
}

// reconcile corrects drift in either direction between the socket and the
// published state. Reconnect events can land out of order with consumer
// polling; this tick is where the two views converge.
func (c *Conn) reconcile() {
	c.mu.Lock()
	ws := c.ws
	state := c.state
	c.mu.Unlock()

	switch {
	case state == StateConnected && ws == nil:
		c.mu.Lock()
		if c.state == StateConnected && c.ws == nil && !c.retrying && !c.closed {
			c.retrying = true
			notify := c.setStateLocked(StateReconnecting)
			stop := c.stopCh
			c.mu.Unlock()
			notify()
			c.log.Warn().Msg("monitor: state ahead of transport, reconnecting")
			go c.retryLoop(stop)
			return
		}
		c.mu.Unlock()
	case state == StateDisconnected && ws != nil:
		c.mu.Lock()
		if c.state == StateDisconnected && c.ws != nil {
			notify := c.setStateLocked(StateConnected)
			c.mu.Unlock()
			notify()
			c.log.Warn().Msg("monitor: transport ahead of state, marking connected")
			return
		}
		c.mu.Unlock()
	case state == StateConnected && ws != nil:
		// Liveness probe. A failed control write closes the socket and
		// the read pump surfaces the drop.
		c.wmu.Lock()
		err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		c.wmu.Unlock()
		if err != nil {
			_ = ws.Close()
		}
	}
}

func (c *Conn) write(ws *websocket.Conn, f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(f)
}

// setStateLocked mutates the state and returns the notifier to run after
// the lock is released; hooks never run under the connection lock.
func (c *Conn) setStateLocked(s ConnState) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	metrics.HubState.Set(float64(s))
	fns := append([]func(ConnState){}, c.stateFns...)
	return func() {
		for _, fn := range fns {
			fn(s)
		}
	}
}
