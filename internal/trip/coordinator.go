// Package trip orchestrates one tracked trip view: REST snapshot, hub room
// membership, event application and route recomputation.
package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bustrack/internal/hub"
	"bustrack/internal/model"
	"bustrack/internal/rest"
	"bustrack/internal/route"
)

// State is the coordinator's per-view lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateTracking
	// StateError is terminal for this view instance; only a fresh Focus
	// recovers. Tracking failures never land here, they degrade to Ready.
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateTracking:
		return "tracking"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Snapshot is the consistent, versioned view handed to the presentation
// layer. Trip is a deep copy; mutating it never races the coordinator.
type Snapshot struct {
	State State
	Trip  *model.Trip
}

type Coordinator struct {
	rest     *rest.Client
	hub      *hub.Conn
	resolver *route.Resolver
	log      zerolog.Logger

	debounce       time.Duration
	moveThresholdM float64

	mu      sync.Mutex
	state   State
	tripID  string
	trip    *model.Trip
	joined  bool
	hookSet bool
	ctx     context.Context
	cancel  context.CancelFunc

	recomputeTimer *time.Timer
	generation     uint64
	computing      bool
	pendingCompute bool
	lastRoutedPos  *model.GeoPoint
}

func NewCoordinator(restClient *rest.Client, conn *hub.Conn, resolver *route.Resolver, debounce time.Duration, log zerolog.Logger) *Coordinator {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Coordinator{
		rest:           restClient,
		hub:            conn,
		resolver:       resolver,
		log:            log.With().Str("component", "coordinator").Logger(),
		debounce:       debounce,
		moveThresholdM: 30,
		state:          StateIdle,
	}
}

// Focus loads the trip snapshot and seeds local state. A REST failure is
// terminal for this view instance until a fresh Focus.
func (c *Coordinator) Focus(ctx context.Context, tripID string) error {
	c.mu.Lock()
	// changing trips releases the old room; membership never carries over
	leaveID := ""
	if c.joined && c.tripID != tripID {
		leaveID = c.tripID
		c.joined = false
	}
	c.state = StateLoading
	c.tripID = tripID
	viewCtx, cancel := context.WithCancel(context.Background())
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = viewCtx, cancel
	c.mu.Unlock()
	if leaveID != "" {
		if err := c.hub.LeaveTrip(leaveID); err != nil {
			c.log.Warn().Err(err).Str("trip", leaveID).Msg("leaving previous trip room failed")
		}
	}

	trip, err := c.rest.GetTrip(ctx, tripID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tripID != tripID {
		// superseded by a newer Focus
		return nil
	}
	if err != nil {
		c.state = StateError
		return fmt.Errorf("focus trip %s: %w", tripID, err)
	}
	c.trip = trip
	c.state = StateReady
	c.log.Info().Str("trip", tripID).Int("stops", trip.TotalStops).Msg("trip loaded")
	return nil
}

// Track ensures hub connectivity, joins the trip's room and registers the
// event subscriptions. A failure leaves the view in Ready: the caller keeps
// the last REST snapshot, shows a reconnecting indicator and retries.
func (c *Coordinator) Track(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady && c.state != StateTracking {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot track from state %s", state)
	}
	tripID := c.tripID
	if !c.hookSet {
		c.hookSet = true
		c.hub.OnStateChange(c.onConnState)
	}
	c.mu.Unlock()

	if err := c.hub.EnsureConnected(ctx); err != nil {
		return fmt.Errorf("track %s: %w", tripID, err)
	}

	c.hub.On(hub.EventLocationUpdate, c.onLocation)
	c.hub.On(hub.EventStopUpdate, c.onStop)
	c.hub.On(hub.EventTripStatusUpdate, c.onTripStatus)

	if err := c.hub.JoinTrip(tripID); err != nil {
		return fmt.Errorf("join trip %s: %w", tripID, err)
	}

	c.mu.Lock()
	c.joined = true
	c.state = StateTracking
	c.mu.Unlock()
	c.log.Info().Str("trip", tripID).Msg("tracking")
	return nil
}

// onConnState re-joins the room after the connection comes back. Server-side
// room membership does not survive a new socket and subscriptions are never
// restored automatically, so this hook is the single re-join point.
func (c *Coordinator) onConnState(s hub.ConnState) {
	if s != hub.StateConnected {
		return
	}
	c.mu.Lock()
	rejoin := c.state == StateTracking && c.joined
	tripID := c.tripID
	c.mu.Unlock()
	if !rejoin {
		return
	}
	go func() {
		if err := c.hub.JoinTrip(tripID); err != nil {
			c.log.Warn().Err(err).Str("trip", tripID).Msg("re-join after reconnect failed")
			return
		}
		c.log.Info().Str("trip", tripID).Msg("re-joined trip room after reconnect")
	}()
}

func (c *Coordinator) onLocation(payload json.RawMessage) {
	var ev locationEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn().Err(err).Msg("bad location payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trip == nil || ev.TripID != c.tripID {
		return
	}
	prev := c.trip.LastLocation
	accepted := c.trip.ApplyLocation(model.LocationSample{
		TripID: ev.TripID, Lat: ev.Lat, Lng: ev.Lng,
		SpeedKmh: ev.SpeedKmh, AccuracyM: ev.AccuracyM,
		IsMoving: ev.IsMoving, Timestamp: ev.Timestamp,
	})
	if !accepted {
		return
	}
	if c.shouldRecomputeLocked(prev) {
		c.scheduleRecomputeLocked()
	}
}

// shouldRecomputeLocked applies the material-movement threshold: tiny
// position jitter moves the vehicle marker but keeps the current route.
func (c *Coordinator) shouldRecomputeLocked(prev *model.LocationSample) bool {
	if c.trip.Route == nil || c.lastRoutedPos == nil || prev == nil {
		return true
	}
	cur := model.GeoPoint{Lat: c.trip.LastLocation.Lat, Lng: c.trip.LastLocation.Lng}
	return route.HaversineM(*c.lastRoutedPos, cur) >= c.moveThresholdM
}

func (c *Coordinator) onStop(payload json.RawMessage) {
	var ev stopEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn().Err(err).Msg("bad stop payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trip == nil || ev.TripID != c.tripID {
		return
	}
	departedBefore := c.trip.CompletedStops
	if !c.trip.ApplyStopUpdate(ev.StopID, ev.ArrivedAt, ev.DepartedAt, ev.Timestamp) {
		c.log.Debug().Str("stop", ev.StopID).Msg("stale stop update discarded")
		return
	}
	// a departure changes the waypoint set
	if c.trip.CompletedStops != departedBefore {
		c.scheduleRecomputeLocked()
	}
}

func (c *Coordinator) onTripStatus(payload json.RawMessage) {
	var ev tripStatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn().Err(err).Msg("bad trip status payload")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trip == nil || ev.TripID != c.tripID {
		return
	}
	if !c.trip.ApplyStatus(model.TripStatus(ev.Status), ev.Timestamp) {
		c.log.Debug().Str("status", ev.Status).Msg("stale trip status discarded")
	}
}

// ConfirmArrival applies the optimistic arrival locally, then confirms it
// with the backend. A rejected confirmation rolls the mutation back.
func (c *Coordinator) ConfirmArrival(ctx context.Context, stopID string) error {
	return c.confirmStop(ctx, stopID, false)
}

// ConfirmDeparture is the departure counterpart of ConfirmArrival.
func (c *Coordinator) ConfirmDeparture(ctx context.Context, stopID string) error {
	return c.confirmStop(ctx, stopID, true)
}

func (c *Coordinator) confirmStop(ctx context.Context, stopID string, departure bool) error {
	now := time.Now()
	c.mu.Lock()
	if c.trip == nil {
		c.mu.Unlock()
		return fmt.Errorf("no trip loaded")
	}
	s := c.trip.StopByID(stopID)
	if s == nil {
		c.mu.Unlock()
		return fmt.Errorf("unknown stop %s", stopID)
	}
	prev := *s
	tripID := c.tripID
	if departure {
		c.trip.ApplyStopUpdate(stopID, nil, &now, now)
	} else {
		c.trip.ApplyStopUpdate(stopID, &now, nil, now)
	}
	c.mu.Unlock()

	var err error
	if departure {
		err = c.rest.ConfirmDeparture(ctx, tripID, stopID)
	} else {
		err = c.rest.ConfirmArrival(ctx, tripID, stopID)
	}
	if err == nil {
		return nil
	}

	// roll back the optimistic mutation from the pre-mutation snapshot
	c.mu.Lock()
	if cur := c.trip.StopByID(stopID); cur != nil {
		*cur = prev
		c.trip.Recalculate()
	}
	c.mu.Unlock()
	return fmt.Errorf("confirm stop %s: %w", stopID, err)
}

// PublishLocation forwards a device position to the hub, e.g. when this
// client is the driver. Validation and rate capping happen in the hub.
func (c *Coordinator) PublishLocation(lat, lng float64, moving bool) error {
	c.mu.Lock()
	tripID := c.tripID
	c.mu.Unlock()
	if tripID == "" {
		return fmt.Errorf("no trip focused")
	}
	return c.hub.SendLocation(model.LocationSample{
		TripID: tripID, Lat: lat, Lng: lng, IsMoving: moving, Timestamp: time.Now(),
	})
}

func (c *Coordinator) scheduleRecomputeLocked() {
	if c.recomputeTimer != nil {
		c.recomputeTimer.Stop()
	}
	c.recomputeTimer = time.AfterFunc(c.debounce, c.recompute)
}

// recompute issues one route computation for the current waypoints. Only
// one computation is in flight at a time; triggers arriving meanwhile run
// one follow-up afterwards, and a superseding run discards the stale batch
// so the previous complete batch stays visible instead of a mixed set.
func (c *Coordinator) recompute() {
	c.mu.Lock()
	if c.trip == nil {
		c.mu.Unlock()
		return
	}
	if c.computing {
		c.pendingCompute = true
		c.mu.Unlock()
		return
	}
	c.computing = true
	c.generation++
	gen := c.generation
	waypoints := c.trip.RemainingWaypoints()
	var pos *model.GeoPoint
	if c.trip.LastLocation != nil {
		pos = &model.GeoPoint{Lat: c.trip.LastLocation.Lat, Lng: c.trip.LastLocation.Lng}
	}
	ctx := c.ctx
	c.mu.Unlock()

	var segs []model.RouteSegment
	if len(waypoints) >= 2 {
		segs = c.resolver.Segments(ctx, waypoints)
	}

	c.mu.Lock()
	c.computing = false
	rerun := c.pendingCompute
	c.pendingCompute = false
	if gen == c.generation && segs != nil && c.trip != nil {
		c.trip.ReplaceRoute(segs)
		c.lastRoutedPos = pos
	}
	c.mu.Unlock()
	if rerun {
		c.recompute()
	}
}

// Snapshot returns a deep copy of the current view state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{State: c.state}
	if c.trip != nil {
		t := *c.trip
		t.Stops = append([]model.Stop(nil), c.trip.Stops...)
		t.Route = append([]model.RouteSegment(nil), c.trip.Route...)
		if c.trip.LastLocation != nil {
			loc := *c.trip.LastLocation
			t.LastLocation = &loc
		}
		snap.Trip = &t
	}
	return snap
}

// State returns the current view state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the view down: unregisters subscriptions and leaves the room
// but leaves the shared connection up for other active views.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.recomputeTimer != nil {
		c.recomputeTimer.Stop()
		c.recomputeTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	joined := c.joined
	tripID := c.tripID
	c.joined = false
	c.trip = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.hub.Off(hub.EventLocationUpdate)
	c.hub.Off(hub.EventStopUpdate)
	c.hub.Off(hub.EventTripStatusUpdate)
	if joined {
		_ = c.hub.LeaveTrip(tripID)
	}
	c.log.Info().Str("trip", tripID).Msg("view closed")
}
