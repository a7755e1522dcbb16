package model

import "time"

// StopState derives a stop's lifecycle status from its actual timestamps.
// Callers guarantee DepartedAt implies ArrivedAt.
func StopState(s Stop) StopStatus {
	switch {
	case s.DepartedAt != nil:
		return StopCompleted
	case s.ArrivedAt != nil:
		return StopArrived
	default:
		return StopPending
	}
}

// CountCompleted returns the number of stops that have been departed.
func CountCompleted(stops []Stop) int {
	n := 0
	for _, s := range stops {
		if s.DepartedAt != nil {
			n++
		}
	}
	return n
}

// Recalculate refreshes the trip's aggregate counters and lifecycle status
// from its stops. It only moves the status forward: scheduled becomes
// in_progress on the first arrival, and the trip completes exactly when
// every stop has been departed. Cancelled and delayed are external states
// and are left untouched.
func (t *Trip) Recalculate() {
	t.TotalStops = len(t.Stops)
	t.CompletedStops = CountCompleted(t.Stops)

	if t.Status == TripCancelled || t.Status == TripDelayed {
		return
	}
	if t.TotalStops > 0 && t.CompletedStops == t.TotalStops {
		t.Status = TripCompleted
		return
	}
	if t.Status == TripScheduled {
		for _, s := range t.Stops {
			if s.ArrivedAt != nil {
				t.Status = TripInProgress
				return
			}
		}
	}
}

// ApplyStopUpdate merges an authoritative or optimistic stop mutation.
// The update is discarded when its timestamp is older than the newest
// mutation already applied to that stop, so a delayed push can never
// regress a newer local change. Returns whether the update was applied.
func (t *Trip) ApplyStopUpdate(stopID string, arrivedAt, departedAt *time.Time, at time.Time) bool {
	s := t.StopByID(stopID)
	if s == nil {
		return false
	}
	if at.IsZero() {
		at = time.Now()
	}
	if at.Before(s.UpdatedAt) {
		return false
	}
	if arrivedAt != nil {
		s.ArrivedAt = arrivedAt
	}
	if departedAt != nil {
		// A departure implies the arrival happened, even if the arrival
		// event itself was lost.
		if s.ArrivedAt == nil {
			s.ArrivedAt = departedAt
		}
		s.DepartedAt = departedAt
	}
	s.UpdatedAt = at
	t.touch(at)
	t.Recalculate()
	return true
}

// ApplyLocation records a vehicle position if it is not older than the
// current one. Returns whether the sample was accepted.
func (t *Trip) ApplyLocation(sample LocationSample) bool {
	if t.LastLocation != nil && sample.Timestamp.Before(t.LastLocation.Timestamp) {
		return false
	}
	sample.ReceivedAt = time.Now()
	t.LastLocation = &sample
	t.touch(sample.Timestamp)
	return true
}

// ApplyStatus merges an authoritative trip status change. Staleness is
// judged against the previous status change only: an update is rejected
// when it is older than the status it would overwrite, never because an
// unrelated location sample or stop event happens to be newer.
func (t *Trip) ApplyStatus(status TripStatus, at time.Time) bool {
	if at.IsZero() {
		at = time.Now()
	}
	if at.Before(t.StatusUpdatedAt) {
		return false
	}
	t.Status = status
	t.StatusUpdatedAt = at
	t.touch(at)
	return true
}

// ReplaceRoute swaps in a complete new segment batch. Partial batches are
// never merged with the previous route.
func (t *Trip) ReplaceRoute(segments []RouteSegment) {
	t.Route = segments
	t.Version++
}

func (t *Trip) touch(at time.Time) {
	t.Version++
	if at.After(t.UpdatedAt) {
		t.UpdatedAt = at
	}
}

// RemainingWaypoints returns the vehicle position (when known) followed by
// the target points of every stop not yet departed, in sequence order.
func (t *Trip) RemainingWaypoints() []GeoPoint {
	pts := make([]GeoPoint, 0, len(t.Stops)+1)
	if t.LastLocation != nil {
		pts = append(pts, GeoPoint{Lat: t.LastLocation.Lat, Lng: t.LastLocation.Lng})
	}
	for _, s := range t.Stops {
		if s.DepartedAt == nil {
			pts = append(pts, s.Location)
		}
	}
	return pts
}
