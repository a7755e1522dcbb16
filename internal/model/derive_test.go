package model

import (
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tp(s string) *time.Time { v := ts(s); return &v }

func TestStopState(t *testing.T) {
	cases := []struct {
		name     string
		arrived  *time.Time
		departed *time.Time
		want     StopStatus
	}{
		{"pending", nil, nil, StopPending},
		{"arrived", tp("2024-03-01T08:00:00Z"), nil, StopArrived},
		{"completed", tp("2024-03-01T08:00:00Z"), tp("2024-03-01T08:02:00Z"), StopCompleted},
	}
	for _, c := range cases {
		got := StopState(Stop{ArrivedAt: c.arrived, DepartedAt: c.departed})
		if got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func fourStopTrip() *Trip {
	return &Trip{
		ID:     "9f1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9",
		Status: TripScheduled,
		Stops: []Stop{
			{ID: "s1", Seq: 1, Location: GeoPoint{Lat: 24.70, Lng: 46.68}},
			{ID: "s2", Seq: 2, Location: GeoPoint{Lat: 24.71, Lng: 46.69}},
			{ID: "s3", Seq: 3, Location: GeoPoint{Lat: 24.72, Lng: 46.70}},
			{ID: "s4", Seq: 4, Location: GeoPoint{Lat: 24.73, Lng: 46.71}},
		},
	}
}

func TestRecalculateFirstDeparture(t *testing.T) {
	trip := fourStopTrip()
	arr := ts("2024-03-01T07:30:00Z")
	dep := ts("2024-03-01T07:32:00Z")
	if !trip.ApplyStopUpdate("s1", &arr, &dep, dep) {
		t.Fatal("update rejected")
	}
	if trip.CompletedStops != 1 {
		t.Errorf("completedStops = %d, want 1", trip.CompletedStops)
	}
	if trip.Status != TripInProgress {
		t.Errorf("status = %s, want %s", trip.Status, TripInProgress)
	}
}

func TestRecalculateAllDeparted(t *testing.T) {
	trip := fourStopTrip()
	base := ts("2024-03-01T07:00:00Z")
	for i, s := range trip.Stops {
		at := base.Add(time.Duration(i) * 5 * time.Minute)
		trip.ApplyStopUpdate(s.ID, &at, &at, at)
	}
	if trip.CompletedStops != 4 {
		t.Fatalf("completedStops = %d, want 4", trip.CompletedStops)
	}
	if trip.Status != TripCompleted {
		t.Errorf("status = %s, want %s", trip.Status, TripCompleted)
	}
}

func TestDepartureImpliesArrival(t *testing.T) {
	trip := fourStopTrip()
	dep := ts("2024-03-01T07:40:00Z")
	trip.ApplyStopUpdate("s2", nil, &dep, dep)
	s := trip.StopByID("s2")
	if s.ArrivedAt == nil {
		t.Fatal("departure applied without backfilling arrival")
	}
	if StopState(*s) != StopCompleted {
		t.Errorf("state = %s, want completed", StopState(*s))
	}
}

func TestStaleUpdateRejected(t *testing.T) {
	trip := fourStopTrip()
	newer := ts("2024-03-01T08:00:00Z")
	older := ts("2024-03-01T07:00:00Z")
	arr := newer
	trip.ApplyStopUpdate("s1", &arr, nil, newer)
	v := trip.Version

	// A delayed push carrying the pre-arrival state must not win.
	if trip.ApplyStopUpdate("s1", nil, nil, older) {
		t.Fatal("stale update applied")
	}
	if trip.Version != v {
		t.Errorf("version moved on rejected update: %d -> %d", v, trip.Version)
	}
	if trip.StopByID("s1").ArrivedAt == nil {
		t.Fatal("arrival lost")
	}
}

func TestApplyLocationOrdering(t *testing.T) {
	trip := fourStopTrip()
	first := LocationSample{TripID: trip.ID, Lat: 24.7, Lng: 46.68, Timestamp: ts("2024-03-01T07:10:00Z")}
	second := LocationSample{TripID: trip.ID, Lat: 24.71, Lng: 46.69, Timestamp: ts("2024-03-01T07:11:00Z")}
	if !trip.ApplyLocation(second) {
		t.Fatal("fresh sample rejected")
	}
	if trip.ApplyLocation(first) {
		t.Fatal("stale sample accepted")
	}
	if trip.LastLocation.Lat != 24.71 {
		t.Errorf("last location overwritten by stale sample")
	}
}

func TestRemainingWaypoints(t *testing.T) {
	trip := fourStopTrip()
	dep := ts("2024-03-01T07:30:00Z")
	trip.ApplyStopUpdate("s1", &dep, &dep, dep)
	trip.ApplyLocation(LocationSample{TripID: trip.ID, Lat: 24.705, Lng: 46.685, Timestamp: ts("2024-03-01T07:31:00Z")})

	pts := trip.RemainingWaypoints()
	if len(pts) != 4 { // vehicle + 3 undeparted stops
		t.Fatalf("got %d waypoints, want 4", len(pts))
	}
	if pts[0].Lat != 24.705 {
		t.Errorf("vehicle position not first: %+v", pts[0])
	}
	if pts[1] != trip.Stops[1].Location {
		t.Errorf("departed stop not skipped: %+v", pts[1])
	}
}

func TestStatusNotBlockedByNewerLocation(t *testing.T) {
	trip := fourStopTrip()
	trip.Status = TripInProgress
	if !trip.ApplyLocation(LocationSample{TripID: trip.ID, Lat: 24.7, Lng: 46.68, Timestamp: ts("2024-03-01T08:00:10Z")}) {
		t.Fatal("location rejected")
	}
	// the status change left the backend before the newest GPS sample;
	// it must still win, only an older *status* may be rejected
	if !trip.ApplyStatus(TripDelayed, ts("2024-03-01T08:00:05Z")) {
		t.Fatal("status rejected because an unrelated location sample is newer")
	}
	if trip.Status != TripDelayed {
		t.Errorf("status = %s, want %s", trip.Status, TripDelayed)
	}
}

func TestStatusNotBlockedByNewerStopUpdate(t *testing.T) {
	trip := fourStopTrip()
	at := ts("2024-03-01T08:00:10Z")
	trip.ApplyStopUpdate("s1", &at, nil, at)
	if !trip.ApplyStatus(TripDelayed, ts("2024-03-01T08:00:05Z")) {
		t.Fatal("status rejected because an unrelated stop update is newer")
	}
}

func TestStaleStatusRejected(t *testing.T) {
	trip := fourStopTrip()
	if !trip.ApplyStatus(TripDelayed, ts("2024-03-01T08:00:00Z")) {
		t.Fatal("first status rejected")
	}
	if trip.ApplyStatus(TripInProgress, ts("2024-03-01T07:59:00Z")) {
		t.Fatal("older status overwrote a newer one")
	}
	if trip.Status != TripDelayed {
		t.Errorf("status = %s, want %s", trip.Status, TripDelayed)
	}
}

func TestRecalculateLeavesCancelled(t *testing.T) {
	trip := fourStopTrip()
	trip.Status = TripCancelled
	at := ts("2024-03-01T07:30:00Z")
	for _, s := range trip.Stops {
		trip.ApplyStopUpdate(s.ID, &at, &at, at)
	}
	if trip.Status != TripCancelled {
		t.Errorf("cancelled trip transitioned to %s", trip.Status)
	}
}
