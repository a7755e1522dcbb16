// Package model holds the trip domain types shared by the sync engine.
package model

import "time"

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
	TripDelayed    TripStatus = "delayed"
)

// StopStatus is derived from a stop's actual timestamps, never stored.
type StopStatus string

const (
	StopPending   StopStatus = "pending"
	StopArrived   StopStatus = "arrived"
	StopCompleted StopStatus = "completed"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Stop struct {
	ID               string             `json:"id"`
	Seq              int                `json:"seq"`
	Address          string             `json:"address,omitempty"`
	Location         GeoPoint           `json:"location"`
	PlannedArrival   *time.Time         `json:"plannedArrival,omitempty"`
	PlannedDeparture *time.Time         `json:"plannedDeparture,omitempty"`
	ArrivedAt        *time.Time         `json:"arrivedAt,omitempty"`
	DepartedAt       *time.Time         `json:"departedAt,omitempty"`
	Attendance       []AttendanceRecord `json:"attendance,omitempty"`
	// UpdatedAt is the timestamp of the newest applied mutation for this
	// stop, used to discard stale authoritative updates.
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type AttendanceRecord struct {
	ChildID   string     `json:"childId"`
	ChildName string     `json:"childName,omitempty"`
	Present   bool       `json:"present"`
	Absent    bool       `json:"absent,omitempty"`
	BoardedAt *time.Time `json:"boardedAt,omitempty"`
}

type VehicleInfo struct {
	ID       string `json:"id"`
	Plate    string `json:"plate,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

// PersonSnapshot is a read-only driver/supervisor summary attached to a trip.
type PersonSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LocationSample is an ephemeral vehicle position event. It is never
// persisted; only the newest accepted sample is kept on the trip.
type LocationSample struct {
	TripID     string    `json:"tripId"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedKmh   *float64  `json:"speedKmh,omitempty"`
	AccuracyM  *float64  `json:"accuracyM,omitempty"`
	IsMoving   bool      `json:"isMoving"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"-"`
}

// RouteSegment is one routed path between two consecutive waypoints.
// Segments for a trip are always replaced together as a full batch.
type RouteSegment struct {
	From      GeoPoint   `json:"from"`
	To        GeoPoint   `json:"to"`
	Points    []GeoPoint `json:"points"`
	DistanceM float64    `json:"distanceM"`
	DurationS float64    `json:"durationS"`
	// Estimated marks a straight-line fallback rather than a routed path.
	Estimated bool `json:"estimated,omitempty"`
}

type Trip struct {
	ID             string          `json:"id"`
	Status         TripStatus      `json:"status"`
	PlannedStart   *time.Time      `json:"plannedStart,omitempty"`
	PlannedEnd     *time.Time      `json:"plannedEnd,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	EndedAt        *time.Time      `json:"endedAt,omitempty"`
	Stops          []Stop          `json:"stops"`
	TotalStops     int             `json:"totalStops"`
	CompletedStops int             `json:"completedStops"`
	Vehicle        *VehicleInfo    `json:"vehicle,omitempty"`
	Driver         *PersonSnapshot `json:"driver,omitempty"`
	Supervisor     *PersonSnapshot `json:"supervisor,omitempty"`

	// LastLocation is the newest accepted vehicle position.
	LastLocation *LocationSample `json:"lastLocation,omitempty"`
	// Route is the current full segment batch; nil until first computed.
	Route []RouteSegment `json:"route,omitempty"`

	// Version increments on every applied mutation so consumers can tell
	// whether a snapshot is newer than the one they already rendered.
	Version int64 `json:"version"`
	// UpdatedAt is the timestamp of the newest applied trip-level mutation.
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
	// StatusUpdatedAt is the timestamp of the newest applied status change.
	// Status staleness is judged against this, not UpdatedAt: location and
	// stop mutations must never block a lagging authoritative status.
	StatusUpdatedAt time.Time `json:"statusUpdatedAt,omitempty"`
}

// StopByID returns a pointer into Stops, or nil.
func (t *Trip) StopByID(id string) *Stop {
	for i := range t.Stops {
		if t.Stops[i].ID == id {
			return &t.Stops[i]
		}
	}
	return nil
}
