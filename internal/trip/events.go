package trip

import "time"

// Wire payloads of the hub events the coordinator consumes.

type locationEvent struct {
	TripID    string    `json:"tripId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	SpeedKmh  *float64  `json:"speedKmh,omitempty"`
	AccuracyM *float64  `json:"accuracyM,omitempty"`
	IsMoving  bool      `json:"isMoving"`
	Timestamp time.Time `json:"timestamp"`
}

type stopEvent struct {
	TripID     string     `json:"tripId"`
	StopID     string     `json:"stopId"`
	ArrivedAt  *time.Time `json:"arrivedAt,omitempty"`
	DepartedAt *time.Time `json:"departedAt,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

type tripStatusEvent struct {
	TripID    string    `json:"tripId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
