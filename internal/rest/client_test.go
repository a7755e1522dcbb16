package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bustrack/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	c := NewClient(srv.URL, "tok", 2*time.Second, zerolog.Nop())
	c.HTTP = srv.Client()
	return c, srv.Close
}

func TestGetTrip(t *testing.T) {
	var gotAuth string
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/trip/abc" {
			w.WriteHeader(404)
			return
		}
		arr := time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC)
		_ = json.NewEncoder(w).Encode(model.Trip{
			ID:     "abc",
			Status: model.TripScheduled,
			Stops: []model.Stop{
				{ID: "s1", Seq: 1, ArrivedAt: &arr},
				{ID: "s2", Seq: 2},
			},
		})
	})
	defer done()

	trip, err := c.GetTrip(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetTrip: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if trip.TotalStops != 2 {
		t.Errorf("TotalStops = %d", trip.TotalStops)
	}
	// snapshot is recalculated on load
	if trip.Status != model.TripInProgress {
		t.Errorf("Status = %s, want in_progress", trip.Status)
	}
}

func TestGetTripNotFound(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(404) })
	defer done()
	_, err := c.GetTrip(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetTripUnauthorized(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(401) })
	defer done()
	_, err := c.GetTrip(context.Background(), "abc")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestConfirmArrival(t *testing.T) {
	var gotPath, gotMethod string
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(200)
	})
	defer done()
	if err := c.ConfirmArrival(context.Background(), "t1", "s1"); err != nil {
		t.Fatalf("ConfirmArrival: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/trip/t1/stops/s1/confirm-arrival" {
		t.Errorf("got %s %s", gotMethod, gotPath)
	}
}

func TestConfirmDepartureServerError(t *testing.T) {
	c, done := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) })
	defer done()
	err := c.ConfirmDeparture(context.Background(), "t1", "s1")
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("500 misclassified: %v", err)
	}
}
