package route

import (
	"math"
	"testing"

	"bustrack/internal/model"
)

// Fixture from the polyline format reference documentation.
const fixtureEncoded = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

var fixturePoints = []model.GeoPoint{
	{Lat: 38.5, Lng: -120.2},
	{Lat: 40.7, Lng: -120.95},
	{Lat: 43.252, Lng: -126.453},
}

func TestDecodePolylineFixture(t *testing.T) {
	got, err := DecodePolyline(fixtureEncoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(fixturePoints) {
		t.Fatalf("got %d points, want %d", len(got), len(fixturePoints))
	}
	for i, p := range got {
		if math.Abs(p.Lat-fixturePoints[i].Lat) > 1e-9 || math.Abs(p.Lng-fixturePoints[i].Lng) > 1e-9 {
			t.Errorf("point %d: got %+v, want %+v", i, p, fixturePoints[i])
		}
	}
}

func TestEncodePolylineFixture(t *testing.T) {
	if got := EncodePolyline(fixturePoints); got != fixtureEncoded {
		t.Errorf("encode: got %q, want %q", got, fixtureEncoded)
	}
}

func TestPolylineRoundTrip(t *testing.T) {
	in := []model.GeoPoint{
		{Lat: 24.7136, Lng: 46.6753},
		{Lat: 24.71412, Lng: 46.67001},
		{Lat: 24.70988, Lng: 46.66517},
		{Lat: -0.00001, Lng: 0.00001},
	}
	out, err := DecodePolyline(EncodePolyline(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d points, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(out[i].Lat-in[i].Lat) > 1e-9 || math.Abs(out[i].Lng-in[i].Lng) > 1e-9 {
			t.Errorf("point %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestDecodePolylineEmpty(t *testing.T) {
	pts, err := DecodePolyline("")
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if len(pts) != 0 {
		t.Errorf("got %d points, want 0", len(pts))
	}
}

func TestDecodePolylineTruncated(t *testing.T) {
	// A continuation bit with no following byte must error, not panic.
	if _, err := DecodePolyline("_"); err == nil {
		t.Fatal("expected error for truncated input")
	}
}
