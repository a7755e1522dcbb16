// Package route resolves the displayed path between a vehicle and its
// remaining stops.
package route

import (
	"fmt"
	"math"
	"strings"

	"bustrack/internal/model"
)

// precision is the fixed polyline scaling factor (1e-5 degrees).
const precision = 1e5

// DecodePolyline decodes a compressed path string into ordered points.
// The encoding interleaves two signed-delta varint streams (latitude then
// longitude), each value scaled by 1e5 and accumulated from the previous
// point. Decoding is exact for any validly encoded input.
func DecodePolyline(encoded string) ([]model.GeoPoint, error) {
	var points []model.GeoPoint
	var lat, lng int64
	i := 0
	for i < len(encoded) {
		dLat, n, err := decodeValue(encoded[i:])
		if err != nil {
			return nil, fmt.Errorf("polyline lat at byte %d: %w", i, err)
		}
		i += n
		dLng, n, err := decodeValue(encoded[i:])
		if err != nil {
			return nil, fmt.Errorf("polyline lng at byte %d: %w", i, err)
		}
		i += n

		lat += dLat
		lng += dLng
		points = append(points, model.GeoPoint{
			Lat: float64(lat) / precision,
			Lng: float64(lng) / precision,
		})
	}
	return points, nil
}

// decodeValue reads one zigzag varint from s, returning the value and the
// number of bytes consumed.
func decodeValue(s string) (int64, int, error) {
	var result int64
	var shift uint
	for i := 0; i < len(s); i++ {
		c := int64(s[i]) - 63
		if c < 0 {
			return 0, 0, fmt.Errorf("invalid character %q", s[i])
		}
		result |= (c & 0x1f) << shift
		shift += 5
		if c < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), i + 1, nil
			}
			return result >> 1, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("truncated value")
}

// EncodePolyline is the inverse of DecodePolyline. It exists for the demo
// hub server and for round-trip tests.
func EncodePolyline(points []model.GeoPoint) string {
	var sb strings.Builder
	var prevLat, prevLng int64
	for _, p := range points {
		lat := int64(math.Round(p.Lat * precision))
		lng := int64(math.Round(p.Lng * precision))
		encodeValue(&sb, lat-prevLat)
		encodeValue(&sb, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

func encodeValue(sb *strings.Builder, v int64) {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	sb.WriteByte(byte(u + 63))
}
