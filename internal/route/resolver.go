package route

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bustrack/internal/metrics"
	"bustrack/internal/model"
)

// Resolver computes the ordered segment batch for a waypoint sequence.
// Segment order matters: segments are rendered in sequence to form one
// continuous path.
type Resolver struct {
	provider Provider
	log      zerolog.Logger
}

func NewResolver(provider Provider, log zerolog.Logger) *Resolver {
	return &Resolver{provider: provider, log: log.With().Str("component", "route").Logger()}
}

// Segments computes one path per consecutive waypoint pair. A pair with an
// out-of-range point is skipped; a provider failure degrades that pair to a
// straight-line estimate. One bad pair never aborts the batch, and the
// returned batch is always complete for the given waypoints.
func (r *Resolver) Segments(ctx context.Context, waypoints []model.GeoPoint) []model.RouteSegment {
	if len(waypoints) < 2 {
		return nil
	}
	start := time.Now()
	segments := make([]model.RouteSegment, 0, len(waypoints)-1)
	for i := 0; i+1 < len(waypoints); i++ {
		from, to := waypoints[i], waypoints[i+1]
		if !validPoint(from) || !validPoint(to) {
			r.log.Warn().
				Float64("fromLat", from.Lat).Float64("fromLng", from.Lng).
				Float64("toLat", to.Lat).Float64("toLng", to.Lng).
				Msg("skipping segment with out-of-range point")
			metrics.RouteSegments.WithLabelValues("skipped").Inc()
			continue
		}
		segments = append(segments, r.segment(ctx, from, to))
	}
	metrics.RouteComputeDuration.Observe(time.Since(start).Seconds())
	return segments
}

func (r *Resolver) segment(ctx context.Context, from, to model.GeoPoint) model.RouteSegment {
	path, err := r.provider.Route(ctx, from, to)
	if err != nil {
		r.log.Warn().Err(err).Msg("provider failed, using straight-line estimate")
		return r.estimate(from, to)
	}
	points, err := DecodePolyline(path.Geometry)
	if err != nil || len(points) == 0 {
		r.log.Warn().Err(err).Msg("undecodable path geometry, using straight-line estimate")
		return r.estimate(from, to)
	}
	metrics.RouteSegments.WithLabelValues("provider").Inc()
	return model.RouteSegment{
		From:      from,
		To:        to,
		Points:    points,
		DistanceM: path.DistanceM,
		DurationS: path.DurationS,
	}
}

// estimate builds a straight-line fallback segment. It is marked Estimated
// so the presentation layer never shows it as an authoritative path.
func (r *Resolver) estimate(from, to model.GeoPoint) model.RouteSegment {
	dist := HaversineM(from, to)
	metrics.RouteSegments.WithLabelValues("estimate").Inc()
	return model.RouteSegment{
		From:      from,
		To:        to,
		Points:    []model.GeoPoint{from, to},
		DistanceM: dist,
		DurationS: dist / fallbackSpeedMps,
		Estimated: true,
	}
}
