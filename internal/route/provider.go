package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bustrack/internal/model"
)

// Path is one routed leg as returned by the provider.
type Path struct {
	Geometry  string
	DistanceM float64
	DurationS float64
}

// Provider computes a driving path between two points.
type Provider interface {
	Route(ctx context.Context, from, to model.GeoPoint) (Path, error)
}

// OSRMProvider talks to an OSRM-compatible routing HTTP endpoint.
type OSRMProvider struct {
	BaseURL string
	HTTP    *http.Client
}

func NewOSRMProvider(baseURL string, timeout time.Duration) *OSRMProvider {
	return &OSRMProvider{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (p *OSRMProvider) Route(ctx context.Context, from, to model.GeoPoint) (Path, error) {
	// OSRM takes lng,lat pairs.
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full",
		p.BaseURL, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Path{}, err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return Path{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Path{}, fmt.Errorf("routing provider status %d", resp.StatusCode)
	}
	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Path{}, fmt.Errorf("routing provider body: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return Path{}, fmt.Errorf("routing provider returned no route (code %q)", body.Code)
	}
	r := body.Routes[0]
	if r.Geometry == "" {
		return Path{}, fmt.Errorf("routing provider returned empty path")
	}
	return Path{Geometry: r.Geometry, DistanceM: r.Distance, DurationS: r.Duration}, nil
}
