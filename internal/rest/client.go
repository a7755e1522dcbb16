// Package rest is the typed client for the tracking backend's REST surface
// used by the sync engine: the trip snapshot fetch and stop confirmations.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"bustrack/internal/model"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "rest").Logger(),
	}
}

// GetTrip fetches the trip snapshot that seeds local state.
func (c *Client) GetTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	var trip model.Trip
	if err := c.do(ctx, http.MethodGet, "/trip/"+tripID, nil, &trip); err != nil {
		return nil, err
	}
	trip.Recalculate()
	return &trip, nil
}

// ConfirmArrival notifies the backend of a stop arrival. Success authorizes
// keeping the optimistic local mutation.
func (c *Client) ConfirmArrival(ctx context.Context, tripID, stopID string) error {
	path := fmt.Sprintf("/trip/%s/stops/%s/confirm-arrival", tripID, stopID)
	return c.do(ctx, http.MethodPost, path, struct{}{}, nil)
}

// ConfirmDeparture notifies the backend of a stop departure.
func (c *Client) ConfirmDeparture(ctx context.Context, tripID, stopID string) error {
	path := fmt.Sprintf("/trip/%s/stops/%s/confirm-departure", tripID, stopID)
	return c.do(ctx, http.MethodPost, path, struct{}{}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var req *http.Request
	var err error
	if in != nil {
		body, merr := json.Marshal(in)
		if merr != nil {
			return merr
		}
		req, err = http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}
