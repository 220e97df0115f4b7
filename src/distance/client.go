// Package distance talks to the routing provider (openrouteservice-compatible
// API) for travel distance and duration.
package distance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"FoodFinder/src/apperr"
	"FoodFinder/src/types"
)

const maxErrorBody = 4 << 10

// Matrix holds one row of the provider's 1×N matrix, aligned with the
// destinations passed to Client.Matrix.
type Matrix struct {
	Distances []float64
	Durations []float64
}

type Config struct {
	BaseURL string
	APIKey  string
	Profile string
	Timeout time.Duration
}

type Client struct {
	httpClient *http.Client
	cfg        Config
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{httpClient: httpClient, cfg: cfg}
}

type matrixRequest struct {
	Locations    [][2]float64 `json:"locations"`
	Metrics      []string     `json:"metrics"`
	Sources      []int        `json:"sources"`
	Destinations []int        `json:"destinations"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type directionsResponse struct {
	Features []struct {
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

type providerError struct {
	Error json.RawMessage `json:"error"`
}

func lonLat(p types.GeoPoint) [2]float64 {
	return [2]float64{p.Lon, p.Lat}
}

// Matrix asks for distances and durations from origin to every destination in
// one call. The result is positionally aligned with destinations.
func (c *Client) Matrix(ctx context.Context, origin types.GeoPoint, destinations []types.GeoPoint) (Matrix, error) {
	if len(destinations) == 0 {
		return Matrix{}, nil
	}

	req := matrixRequest{
		Locations:    make([][2]float64, 0, len(destinations)+1),
		Metrics:      []string{"distance", "duration"},
		Sources:      []int{0},
		Destinations: make([]int, len(destinations)),
	}
	req.Locations = append(req.Locations, lonLat(origin))
	for i, d := range destinations {
		req.Locations = append(req.Locations, lonLat(d))
		req.Destinations[i] = i + 1
	}

	var resp matrixResponse
	if err := c.post(ctx, "/v2/matrix/"+c.cfg.Profile, req, &resp); err != nil {
		return Matrix{}, err
	}

	distances, err := singleRow("distances", resp.Distances, len(destinations))
	if err != nil {
		return Matrix{}, err
	}
	durations, err := singleRow("durations", resp.Durations, len(destinations))
	if err != nil {
		return Matrix{}, err
	}
	return Matrix{Distances: distances, Durations: durations}, nil
}

// Route returns the summary of the provider's first route between two points.
func (c *Client) Route(ctx context.Context, origin, destination types.GeoPoint) (types.EnrichedLocation, error) {
	req := directionsRequest{Coordinates: [][2]float64{lonLat(origin), lonLat(destination)}}

	var resp directionsResponse
	if err := c.post(ctx, "/v2/directions/"+c.cfg.Profile+"/geojson", req, &resp); err != nil {
		return types.EnrichedLocation{}, err
	}
	if len(resp.Features) == 0 {
		return types.EnrichedLocation{}, apperr.Distance(nil, "distance provider returned no route")
	}

	summary := resp.Features[0].Properties.Summary
	return types.EnrichedLocation{DistanceMeters: summary.Distance, DurationSeconds: summary.Duration}, nil
}

func singleRow(name string, rows [][]*float64, want int) ([]float64, error) {
	if len(rows) != 1 || len(rows[0]) != want {
		return nil, apperr.Distance(nil, "distance provider returned malformed %s: expected 1x%d", name, want)
	}
	out := make([]float64, want)
	for i, v := range rows[0] {
		if v == nil {
			return nil, apperr.Distance(nil, "distance provider could not route destination %d", i)
		}
		out[i] = *v
	}
	return out, nil
}

func (c *Client) post(parent context.Context, path string, body, out any) error {
	ctx := parent
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, application/geo+json")
	req.Header.Set("Authorization", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return fmt.Errorf("distance provider call aborted: %w", parent.Err())
		}
		if ctx.Err() != nil {
			return apperr.Distance(err, "distance provider timed out")
		}
		return apperr.Distance(err, "distance provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperr.Distance(fmt.Errorf("status %d: %s", resp.StatusCode, providerMessage(raw)),
			"distance provider rejected the request")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Distance(err, "distance provider returned an invalid response")
	}
	return nil
}

func providerMessage(raw []byte) string {
	var pe providerError
	if err := json.Unmarshal(raw, &pe); err == nil && len(pe.Error) > 0 {
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(pe.Error, &msg) == nil && msg.Message != "" {
			return msg.Message
		}
		return strings.Trim(string(pe.Error), `"`)
	}
	return strings.TrimSpace(string(raw))
}
