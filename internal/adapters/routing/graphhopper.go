package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// GraphHopperClient is the full-fidelity routing provider: turn-by-turn
// instructions, good alternative routes, per-vehicle profiles.
type GraphHopperClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGraphHopperClient creates a client for the given GraphHopper base
// URL. apiKey may be empty for self-hosted instances.
func NewGraphHopperClient(baseURL, apiKey string, timeout time.Duration) *GraphHopperClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &GraphHopperClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *GraphHopperClient) Name() string { return "graphhopper" }

// SupportsAlternatives reports alternative-route support. GraphHopper's
// alternative_route algorithm only works for two-point requests, which
// the resolver accounts for by falling back to a single route when
// waypoints are present; profile-wise all are supported.
func (c *GraphHopperClient) SupportsAlternatives(profile string) bool { return true }

type graphHopperResponse struct {
	Paths []struct {
		Distance float64 `json:"distance"`
		Time     int64   `json:"time"` // milliseconds
		Points   struct {
			Coordinates [][]float64 `json:"coordinates"` // lon, lat
		} `json:"points"`
		Instructions []struct {
			Text       string  `json:"text"`
			StreetName string  `json:"street_name"`
			Distance   float64 `json:"distance"`
			Time       int64   `json:"time"`
		} `json:"instructions"`
	} `json:"paths"`
	Message string `json:"message"`
}

// Route computes routes through points with the given provider-native
// profile. points_encoded=false requests plain GeoJSON coordinates
// instead of the polyline encoding.
func (c *GraphHopperClient) Route(ctx context.Context, points []domain.GeoPoint, profile string, alternatives bool) ([]domain.RouteResult, error) {
	params := url.Values{
		"profile":        {profile},
		"points_encoded": {"false"},
		"instructions":   {"true"},
		"locale":         {"en"},
	}
	for _, p := range points {
		params.Add("point", fmt.Sprintf("%f,%f", p.Lat, p.Lon))
	}
	if alternatives && len(points) == 2 {
		params.Set("algorithm", "alternative_route")
		params.Set("alternative_route.max_paths", "3")
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/route?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body graphHopperResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("graphhopper: decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if body.Message != "" {
			return nil, fmt.Errorf("graphhopper: %s", body.Message)
		}
		return nil, fmt.Errorf("graphhopper: HTTP %d", resp.StatusCode)
	}
	if len(body.Paths) == 0 {
		return nil, domain.ErrNoRoute
	}

	routes := make([]domain.RouteResult, 0, len(body.Paths))
	for _, path := range body.Paths {
		geometry := make([]domain.GeoPoint, 0, len(path.Points.Coordinates))
		for _, coord := range path.Points.Coordinates {
			if len(coord) < 2 {
				continue
			}
			geometry = append(geometry, domain.GeoPoint{Lat: coord[1], Lon: coord[0]})
		}

		steps := make([]domain.RouteStep, 0, len(path.Instructions))
		for _, ins := range path.Instructions {
			steps = append(steps, domain.RouteStep{
				RoadName:        ins.StreetName,
				DistanceMeters:  ins.Distance,
				DurationSeconds: float64(ins.Time) / 1000,
				Instruction:     ins.Text,
			})
		}

		routes = append(routes, domain.RouteResult{
			Geometry:        geometry,
			DistanceMeters:  path.Distance,
			DurationSeconds: float64(path.Time) / 1000,
			Steps:           steps,
			Provider:        c.Name(),
		})
	}
	return routes, nil
}
