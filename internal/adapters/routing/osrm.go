package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// OSRMClient is the basic routing provider and the road snapper. It is
// fast and reliable but carries no vehicle-specific costing beyond its
// profile, so vehicle adjustment happens post-hoc in the resolver.
type OSRMClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOSRMClient creates a client for the given OSRM base URL.
func NewOSRMClient(baseURL string, timeout time.Duration) *OSRMClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &OSRMClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OSRMClient) Name() string { return "osrm" }

// SupportsAlternatives reports alternative-route support; OSRM serves
// alternatives only for two-point driving requests.
func (c *OSRMClient) SupportsAlternatives(profile string) bool { return profile == "driving" }

type osrmRouteResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // lon, lat
		} `json:"geometry"`
		Legs []struct {
			Steps []struct {
				Name     string  `json:"name"`
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
				Maneuver struct {
					Type     string `json:"type"`
					Modifier string `json:"modifier"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route computes routes through points with the given provider-native
// profile ("driving", "walking", "cycling").
func (c *OSRMClient) Route(ctx context.Context, points []domain.GeoPoint, profile string, alternatives bool) ([]domain.RouteResult, error) {
	params := url.Values{
		"overview":   {"full"},
		"geometries": {"geojson"},
		"steps":      {"true"},
	}
	if alternatives {
		params.Set("alternatives", "true")
	}

	endpoint := fmt.Sprintf("%s/route/v1/%s/%s?%s", c.baseURL, profile, coordinatePath(points), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("osrm: decode: %w", err)
	}
	if body.Code != "Ok" {
		if body.Code == "NoRoute" {
			return nil, domain.ErrNoRoute
		}
		return nil, fmt.Errorf("osrm: %s: %s", body.Code, body.Message)
	}

	routes := make([]domain.RouteResult, 0, len(body.Routes))
	for _, rt := range body.Routes {
		geometry := make([]domain.GeoPoint, 0, len(rt.Geometry.Coordinates))
		for _, coord := range rt.Geometry.Coordinates {
			if len(coord) < 2 {
				continue
			}
			geometry = append(geometry, domain.GeoPoint{Lat: coord[1], Lon: coord[0]})
		}

		var steps []domain.RouteStep
		for _, leg := range rt.Legs {
			for _, step := range leg.Steps {
				steps = append(steps, domain.RouteStep{
					RoadName:        step.Name,
					DistanceMeters:  step.Distance,
					DurationSeconds: step.Duration,
					Instruction:     strings.TrimSpace(step.Maneuver.Type + " " + step.Maneuver.Modifier),
				})
			}
		}

		routes = append(routes, domain.RouteResult{
			Geometry:        geometry,
			DistanceMeters:  rt.Distance,
			DurationSeconds: rt.Duration,
			Steps:           steps,
			Provider:        c.Name(),
		})
	}
	return routes, nil
}

type osrmNearestResponse struct {
	Code      string `json:"code"`
	Waypoints []struct {
		Location []float64 `json:"location"` // lon, lat
	} `json:"waypoints"`
}

// Snap adjusts a coordinate to the nearest routable road segment via
// the nearest service.
func (c *OSRMClient) Snap(ctx context.Context, point domain.GeoPoint, profile string) (domain.GeoPoint, error) {
	endpoint := fmt.Sprintf("%s/nearest/v1/%s/%f,%f?number=1", c.baseURL, profile, point.Lon, point.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GeoPoint{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	defer resp.Body.Close()

	var body osrmNearestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.GeoPoint{}, fmt.Errorf("osrm: decode: %w", err)
	}
	if body.Code != "Ok" || len(body.Waypoints) == 0 || len(body.Waypoints[0].Location) < 2 {
		return domain.GeoPoint{}, fmt.Errorf("osrm: no snap candidate")
	}

	loc := body.Waypoints[0].Location
	return domain.GeoPoint{Lat: loc[1], Lon: loc[0]}, nil
}

func coordinatePath(points []domain.GeoPoint) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%f,%f", p.Lon, p.Lat)
	}
	return strings.Join(parts, ";")
}
