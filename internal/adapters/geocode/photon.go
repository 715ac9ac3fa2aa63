package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// PhotonClient queries a Photon instance, the typo-tolerant free-form
// geocoder. It serves as the tier after Nominatim in the cascade: worse
// at structured addresses, better at partial names.
type PhotonClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewPhotonClient creates a client for the given Photon base URL.
func NewPhotonClient(baseURL string, timeout time.Duration, requestsPerSec float64) *PhotonClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 1
	}
	return &PhotonClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (c *PhotonClient) Name() string { return "photon" }

type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // lon, lat
		} `json:"geometry"`
		Properties struct {
			Name     string `json:"name"`
			Street   string `json:"street"`
			City     string `json:"city"`
			State    string `json:"state"`
			Country  string `json:"country"`
			OSMKey   string `json:"osm_key"`
			OSMValue string `json:"osm_value"`
		} `json:"properties"`
	} `json:"features"`
}

// Search resolves free text into places inside bounds via Photon's
// GeoJSON API.
func (c *PhotonClient) Search(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(limit)},
		// bbox is minLon,minLat,maxLon,maxLat
		"bbox": {fmt.Sprintf("%f,%f,%f,%f", bounds.MinLon, bounds.MinLat, bounds.MaxLon, bounds.MaxLat)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photon: HTTP %d", resp.StatusCode)
	}

	var body photonResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("photon: decode: %w", err)
	}

	places := make([]domain.Place, 0, len(body.Features))
	for _, f := range body.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		props := f.Properties
		p := domain.Place{
			Name:     props.Name,
			Location: domain.GeoPoint{Lat: f.Geometry.Coordinates[1], Lon: f.Geometry.Coordinates[0]},
			Source:   domain.SourcePhoton,
			Subtitle: photonSubtitle(props.Street, props.City, props.State),
			Category: props.OSMValue,
		}
		if p.Valid() {
			places = append(places, p)
		}
	}
	return places, nil
}

func photonSubtitle(parts ...string) string {
	kept := parts[:0]
	for _, s := range parts {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}
