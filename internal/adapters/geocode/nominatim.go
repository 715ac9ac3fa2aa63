package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// NominatimClient queries a Nominatim instance for structured address
// and place lookups. The public instance enforces an absolute rate
// limit, so every request passes through a client-side limiter and
// carries an identifying User-Agent.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatimClient creates a client for the given Nominatim base URL.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration, requestsPerSec float64) *NominatimClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 1
	}
	return &NominatimClient{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (c *NominatimClient) Name() string { return "nominatim" }

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Type        string `json:"type"`
}

// Search resolves free text into places inside bounds. The viewbox is
// passed with bounded=1 so results outside the service region are
// excluded server-side.
func (c *NominatimClient) Search(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {strconv.Itoa(limit)},
		// viewbox is left,top,right,bottom
		"viewbox": {fmt.Sprintf("%f,%f,%f,%f", bounds.MinLon, bounds.MaxLat, bounds.MaxLon, bounds.MinLat)},
		"bounded": {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim: HTTP %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("nominatim: decode: %w", err)
	}

	places := make([]domain.Place, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.DisplayName
		}
		p := domain.Place{
			Name:     name,
			Location: domain.GeoPoint{Lat: lat, Lon: lon},
			Source:   domain.SourceNominatim,
			Subtitle: r.DisplayName,
			Category: r.Type,
		}
		if p.Valid() {
			places = append(places, p)
		}
	}
	return places, nil
}
