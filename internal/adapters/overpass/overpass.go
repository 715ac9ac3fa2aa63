package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// Client queries the Overpass API for live OSM points of interest. It
// is the lowest-precedence nearby source: freshest data, least curated.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an Overpass client for the given interpreter URL.
func NewClient(baseURL string, timeout time.Duration, requestsPerSec float64) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 0.5
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (c *Client) Name() string { return "overpass" }

type overpassResponse struct {
	Elements []struct {
		ID     int64             `json:"id"`
		Lat    float64           `json:"lat"`
		Lon    float64           `json:"lon"`
		Center *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// Nearby returns named OSM POIs around the query anchor. Ways and
// relations are reduced to their center point.
func (c *Client) Nearby(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ql := buildQuery(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		strings.NewReader(url.Values{"data": {ql}}.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("overpass: HTTP %d", resp.StatusCode)
	}

	var body overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("overpass: decode: %w", err)
	}

	places := make([]domain.Place, 0, len(body.Elements))
	for _, el := range body.Elements {
		lat, lon := el.Lat, el.Lon
		if el.Center != nil {
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		name := el.Tags["name"]
		if name == "" {
			continue
		}
		p := domain.Place{
			ID:       fmt.Sprintf("osm-%d", el.ID),
			Name:     name,
			Location: domain.GeoPoint{Lat: lat, Lon: lon},
			Source:   domain.SourceOverpass,
			Category: categoryFromTags(el.Tags),
			Tags:     el.Tags,
		}
		if p.Valid() {
			places = append(places, p)
		}
	}
	return places, nil
}

// buildQuery assembles the Overpass QL around-query for named amenity,
// tourism and shop nodes/ways.
func buildQuery(query domain.NearbyQuery) string {
	radius := int(query.RadiusMeters)
	if radius <= 0 {
		radius = 1000
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:10];(")
	for _, key := range []string{"amenity", "tourism", "shop"} {
		fmt.Fprintf(&b, `nwr["%s"]["name"](around:%d,%f,%f);`, key, radius, query.Anchor.Lat, query.Anchor.Lon)
	}
	b.WriteString(");out center;")
	return b.String()
}

func categoryFromTags(tags map[string]string) string {
	for _, key := range []string{"tourism", "amenity", "shop"} {
		if v := tags[key]; v != "" {
			return v
		}
	}
	return ""
}
