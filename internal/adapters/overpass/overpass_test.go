package overpass_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hazwanj/jalanku/internal/adapters/overpass"
	"github.com/hazwanj/jalanku/internal/core/domain"
)

func TestClient_Nearby(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(body))
		ql := values.Get("data")
		if !strings.Contains(ql, "around:1000") {
			t.Errorf("expected around radius in query, got %q", ql)
		}
		if !strings.Contains(ql, `"amenity"`) || !strings.Contains(ql, `"tourism"`) {
			t.Errorf("expected amenity and tourism selectors, got %q", ql)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements": [
			{"id": 101, "lat": 1.5581, "lon": 110.3503, "tags": {"name": "Top Spot", "amenity": "food_court"}},
			{"id": 102, "center": {"lat": 1.5620, "lon": 110.3444}, "tags": {"name": "Fort Margherita", "tourism": "museum"}},
			{"id": 103, "lat": 1.5600, "lon": 110.3500, "tags": {"amenity": "bench"}}
		]}`))
	}))
	defer srv.Close()

	c := overpass.NewClient(srv.URL, 2*time.Second, 100)
	places, err := c.Nearby(context.Background(), domain.NearbyQuery{
		Anchor:       domain.GeoPoint{Lat: 1.5533, Lon: 110.3592},
		RadiusMeters: 1000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 2 {
		t.Fatalf("expected nameless elements dropped, got %d places", len(places))
	}
	if places[0].Name != "Top Spot" || places[0].Category != "food_court" {
		t.Errorf("unexpected place %+v", places[0])
	}
	if places[1].Location.Lat != 1.5620 {
		t.Errorf("expected way reduced to center point, got %+v", places[1].Location)
	}
	for _, p := range places {
		if p.Source != domain.SourceOverpass {
			t.Errorf("expected overpass source on %s", p.Name)
		}
	}
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := overpass.NewClient(srv.URL, 2*time.Second, 100)
	_, err := c.Nearby(context.Background(), domain.NearbyQuery{
		Anchor: domain.GeoPoint{Lat: 1.5533, Lon: 110.3592},
	})
	if err == nil {
		t.Fatal("expected error for HTTP 429")
	}
}
