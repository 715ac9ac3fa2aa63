package geocode_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazwanj/jalanku/internal/adapters/geocode"
	"github.com/hazwanj/jalanku/internal/core/domain"
)

var testBounds = domain.Bounds{MinLat: 0.8, MinLon: 109.5, MaxLat: 5.1, MaxLon: 115.7}

func TestNominatimClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "Kuching Waterfront" {
			t.Errorf("unexpected query %q", q.Get("q"))
		}
		if q.Get("bounded") != "1" || q.Get("viewbox") == "" {
			t.Error("expected bounded viewbox parameters")
		}
		if r.Header.Get("User-Agent") != "jalanku-test" {
			t.Errorf("expected identifying User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"lat": "1.5590", "lon": "110.3446", "name": "Kuching Waterfront", "display_name": "Kuching Waterfront, Kuching, Sarawak", "type": "attraction"},
			{"lat": "not-a-number", "lon": "110.0", "name": "Broken"}
		]`))
	}))
	defer srv.Close()

	c := geocode.NewNominatimClient(srv.URL, "jalanku-test", 2*time.Second, 100)
	places, err := c.Search(context.Background(), "Kuching Waterfront", testBounds, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 1 {
		t.Fatalf("expected unparseable rows dropped, got %d places", len(places))
	}
	p := places[0]
	if p.Name != "Kuching Waterfront" || p.Source != domain.SourceNominatim {
		t.Errorf("unexpected place %+v", p)
	}
	if p.Location.Lat != 1.5590 || p.Location.Lon != 110.3446 {
		t.Errorf("unexpected location %+v", p.Location)
	}
}

func TestNominatimClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := geocode.NewNominatimClient(srv.URL, "jalanku-test", 2*time.Second, 100)
	if _, err := c.Search(context.Background(), "anything", testBounds, 5); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestPhotonClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("bbox") == "" {
			t.Error("expected bbox parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"features": [
			{"geometry": {"coordinates": [110.3148, 1.4003]},
			 "properties": {"name": "Semenggoh Nature Reserve", "city": "Kuching", "state": "Sarawak", "osm_key": "leisure", "osm_value": "nature_reserve"}},
			{"geometry": {"coordinates": []},
			 "properties": {"name": "No Geometry"}}
		]}`))
	}))
	defer srv.Close()

	c := geocode.NewPhotonClient(srv.URL, 2*time.Second, 100)
	places, err := c.Search(context.Background(), "Semenggoh", testBounds, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 1 {
		t.Fatalf("expected coordinate-less features dropped, got %d", len(places))
	}
	p := places[0]
	if p.Name != "Semenggoh Nature Reserve" || p.Source != domain.SourcePhoton {
		t.Errorf("unexpected place %+v", p)
	}
	if p.Subtitle != "Kuching, Sarawak" {
		t.Errorf("expected joined subtitle, got %q", p.Subtitle)
	}
	if p.Category != "nature_reserve" {
		t.Errorf("expected osm_value category, got %q", p.Category)
	}
}
