package routing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazwanj/jalanku/internal/adapters/routing"
	"github.com/hazwanj/jalanku/internal/core/domain"
)

var (
	testOrigin      = domain.GeoPoint{Lat: 1.5590, Lon: 110.3446}
	testDestination = domain.GeoPoint{Lat: 1.4003, Lon: 110.3148}
)

func TestOSRMClient_Route(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/route/v1/driving/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 21000,
				"duration": 1500,
				"geometry": {"coordinates": [[110.3446, 1.5590], [110.3148, 1.4003]]},
				"legs": [{"steps": [
					{"name": "Jalan Tun Abang Haji Openg", "distance": 500, "duration": 60,
					 "maneuver": {"type": "turn", "modifier": "left"}}
				]}]
			}]
		}`))
	}))
	defer srv.Close()

	c := routing.NewOSRMClient(srv.URL, 2*time.Second)
	routes, err := c.Route(context.Background(), []domain.GeoPoint{testOrigin, testDestination}, "driving", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	rt := routes[0]
	if rt.Provider != "osrm" || rt.DistanceMeters != 21000 || rt.DurationSeconds != 1500 {
		t.Errorf("unexpected route %+v", rt)
	}
	if len(rt.Geometry) != 2 || rt.Geometry[0].Lat != 1.5590 {
		t.Errorf("expected lon,lat coordinates flipped to GeoPoint, got %+v", rt.Geometry)
	}
	if len(rt.Steps) != 1 || rt.Steps[0].Instruction != "turn left" {
		t.Errorf("unexpected steps %+v", rt.Steps)
	}
}

func TestOSRMClient_NoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": "NoRoute", "message": "Impossible route between points"}`))
	}))
	defer srv.Close()

	c := routing.NewOSRMClient(srv.URL, 2*time.Second)
	_, err := c.Route(context.Background(), []domain.GeoPoint{testOrigin, testDestination}, "driving", false)
	if err != domain.ErrNoRoute {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestOSRMClient_Snap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/nearest/v1/driving/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": "Ok", "waypoints": [{"location": [110.3447, 1.5591]}]}`))
	}))
	defer srv.Close()

	c := routing.NewOSRMClient(srv.URL, 2*time.Second)
	pt, err := c.Snap(context.Background(), testOrigin, "driving")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pt.Lat != 1.5591 || pt.Lon != 110.3447 {
		t.Errorf("unexpected snapped point %+v", pt)
	}
}

func TestOSRMClient_SupportsAlternatives(t *testing.T) {
	c := routing.NewOSRMClient("http://localhost", time.Second)
	if !c.SupportsAlternatives("driving") {
		t.Error("driving should support alternatives")
	}
	if c.SupportsAlternatives("walking") {
		t.Error("walking should not support alternatives")
	}
}

func TestGraphHopperClient_Route(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("points_encoded") != "false" {
			t.Error("expected points_encoded=false")
		}
		if q.Get("profile") != "car" {
			t.Errorf("unexpected profile %q", q.Get("profile"))
		}
		if q.Get("algorithm") != "alternative_route" {
			t.Error("expected alternative_route algorithm for two-point alternatives request")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"paths": [
				{"distance": 21000, "time": 1500000,
				 "points": {"coordinates": [[110.3446, 1.5590], [110.3148, 1.4003]]},
				 "instructions": [{"text": "Continue onto Jalan Padungan", "street_name": "Jalan Padungan", "distance": 800, "time": 90000}]},
				{"distance": 23000, "time": 1700000,
				 "points": {"coordinates": [[110.3446, 1.5590], [110.3148, 1.4003]]},
				 "instructions": []}
			]
		}`))
	}))
	defer srv.Close()

	c := routing.NewGraphHopperClient(srv.URL, "", 2*time.Second)
	routes, err := c.Route(context.Background(), []domain.GeoPoint{testOrigin, testDestination}, "car", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(routes))
	}
	if routes[0].DurationSeconds != 1500 {
		t.Errorf("expected milliseconds converted to seconds, got %f", routes[0].DurationSeconds)
	}
	if routes[0].Steps[0].RoadName != "Jalan Padungan" {
		t.Errorf("unexpected step %+v", routes[0].Steps[0])
	}
}

func TestGraphHopperClient_ErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "Cannot find point 0"}`))
	}))
	defer srv.Close()

	c := routing.NewGraphHopperClient(srv.URL, "", 2*time.Second)
	_, err := c.Route(context.Background(), []domain.GeoPoint{testOrigin, testDestination}, "car", false)
	if err == nil || !strings.Contains(err.Error(), "Cannot find point") {
		t.Fatalf("expected provider message surfaced, got %v", err)
	}
}
