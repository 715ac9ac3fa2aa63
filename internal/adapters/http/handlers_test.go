package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/hazwanj/jalanku/internal/adapters/http"
	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/core/usecases"
)

// ---- Mocks ----

type mockPlaceRepo struct {
	searchFn func(ctx context.Context, query string, limit int) ([]domain.Place, error)
	listFn   func(ctx context.Context, offset, limit int) ([]domain.Place, int, error)
}

func (m *mockPlaceRepo) Upsert(ctx context.Context, p *domain.Place) error { return nil }

func (m *mockPlaceRepo) UpsertBatch(ctx context.Context, p []domain.Place) error { return nil }
func (m *mockPlaceRepo) FindNearby(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.Place, error) {
	return nil, nil
}
func (m *mockPlaceRepo) Search(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}
func (m *mockPlaceRepo) List(ctx context.Context, offset, limit int) ([]domain.Place, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, 0, nil
}

type mockRouter struct {
	name    string
	routeFn func(ctx context.Context, points []domain.GeoPoint, profile string, alternatives bool) ([]domain.RouteResult, error)
}

func (m *mockRouter) Name() string { return m.name }

func (m *mockRouter) SupportsAlternatives(_ string) bool { return false }
func (m *mockRouter) Route(ctx context.Context, points []domain.GeoPoint, profile string, alternatives bool) ([]domain.RouteResult, error) {
	if m.routeFn != nil {
		return m.routeFn(ctx, points, profile, alternatives)
	}
	return nil, fmt.Errorf("unavailable")
}

type mockNearbySource struct {
	name     string
	nearbyFn func(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error)
}

func (m *mockNearbySource) Name() string { return m.name }
func (m *mockNearbySource) Nearby(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error) {
	if m.nearbyFn != nil {
		return m.nearbyFn(ctx, query)
	}
	return nil, nil
}

// ---- Test helpers ----

var testBounds = domain.Bounds{MinLat: 0.8, MinLon: 109.5, MaxLat: 5.1, MaxLon: 115.7}

func testPolicies() map[domain.VehicleProfile]usecases.RoutePolicy {
	return map[domain.VehicleProfile]usecases.RoutePolicy{
		domain.ProfileCar: {
			Primary: "graphhopper", PrimaryProfile: "car",
			Fallback: "osrm", FallbackProfile: "driving",
			DurationFactor: 1.0, DistanceFactor: 1.0, FallbackSpeedMPS: 13.9,
		},
	}
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	geocoder := usecases.NewGeocodeResolver(
		[]ports.PlaceRepository{&mockPlaceRepo{}}, nil, testBounds, 2, 8, nil)
	d := &handler.Dependencies{
		Geocoder: geocoder,
		Routes: usecases.NewRouteResolver(
			map[string]ports.RoutingProvider{"graphhopper": &mockRouter{name: "graphhopper"}, "osrm": &mockRouter{name: "osrm"}},
			nil, geocoder, testPolicies(), nil, nil, 0),
		Nearby:    usecases.NewNearbyAggregator([]ports.NearbySource{&mockNearbySource{name: "places"}}, nil, 50),
		Lifecycle: usecases.NewLifecycle(nil, 0, 0),
		Places:    &mockPlaceRepo{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ---- Suggest handler tests ----

func TestSuggest_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Geocoder = usecases.NewGeocodeResolver([]ports.PlaceRepository{&mockPlaceRepo{
			searchFn: func(ctx context.Context, query string, limit int) ([]domain.Place, error) {
				return []domain.Place{
					{Name: "Bau", Location: domain.GeoPoint{Lat: 1.4169, Lon: 110.1548}, Source: domain.SourceLocal},
				}, nil
			},
		}}, nil, testBounds, 2, 8, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/suggest?q=Bau", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Query  string         `json:"query"`
		Places []domain.Place `json:"places"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Places) != 1 || result.Places[0].Name != "Bau" {
		t.Errorf("expected Bau, got %+v", result.Places)
	}
}

func TestSuggest_ShortQueryEmptyList(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/suggest?q=B", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Places []domain.Place `json:"places"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Places) != 0 {
		t.Errorf("expected empty places for short query, got %d", len(result.Places))
	}
}

func TestSuggest_TooLong(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/suggest?q="+strings.Repeat("a", 201), nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Route handler tests ----

func routeBody(t *testing.T, req domain.RouteRequest) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(data)
}

func TestRoute_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Routes = usecases.NewRouteResolver(
			map[string]ports.RoutingProvider{
				"graphhopper": &mockRouter{
					name: "graphhopper",
					routeFn: func(ctx context.Context, points []domain.GeoPoint, profile string, alternatives bool) ([]domain.RouteResult, error) {
						return []domain.RouteResult{{
							Geometry:        points,
							DistanceMeters:  21000,
							DurationSeconds: 1500,
							Provider:        "graphhopper",
						}}, nil
					},
				},
				"osrm": &mockRouter{name: "osrm"},
			}, nil, nil, testPolicies(), nil, nil, 0)
	})
	app := setupApp(deps)

	origin := domain.GeoPoint{Lat: 1.5590, Lon: 110.3446}
	destination := domain.GeoPoint{Lat: 1.4003, Lon: 110.3148}
	body := routeBody(t, domain.RouteRequest{Origin: &origin, Destination: &destination, Profile: domain.ProfileCar})

	req := httptest.NewRequest("POST", "/v1/routes", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Routes []domain.RouteResult `json:"routes"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Routes) != 1 || result.Routes[0].Provider != "graphhopper" {
		t.Errorf("unexpected routes %+v", result.Routes)
	}
}

func TestRoute_UnknownProfile(t *testing.T) {
	app := setupApp(makeDeps())

	origin := domain.GeoPoint{Lat: 1.5590, Lon: 110.3446}
	destination := domain.GeoPoint{Lat: 1.4003, Lon: 110.3148}
	body := routeBody(t, domain.RouteRequest{Origin: &origin, Destination: &destination, Profile: "hovercraft"})

	req := httptest.NewRequest("POST", "/v1/routes", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRoute_MissingEndpoint(t *testing.T) {
	app := setupApp(makeDeps())

	origin := domain.GeoPoint{Lat: 1.5590, Lon: 110.3446}
	body := routeBody(t, domain.RouteRequest{Origin: &origin, Profile: domain.ProfileCar})

	req := httptest.NewRequest("POST", "/v1/routes", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "unprocessable" {
		t.Errorf("expected unprocessable error, got %s", apiErr.Code)
	}
}

// ---- Nearby handler tests ----

func TestNearby_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Nearby = usecases.NewNearbyAggregator([]ports.NearbySource{&mockNearbySource{
			name: "places",
			nearbyFn: func(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error) {
				return []domain.Place{
					{Name: "Top Spot", Location: domain.GeoPoint{Lat: 1.5581, Lon: 110.3503}, Source: domain.SourceLocal},
				}, nil
			},
		}}, nil, 50)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/nearby?lat=1.5533&lon=110.3592&radius=1000", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var places []domain.Place
	json.NewDecoder(resp.Body).Decode(&places)
	if len(places) != 1 || places[0].Name != "Top Spot" {
		t.Errorf("unexpected places %+v", places)
	}
	if places[0].Distance == nil {
		t.Error("expected distance annotation")
	}
}

func TestNearby_MissingParams(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/nearby", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request error, got %s", apiErr.Code)
	}
}

func TestNearby_BadRadius(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/nearby?lat=1.55&lon=110.35&radius=50000", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestNearby_CacheControlHeader(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/nearby?lat=1.55&lon=110.35", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cc := resp.Header.Get("Cache-Control")
	if cc != "public, max-age=300" {
		t.Errorf("expected Cache-Control header, got %q", cc)
	}
}

// ---- Places listing tests ----

func TestListPlaces_Pagination(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Places = &mockPlaceRepo{
			listFn: func(ctx context.Context, offset, limit int) ([]domain.Place, int, error) {
				places := make([]domain.Place, 2)
				for i := range places {
					places[i] = domain.Place{
						Name:     fmt.Sprintf("Place %d", offset+i),
						Location: domain.GeoPoint{Lat: 1.55, Lon: 110.35},
						Source:   domain.SourceLocal,
					}
				}
				return places, 10, nil
			},
		}
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/places?offset=2&limit=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Place `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Pagination.Total != 10 || result.Pagination.Offset != 2 {
		t.Errorf("unexpected pagination %+v", result.Pagination)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 places in page, got %d", len(result.Data))
	}

	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="first"`) {
		t.Errorf("expected pagination Link header, got %q", link)
	}
}

// ---- GraphQL tests ----

func TestGraphQL_Suggest(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Geocoder = usecases.NewGeocodeResolver([]ports.PlaceRepository{&mockPlaceRepo{
			searchFn: func(ctx context.Context, query string, limit int) ([]domain.Place, error) {
				return []domain.Place{
					{Name: "Kuching Waterfront", Location: domain.GeoPoint{Lat: 1.5590, Lon: 110.3446}, Source: domain.SourceLocal},
				}, nil
			},
		}}, nil, testBounds, 2, 8, nil)
	})
	app := setupApp(deps)

	body := bytes.NewReader([]byte(`{"query": "{ suggest(query: \"Kuching\") { name source } }"}`))
	req := httptest.NewRequest("POST", "/graphql", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Suggest []struct {
				Name   string `json:"name"`
				Source string `json:"source"`
			} `json:"suggest"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Data.Suggest) != 1 || result.Data.Suggest[0].Name != "Kuching Waterfront" {
		t.Errorf("unexpected graphql result %+v", result.Data)
	}
}

// ---- Health handler tests ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestReady_NoDB(t *testing.T) {
	// DB, NATS, Cache are nil → should report not ready
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

// ---- X-API-Version header ----

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	v := resp.Header.Get("X-API-Version")
	if v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}
