package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/core/usecases"
)

// --- Mock PlaceRepository ---

type mockPlaceRepo struct {
	searchFn     func(ctx context.Context, query string, limit int) ([]domain.Place, error)
	findNearbyFn func(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.Place, error)
}

func (m *mockPlaceRepo) Upsert(ctx context.Context, place *domain.Place) error        { return nil }
func (m *mockPlaceRepo) UpsertBatch(ctx context.Context, places []domain.Place) error { return nil }

func (m *mockPlaceRepo) List(ctx context.Context, offset, limit int) ([]domain.Place, int, error) {
	return nil, 0, nil
}

func (m *mockPlaceRepo) Search(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockPlaceRepo) FindNearby(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.Place, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, lat, lon, radius, limit)
	}
	return nil, nil
}

// --- Mock GeocodeProvider ---

type mockGeocoder struct {
	name     string
	calls    int32
	searchFn func(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error)
}

func (m *mockGeocoder) Name() string { return m.name }

func (m *mockGeocoder) Search(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.searchFn != nil {
		return m.searchFn(ctx, query, bounds, limit)
	}
	return nil, nil
}

var sarawakBounds = domain.Bounds{MinLat: 0.8, MinLon: 109.5, MaxLat: 5.1, MaxLon: 115.7}

func kuchingPlace(name string, source domain.PlaceSource) domain.Place {
	return domain.Place{
		Name:     name,
		Location: domain.GeoPoint{Lat: 1.5533, Lon: 110.3592},
		Source:   source,
	}
}

// --- Tests ---

func TestGeocodeResolver_BelowMinLength_NoNetwork(t *testing.T) {
	remote := &mockGeocoder{name: "nominatim"}
	r := usecases.NewGeocodeResolver(nil, []ports.GeocodeProvider{remote}, sarawakBounds, 2, 8, nil)

	places, err := r.Suggest(context.Background(), "B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if places != nil {
		t.Fatalf("expected no results, got %d", len(places))
	}
	if remote.calls != 0 {
		t.Errorf("expected no provider calls for short query, got %d", remote.calls)
	}
}

func TestGeocodeResolver_LocalShortCircuits(t *testing.T) {
	local := &mockPlaceRepo{
		searchFn: func(ctx context.Context, query string, limit int) ([]domain.Place, error) {
			return []domain.Place{kuchingPlace("Bau", domain.SourceLocal)}, nil
		},
	}
	remote := &mockGeocoder{name: "nominatim"}
	r := usecases.NewGeocodeResolver([]ports.PlaceRepository{local}, []ports.GeocodeProvider{remote}, sarawakBounds, 2, 8, nil)

	places, err := r.Suggest(context.Background(), "Bau")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 1 || places[0].Name != "Bau" {
		t.Fatalf("expected local Bau hit, got %+v", places)
	}
	if remote.calls != 0 {
		t.Errorf("local hit must not reach remote providers, got %d calls", remote.calls)
	}
}

func TestGeocodeResolver_EmptyTierCascades(t *testing.T) {
	first := &mockGeocoder{name: "nominatim"} // returns nothing
	second := &mockGeocoder{
		name: "photon",
		searchFn: func(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
			return []domain.Place{kuchingPlace("Semenggoh Nature Reserve", domain.SourcePhoton)}, nil
		},
	}
	r := usecases.NewGeocodeResolver(nil, []ports.GeocodeProvider{first, second}, sarawakBounds, 2, 8, nil)

	places, err := r.Suggest(context.Background(), "Semenggoh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 1 || places[0].Source != domain.SourcePhoton {
		t.Fatalf("expected photon result, got %+v", places)
	}
	if first.calls != 1 {
		t.Errorf("expected first tier to be tried once, got %d", first.calls)
	}
}

func TestGeocodeResolver_FailedTierCascades(t *testing.T) {
	first := &mockGeocoder{
		name: "nominatim",
		searchFn: func(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
			return nil, errors.New("503 from upstream")
		},
	}
	second := &mockGeocoder{
		name: "photon",
		searchFn: func(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
			return []domain.Place{kuchingPlace("Damai Beach", domain.SourcePhoton)}, nil
		},
	}
	r := usecases.NewGeocodeResolver(nil, []ports.GeocodeProvider{first, second}, sarawakBounds, 2, 8, nil)

	places, err := r.Suggest(context.Background(), "Damai")
	if err != nil {
		t.Fatalf("provider failure must not surface to caller: %v", err)
	}
	if len(places) != 1 || places[0].Name != "Damai Beach" {
		t.Fatalf("expected fallback tier result, got %+v", places)
	}
}

func TestGeocodeResolver_AllTiersEmpty(t *testing.T) {
	r := usecases.NewGeocodeResolver(nil, []ports.GeocodeProvider{
		&mockGeocoder{name: "nominatim"},
		&mockGeocoder{name: "photon"},
	}, sarawakBounds, 2, 8, nil)

	places, err := r.Suggest(context.Background(), "zzzzz nowhere")
	if err != nil {
		t.Fatalf("empty cascade is not an error: %v", err)
	}
	if len(places) != 0 {
		t.Fatalf("expected empty result, got %d", len(places))
	}
}

func TestGeocodeResolver_RepeatQueryUsesMemo(t *testing.T) {
	remote := &mockGeocoder{
		name: "nominatim",
		searchFn: func(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
			return []domain.Place{kuchingPlace("Kuching Waterfront", domain.SourceNominatim)}, nil
		},
	}
	r := usecases.NewGeocodeResolver(nil, []ports.GeocodeProvider{remote}, sarawakBounds, 2, 8, nil)

	for i := 0; i < 3; i++ {
		places, err := r.Suggest(context.Background(), "Kuching Waterfront")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(places) != 1 {
			t.Fatalf("expected 1 result, got %d", len(places))
		}
	}
	if remote.calls != 1 {
		t.Errorf("expected single provider call across repeats, got %d", remote.calls)
	}
}

func TestGeocodeResolver_TruncatesToLimit(t *testing.T) {
	remote := &mockGeocoder{
		name: "nominatim",
		searchFn: func(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
			out := make([]domain.Place, 20)
			for i := range out {
				out[i] = kuchingPlace("Jalan Song", domain.SourceNominatim)
			}
			return out, nil
		},
	}
	r := usecases.NewGeocodeResolver(nil, []ports.GeocodeProvider{remote}, sarawakBounds, 2, 5, nil)

	places, err := r.Suggest(context.Background(), "Jalan Song")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 5 {
		t.Fatalf("expected 5 results after truncation, got %d", len(places))
	}
}

func TestGeocodeResolver_Resolve_EmptyText(t *testing.T) {
	r := usecases.NewGeocodeResolver(nil, nil, sarawakBounds, 2, 8, nil)
	_, err := r.Resolve(context.Background(), "")
	if !errors.Is(err, domain.ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint, got %v", err)
	}
}

func TestGeocodeResolver_Resolve_BestCandidate(t *testing.T) {
	remote := &mockGeocoder{
		name: "nominatim",
		searchFn: func(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
			return []domain.Place{
				{Name: "Sarawak Cultural Village", Location: domain.GeoPoint{Lat: 1.7465, Lon: 110.3163}, Source: domain.SourceNominatim},
				{Name: "Cultural Village Road", Location: domain.GeoPoint{Lat: 1.74, Lon: 110.31}, Source: domain.SourceNominatim},
			}, nil
		},
	}
	r := usecases.NewGeocodeResolver(nil, []ports.GeocodeProvider{remote}, sarawakBounds, 2, 8, nil)

	pt, err := r.Resolve(context.Background(), "Sarawak Cultural Village")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pt.Lat != 1.7465 || pt.Lon != 110.3163 {
		t.Errorf("expected first candidate's location, got %+v", pt)
	}
}

func TestGeocodeResolver_SuggestDebounced_StaleResponseDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	remote := &mockGeocoder{
		name: "nominatim",
		searchFn: func(ctx context.Context, query string, bounds domain.Bounds, limit int) ([]domain.Place, error) {
			if query == "Kuch" {
				close(started)
				<-release
				return []domain.Place{kuchingPlace("Kuch Mismatch", domain.SourceNominatim)}, nil
			}
			return []domain.Place{kuchingPlace("Kuching Waterfront", domain.SourceNominatim)}, nil
		},
	}
	lc := usecases.NewLifecycle(nil, time.Millisecond, time.Minute)
	r := usecases.NewGeocodeResolver(nil, []ports.GeocodeProvider{remote}, sarawakBounds, 2, 8, lc)

	var mu sync.Mutex
	var delivered [][]domain.Place
	arrived := make(chan struct{}, 2)
	deliver := func(places []domain.Place, err error) {
		if err != nil {
			t.Errorf("unexpected delivery error: %v", err)
		}
		mu.Lock()
		delivered = append(delivered, places)
		mu.Unlock()
		arrived <- struct{}{}
	}

	// The first lookup hangs in the provider; the user keeps typing and
	// a fresh lookup supersedes it.
	r.SuggestDebounced(context.Background(), "ws:1:suggest:origin", "Kuch", deliver)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first lookup to reach the provider")
	}
	r.SuggestDebounced(context.Background(), "ws:1:suggest:origin", "Kuching", deliver)

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fresh delivery")
	}

	// Let the abandoned lookup finish; it must not deliver.
	close(release)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(delivered))
	}
	if len(delivered[0]) != 1 || delivered[0][0].Name != "Kuching Waterfront" {
		t.Fatalf("expected the fresh query's result, got %+v", delivered[0])
	}
}
