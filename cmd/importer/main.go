package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hazwanj/jalanku/internal/adapters/postgres"
	"github.com/hazwanj/jalanku/internal/core/domain"
	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/pkg/config"
)

// ---------------------------------------------------------------------------
// Manifest types
// ---------------------------------------------------------------------------

type Manifest struct {
	Source   string         `json:"source"`
	Datasets []DatasetEntry `json:"datasets"`
}

type DatasetEntry struct {
	Name   string `json:"name"`   // "curated_places" or "businesses"
	Format string `json:"format"` // "csv" or "json"
	URL    string `json:"url"`    // http(s) URL or local file path
	Region string `json:"region,omitempty"`
}

type placeRow struct {
	Name     string            `json:"name"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Subtitle string            `json:"subtitle,omitempty"`
	Category string            `json:"category,omitempty"`
	Region   string            `json:"region,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("jalanku-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	repos := map[string]ports.PlaceRepository{
		"curated_places": postgres.NewCuratedPlaceRepo(db),
		"businesses":     postgres.NewBusinessRepo(db),
	}
	sources := map[string]domain.PlaceSource{
		"curated_places": domain.SourceLocal,
		"businesses":     domain.SourceBusiness,
	}

	// Load manifest
	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	log.Printf("Jalanku Place Importer — %d datasets from %s", len(manifest.Datasets), manifest.Source)

	// Filter datasets (optional CLI arg: name list)
	nameFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, s := range strings.Split(os.Args[2], ",") {
			nameFilter[strings.TrimSpace(s)] = true
		}
	}

	client := &http.Client{Timeout: 120 * time.Second}

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4) // max 4 concurrent imports

	for _, ds := range manifest.Datasets {
		if len(nameFilter) > 0 && !nameFilter[ds.Name] {
			continue
		}

		repo, ok := repos[ds.Name]
		if !ok {
			log.Printf("ERROR [%s]: unknown dataset, expected curated_places or businesses", ds.Name)
			continue
		}

		wg.Add(1)
		go func(entry DatasetEntry, repo ports.PlaceRepository, source domain.PlaceSource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := importDataset(ctx, repo, client, entry, source); err != nil {
				log.Printf("ERROR [%s]: %v", entry.Name, err)
			}
		}(ds, repo, sources[ds.Name])
	}

	wg.Wait()
	log.Println("import complete")
}

// ---------------------------------------------------------------------------
// Per-dataset import
// ---------------------------------------------------------------------------

func importDataset(ctx context.Context, repo ports.PlaceRepository, client *http.Client, entry DatasetEntry, source domain.PlaceSource) error {
	log.Printf("[%s] loading %s from %s", entry.Name, entry.Format, entry.URL)

	body, err := open(client, entry.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	var rows []placeRow
	switch strings.ToLower(entry.Format) {
	case "json", "":
		rows, err = parseJSON(body)
	case "csv":
		rows, err = parseCSV(body)
	default:
		return fmt.Errorf("unknown format %q", entry.Format)
	}
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	places := make([]domain.Place, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		p := domain.Place{
			Name:     strings.TrimSpace(row.Name),
			Location: domain.GeoPoint{Lat: row.Lat, Lon: row.Lon},
			Source:   source,
			Subtitle: row.Subtitle,
			Category: row.Category,
			Region:   row.Region,
			Tags:     row.Tags,
		}
		if p.Region == "" {
			p.Region = entry.Region
		}
		if !p.Valid() {
			skipped++
			continue
		}
		places = append(places, p)
	}

	const batchSize = 500
	for start := 0; start < len(places); start += batchSize {
		end := start + batchSize
		if end > len(places) {
			end = len(places)
		}
		if err := repo.UpsertBatch(ctx, places[start:end]); err != nil {
			return fmt.Errorf("upsert batch at offset %d: %w", start, err)
		}
	}

	log.Printf("[%s] upserted %d places (%d skipped)", entry.Name, len(places), skipped)
	return nil
}

// open fetches a URL or opens a local file.
func open(client *http.Client, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		resp, err := client.Get(location)
		if err != nil {
			return nil, fmt.Errorf("download: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, location)
		}
		return resp.Body, nil
	}
	return os.Open(location)
}

func parseJSON(r io.Reader) ([]placeRow, error) {
	var rows []placeRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// parseCSV expects a header row; recognized columns are name, lat, lon,
// subtitle, category, region, and tags (semicolon-separated key=value
// pairs). Unparseable rows are skipped.
func parseCSV(r io.Reader) ([]placeRow, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	cols := indexColumns(header)

	var rows []placeRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		lat, err1 := strconv.ParseFloat(getField(record, cols, "lat"), 64)
		lon, err2 := strconv.ParseFloat(getField(record, cols, "lon"), 64)
		if err1 != nil || err2 != nil {
			continue
		}

		rows = append(rows, placeRow{
			Name:     getField(record, cols, "name"),
			Lat:      lat,
			Lon:      lon,
			Subtitle: getField(record, cols, "subtitle"),
			Category: getField(record, cols, "category"),
			Region:   getField(record, cols, "region"),
			Tags:     parseTags(getField(record, cols, "tags")),
		})
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		// Strip BOM from first column
		col = strings.TrimPrefix(col, "\xef\xbb\xbf")
		m[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return m
}

func getField(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseTags turns "cuisine=laksa;halal=yes" into a tag map.
func parseTags(s string) map[string]string {
	if s == "" {
		return nil
	}
	tags := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		tags[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
