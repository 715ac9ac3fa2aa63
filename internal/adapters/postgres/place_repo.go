package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// PlaceRepo implements ports.PlaceRepository with pgx over a PostGIS
// place table. The curated tourism dataset and the approved business
// listings share a schema, so one repo serves both tables.
type PlaceRepo struct {
	db     *DB
	name   string
	table  string
	source domain.PlaceSource
}

// NewCuratedPlaceRepo creates a repo over the curated tourism dataset.
func NewCuratedPlaceRepo(db *DB) *PlaceRepo {
	return &PlaceRepo{db: db, name: "places", table: "curated_places", source: domain.SourceLocal}
}

// NewBusinessRepo creates a repo over the approved business listings.
func NewBusinessRepo(db *DB) *PlaceRepo {
	return &PlaceRepo{db: db, name: "businesses", table: "businesses", source: domain.SourceBusiness}
}

// Name identifies the repo when it serves as a nearby source.
func (r *PlaceRepo) Name() string { return r.name }

// Nearby adapts FindNearby to the nearby-source shape used by the
// aggregator.
func (r *PlaceRepo) Nearby(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error) {
	radius := query.RadiusMeters
	if radius <= 0 {
		radius = 1000
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	return r.FindNearby(ctx, query.Anchor.Lat, query.Anchor.Lon, radius, limit)
}

// Upsert inserts or updates a single place, keyed on name + location.
func (r *PlaceRepo) Upsert(ctx context.Context, p *domain.Place) error {
	_, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, location, subtitle, category, region, tags)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5, $6, $7)
		ON CONFLICT (name, location) DO UPDATE
		SET subtitle = EXCLUDED.subtitle, category = EXCLUDED.category,
		    region = EXCLUDED.region, tags = EXCLUDED.tags
	`, r.table), p.Name, p.Location.Lon, p.Location.Lat,
		p.Subtitle, p.Category, p.Region, p.Tags)
	return err
}

// UpsertBatch inserts many places using pgx.Batch.
func (r *PlaceRepo) UpsertBatch(ctx context.Context, places []domain.Place) error {
	batch := &pgx.Batch{}
	for _, p := range places {
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (name, location, subtitle, category, region, tags)
			VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5, $6, $7)
			ON CONFLICT (name, location) DO UPDATE
			SET subtitle = EXCLUDED.subtitle, category = EXCLUDED.category,
			    region = EXCLUDED.region, tags = EXCLUDED.tags
		`, r.table), p.Name, p.Location.Lon, p.Location.Lat,
			p.Subtitle, p.Category, p.Region, p.Tags)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range places {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// Search performs fuzzy + full-text search on place names.
func (r *PlaceRepo) Search(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, name,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       COALESCE(subtitle, ''), COALESCE(category, ''), COALESCE(region, ''),
		       COALESCE(tags, '{}'), created_at,
		       similarity(name, $1) as sim
		FROM %s
		WHERE name_vector @@ plainto_tsquery('english', $1)
		   OR name %%> $1
		ORDER BY sim DESC
		LIMIT $2
	`, r.table), query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var places []domain.Place
	for rows.Next() {
		var p domain.Place
		var sim float64
		if err := rows.Scan(
			&p.ID, &p.Name,
			&p.Location.Lat, &p.Location.Lon,
			&p.Subtitle, &p.Category, &p.Region,
			&p.Tags, &p.CreatedAt,
			&sim,
		); err != nil {
			return nil, err
		}
		p.Source = r.source
		places = append(places, p)
	}
	return places, rows.Err()
}

// List returns places ordered by name with offset pagination, plus the
// total row count.
func (r *PlaceRepo) List(ctx context.Context, offset, limit int) ([]domain.Place, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.table)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, name,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       COALESCE(subtitle, ''), COALESCE(category, ''), COALESCE(region, ''),
		       COALESCE(tags, '{}'), created_at
		FROM %s
		ORDER BY name
		OFFSET $1 LIMIT $2
	`, r.table), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var places []domain.Place
	for rows.Next() {
		var p domain.Place
		if err := rows.Scan(
			&p.ID, &p.Name,
			&p.Location.Lat, &p.Location.Lon,
			&p.Subtitle, &p.Category, &p.Region,
			&p.Tags, &p.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		p.Source = r.source
		places = append(places, p)
	}
	return places, total, rows.Err()
}

// FindNearby returns places within radiusMeters using PostGIS
// ST_DWithin, nearest first.
func (r *PlaceRepo) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Place, error) {
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, name,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       COALESCE(subtitle, ''), COALESCE(category, ''), COALESCE(region, ''),
		       COALESCE(tags, '{}'),
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance,
		       created_at
		FROM %s
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
		LIMIT $4
	`, r.table), lon, lat, radiusMeters, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var places []domain.Place
	for rows.Next() {
		var p domain.Place
		var dist float64
		if err := rows.Scan(
			&p.ID, &p.Name,
			&p.Location.Lat, &p.Location.Lon,
			&p.Subtitle, &p.Category, &p.Region,
			&p.Tags,
			&dist, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		p.Source = r.source
		p.Distance = &dist
		places = append(places, p)
	}
	return places, rows.Err()
}
