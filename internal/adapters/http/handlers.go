package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// SuggestHandler resolves free-text queries into ranked place
// candidates through the geocode cascade.
func SuggestHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("q")
		if len(query) > 200 {
			return errBadRequest(c, "query too long (max 200 characters)")
		}

		places, err := deps.Geocoder.Suggest(c.UserContext(), query)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if places == nil {
			places = []domain.Place{}
		}

		return c.JSON(fiber.Map{"query": strings.TrimSpace(query), "places": places})
	}
}

// RouteHandler computes a route (or ranked alternatives) between two
// endpoints given as coordinates or free text.
func RouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.RouteRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Profile == "" {
			req.Profile = domain.ProfileCar
		}
		if !req.Profile.Valid() {
			return errBadRequest(c, "unknown vehicle profile: "+string(req.Profile))
		}

		wantAlternatives := c.QueryBool("alternatives", false)

		routes, err := deps.Routes.Resolve(c.UserContext(), req, wantAlternatives)
		if err != nil {
			if errors.Is(err, domain.ErrMissingEndpoint) {
				return errUnprocessable(c, "origin or destination could not be resolved")
			}
			if errors.Is(err, domain.ErrNoRoute) {
				return errNotFound(c, "no route between the given points")
			}
			return errInternal(c, err.Error())
		}

		return c.JSON(fiber.Map{"profile": req.Profile, "routes": routes})
	}
}

// NearbyHandler returns merged, deduplicated places around a point.
func NearbyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		radius := c.QueryFloat("radius", 1000)
		limit := c.QueryInt("limit", 50)
		category := c.Query("category")

		anchor := domain.GeoPoint{Lat: lat, Lon: lon}
		if !anchor.Valid() || (lat == 0 && lon == 0) {
			return errBadRequest(c, "lat and lon are required")
		}
		if radius <= 0 || radius > 10000 {
			return errBadRequest(c, "radius must be between 1 and 10000 meters")
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		places, err := deps.Nearby.Aggregate(c.UserContext(), domain.NearbyQuery{
			Anchor:       anchor,
			RadiusMeters: radius,
			Category:     category,
			Limit:        limit,
		})
		if err != nil {
			return errInternal(c, err.Error())
		}
		if places == nil {
			places = []domain.Place{}
		}

		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(places)
	}
}

// ListPlacesHandler returns the curated place dataset with offset
// pagination.
func ListPlacesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 100
		}

		places, total, err := deps.Places.List(c.UserContext(), offset, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if places == nil {
			places = []domain.Place{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: places, Pagination: pg})
	}
}

// DatasetStats holds row counts for the local place datasets.
type DatasetStats struct {
	CuratedPlaces int    `json:"curated_places"`
	Businesses    int    `json:"businesses"`
	LastImport    string `json:"last_import,omitempty"`
}

// DatasetStatusHandler returns row counts from the local dataset tables.
func DatasetStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats DatasetStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM curated_places),
				(SELECT count(*) FROM businesses),
				COALESCE((SELECT max(created_at)::text FROM curated_places), '')
		`)
		if err := row.Scan(&stats.CuratedPlaces, &stats.Businesses, &stats.LastImport); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}
