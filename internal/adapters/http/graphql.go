package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/hazwanj/jalanku/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the resolvers.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	placeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Place",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"name":     &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: geoPointType},
			"source":   &graphql.Field{Type: graphql.String},
			"subtitle": &graphql.Field{Type: graphql.String},
			"category": &graphql.Field{Type: graphql.String},
			"region":   &graphql.Field{Type: graphql.String},
			"distance": &graphql.Field{Type: graphql.Float},
		},
	})

	routeStepType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteStep",
		Fields: graphql.Fields{
			"road_name":        &graphql.Field{Type: graphql.String},
			"distance_meters":  &graphql.Field{Type: graphql.Float},
			"duration_seconds": &graphql.Field{Type: graphql.Float},
			"instruction":      &graphql.Field{Type: graphql.String},
		},
	})

	routeResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteResult",
		Fields: graphql.Fields{
			"geometry":         &graphql.Field{Type: graphql.NewList(geoPointType)},
			"distance_meters":  &graphql.Field{Type: graphql.Float},
			"duration_seconds": &graphql.Field{Type: graphql.Float},
			"steps":            &graphql.Field{Type: graphql.NewList(routeStepType)},
			"provider":         &graphql.Field{Type: graphql.String},
			"degraded":         &graphql.Field{Type: graphql.Boolean},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"suggest": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Resolve free text into ranked place candidates",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := p.Args["query"].(string)
					return deps.Geocoder.Suggest(p.Context, q)
				},
			},
			"nearby": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Merged, deduplicated places around a point",
				Args: graphql.FieldConfigArgument{
					"lat":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius":   &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 1000.0},
					"category": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Nearby.Aggregate(p.Context, domain.NearbyQuery{
						Anchor: domain.GeoPoint{
							Lat: p.Args["lat"].(float64),
							Lon: p.Args["lon"].(float64),
						},
						RadiusMeters: p.Args["radius"].(float64),
						Category:     p.Args["category"].(string),
						Limit:        p.Args["limit"].(int),
					})
				},
			},
			"places": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Page through the curated place dataset",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					places, _, err := deps.Places.List(p.Context,
						p.Args["offset"].(int), p.Args["limit"].(int))
					return places, err
				},
			},
			"route": &graphql.Field{
				Type:        graphql.NewList(routeResultType),
				Description: "Compute a route between two points",
				Args: graphql.FieldConfigArgument{
					"origin_lat":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"origin_lon":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"destination_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"destination_lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"profile":         &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "car"},
					"alternatives":    &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					origin := domain.GeoPoint{
						Lat: p.Args["origin_lat"].(float64),
						Lon: p.Args["origin_lon"].(float64),
					}
					destination := domain.GeoPoint{
						Lat: p.Args["destination_lat"].(float64),
						Lon: p.Args["destination_lon"].(float64),
					}
					req := domain.RouteRequest{
						Origin:      &origin,
						Destination: &destination,
						Profile:     domain.VehicleProfile(p.Args["profile"].(string)),
					}
					return deps.Routes.Resolve(p.Context, req, p.Args["alternatives"].(bool))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
