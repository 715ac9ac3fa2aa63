package domain

// VehicleProfile selects how a route is computed and adjusted.
type VehicleProfile string

const (
	ProfileCar       VehicleProfile = "car"
	ProfileBus       VehicleProfile = "bus"
	ProfileWalking   VehicleProfile = "walking"
	ProfileBicycle   VehicleProfile = "bicycle"
	ProfileMotorbike VehicleProfile = "motorbike"
)

// Valid reports whether the profile is one of the supported vehicles.
func (v VehicleProfile) Valid() bool {
	switch v {
	case ProfileCar, ProfileBus, ProfileWalking, ProfileBicycle, ProfileMotorbike:
		return true
	}
	return false
}

// RouteRequest describes a route to compute. Origin and destination may
// be given as coordinates or as free text; text endpoints are geocoded
// before any route attempt is made.
type RouteRequest struct {
	Origin          *GeoPoint      `json:"origin,omitempty"`
	Destination     *GeoPoint      `json:"destination,omitempty"`
	OriginText      string         `json:"origin_text,omitempty"`
	DestinationText string         `json:"destination_text,omitempty"`
	Waypoints       []GeoPoint     `json:"waypoints,omitempty"`
	Profile         VehicleProfile `json:"profile"`
}

// RouteStep is a single turn-by-turn instruction.
type RouteStep struct {
	RoadName        string  `json:"road_name,omitempty"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
	Instruction     string  `json:"instruction"`
}

// RouteResult is one computed route. Degraded marks the synthetic
// straight-line fallback used only when every real provider failed.
type RouteResult struct {
	Geometry        []GeoPoint  `json:"geometry"`
	DistanceMeters  float64     `json:"distance_meters"`
	DurationSeconds float64     `json:"duration_seconds"`
	Steps           []RouteStep `json:"steps,omitempty"`
	Provider        string      `json:"provider"`
	Degraded        bool        `json:"degraded,omitempty"`
}

// Route update phases for two-phase delivery.
const (
	RoutePhaseProvisional = "provisional"
	RoutePhaseFinal       = "final"
	RoutePhaseFailed      = "failed"
)

// RouteUpdate is one delivery in the two-phase route computation: a
// fast provisional result first, then the full-fidelity replacement.
type RouteUpdate struct {
	RequestID string        `json:"request_id"`
	Phase     string        `json:"phase"`
	Routes    []RouteResult `json:"routes,omitempty"`
	Error     string        `json:"error,omitempty"`
}
