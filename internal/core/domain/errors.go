package domain

import "errors"

// Error taxonomy for the resolution pipeline. Emptiness and failure are
// distinct signals: a provider returning zero results is never an error,
// it just moves the cascade to the next tier.
var (
	// ErrMissingEndpoint means origin or destination could not be
	// resolved to coordinates. Fatal for a route request; no fallback
	// route is attempted because a straight line needs both endpoints.
	ErrMissingEndpoint = errors.New("origin or destination could not be resolved to coordinates")

	// ErrNoRoute means every routing provider failed and no straight-line
	// fallback could be built.
	ErrNoRoute = errors.New("no routing provider returned a usable route")
)
