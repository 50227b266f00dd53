package domain

import "time"

// Route enumerates the supported backend generation pipelines. The two
// routes differ in endpoints, auth headers and reference-image limits.
type Route string

const (
	RouteNanoBanana Route = "nanobanana"
	RouteSeedream   Route = "seedream"
)

// MaxReferenceImages returns the reference-photo cap for the route.
func (r Route) MaxReferenceImages() int {
	if r == RouteNanoBanana {
		return 3
	}
	return 14
}

// NormalizeRoute sanitizes free-form input into a supported route,
// defaulting to Seedream.
func NormalizeRoute(s string) Route {
	if Route(s) == RouteNanoBanana {
		return RouteNanoBanana
	}
	return RouteSeedream
}

// User represents an end user of the generation engine. Created lazily on
// first contact; credits never go negative (clamped at zero on debit).
type User struct {
	ID            int64
	ExternalID    int64
	Username      string
	Credits       float64
	SelectedRoute Route
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
