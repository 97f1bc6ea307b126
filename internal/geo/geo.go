// Package geo defines the geocoding contract consumed to backfill
// missing listing coordinates. Lookup failures never block persistence.
package geo

import "context"

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Resolver resolves free-text addresses to coordinates. Implementations
// live outside this core; a nil result means "unknown".
type Resolver interface {
	Resolve(ctx context.Context, addressText string) (*Point, error)
}

// Fixed always answers with one point. Callers use it to supply a
// regional centroid as the fallback value.
type Fixed struct {
	Point Point
}

// Resolve returns the fixed point.
func (f Fixed) Resolve(_ context.Context, _ string) (*Point, error) {
	p := f.Point
	return &p, nil
}
