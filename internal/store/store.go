// Package store defines the persistence contract consumed by the crawl
// pipeline and provides a SQLite implementation of it.
package store

import (
	"context"
	"time"

	"github.com/mietwatch/mietwatch/internal/listing"
)

// Outcome reports what an upsert did.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
)

// ListingStore is the persistence contract for listing records. Identity
// is (provider, external id) when the external id is derivable, content
// hash otherwise; the store guarantees at most one live record per
// identity. Records are never deleted, only marked inactive by the
// staleness sweep.
type ListingStore interface {
	// Upsert inserts a new record or updates the existing one with the
	// same identity, preserving FirstSeenAt and keeping LastSeenAt
	// monotonically non-decreasing.
	Upsert(ctx context.Context, rec *listing.Record) (Outcome, error)

	// MarkInactiveNotSeenSince flags records not re-seen since the
	// threshold as inactive and returns how many were flagged. Called by
	// an external staleness sweep, not by the crawler.
	MarkInactiveNotSeenSince(ctx context.Context, threshold time.Time) (int64, error)
}
