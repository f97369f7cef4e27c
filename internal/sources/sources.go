package sources

import (
	"context"
	"time"
)

// RawCandidate is the unclassified fact sheet one adapter returns for a
// single discovered resource. Zero values mean "not supplied by the source".
type RawCandidate struct {
	URL             string
	Title           string
	Description     string
	Platform        string
	DurationMinutes float64
	Stars           int64
	ViewCount       int64
	Rating          float64
	PublishedAt     *time.Time
	LastUpdated     *time.Time
}

// SearchOptions bounds a single adapter search.
type SearchOptions struct {
	MaxResults int
}

// Adapter is the common contract every content source implements. Search
// errors are absorbed by the aggregator; an adapter contributes an empty
// candidate list when it fails.
type Adapter interface {
	Name() string
	Available(ctx context.Context) bool
	Search(ctx context.Context, topic string, opts SearchOptions) ([]RawCandidate, error)
}
