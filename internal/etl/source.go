package etl

import "context"

// ── Source ──────────────────────────────────────────────────
// A Source extracts the run's bounded dataset from an external system.
// Implementations live in etl/sources/, one file per source kind; the set
// is closed and selected from configuration by sources.New.

// Source is the interface every data source implements.
type Source interface {
	// Name describes the source for logs ("csv parcels.csv", "postgres gis.sites").
	Name() string

	// Read streams records from the source into a channel.
	// The channel is closed when all records have been read or ctx is cancelled.
	// Errors are sent on the error channel (buffered size 1).
	Read(ctx context.Context) (<-chan Record, <-chan error)
}
