package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// malformedSampleLimit bounds how many malformed-record descriptions are kept
// for diagnostics per payload.
const malformedSampleLimit = 5

var (
	// ErrNoRows is returned when a payload parsed cleanly but produced no
	// valid rows. Callers should skip the payload and continue with the rest
	// of the batch.
	ErrNoRows = errors.New("no valid rows in payload")

	// ErrStore marks failures of the backing store. These abort the whole
	// invocation: the trigger infrastructure owns the retry policy.
	ErrStore = errors.New("store failure")
)

// Store persists normalized rows. Both operations must be safe to run
// repeatedly: the schema creation is guarded, and inserts are append-only.
type Store interface {
	EnsureSchema(ctx context.Context) error
	InsertPoints(ctx context.Context, points []Point) error
}

// Loader drives normalization over a raw payload and bulk-inserts the result.
type Loader struct {
	store Store
}

// NewLoader creates a Loader backed by the given store.
func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load parses one raw payload, normalizes every discovered record, and
// performs a single bulk insert of the valid rows.
//
// Individual malformed records are skipped and counted, never fatal. A
// payload with no container at the top level or with zero valid rows fails
// without touching the store; other payloads in the same batch are
// unaffected. Store errors are wrapped with ErrStore.
func (l *Loader) Load(ctx context.Context, source string, payload []byte) (Entry, error) {
	records, err := Discover(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("discovering rows in %s: %w", source, err)
	}

	entry := Entry{Source: source}
	var points []Point
	var samples []string
	for _, rec := range records {
		p, err := Normalize(rec)
		if err != nil {
			entry.Malformed++
			if len(samples) < malformedSampleLimit {
				samples = append(samples, err.Error())
			}
			continue
		}
		points = append(points, p)
	}

	if entry.Malformed > 0 {
		slog.Warn("Skipped malformed records", "source", source, "count", entry.Malformed, "samples", samples)
	}
	if len(points) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoRows, source)
	}

	if err := l.store.EnsureSchema(ctx); err != nil {
		return Entry{}, fmt.Errorf("%w: ensuring schema: %v", ErrStore, err)
	}
	if err := l.store.InsertPoints(ctx, points); err != nil {
		return Entry{}, fmt.Errorf("%w: inserting %d rows from %s: %v", ErrStore, len(points), source, err)
	}

	entry.RowsInserted = len(points)
	entry.First = points[0].Time
	entry.Last = points[len(points)-1].Time
	return entry, nil
}
