// Package rates converts raw exchange-rate feed payloads into normalized
// time-series rows and loads them into the rates table.
package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the naive wall-clock layout used for persisted timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// ValueScale is the number of fractional digits retained when persisting values.
const ValueScale = 4

// Record is a raw candidate row as discovered in the feed payload: the
// elements of one leaf pair, still in their wire representation.
type Record []any

// Point is a normalized row ready for persistence.
//
// Time is a naive wall-clock instant truncated to second precision, derived
// from the feed's epoch-milliseconds in the process's local timezone. Value is
// an exact decimal, never round-tripped through binary floating point.
type Point struct {
	Time  time.Time
	Value decimal.Decimal
}

// Entry describes the outcome of loading one source object.
type Entry struct {
	Source       string    `json:"source"`
	RowsInserted int       `json:"rows_inserted"`
	Malformed    int       `json:"malformed_records"`
	First        time.Time `json:"first_fechahora"`
	Last         time.Time `json:"last_fechahora"`
}

// Report aggregates the outcome of one ingestion invocation. It is returned
// to the invoking trigger infrastructure for logging and is not persisted.
type Report struct {
	FilesProcessed    int     `json:"files_processed"`
	TotalRowsInserted int     `json:"total_rows_inserted"`
	Details           []Entry `json:"details"`
}

// Add folds one successfully loaded entry into the report.
func (r *Report) Add(e Entry) {
	r.FilesProcessed++
	r.TotalRowsInserted += e.RowsInserted
	r.Details = append(r.Details, e)
}
