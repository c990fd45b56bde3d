// Package trigger turns "object created" storage notifications into batch
// loader invocations.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sebvel/dolar-pipeline/internal/common/constants"
	"github.com/sebvel/dolar-pipeline/internal/rates"
	"github.com/sebvel/dolar-pipeline/internal/store/objects"
)

// ObjectFetcher reads one staged payload back from object storage.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader parses and persists one payload.
type Loader interface {
	Load(ctx context.Context, source string, payload []byte) (rates.Entry, error)
}

// Handler processes notification batches sequentially, one full
// parse-normalize-insert cycle per object.
type Handler struct {
	objects ObjectFetcher
	loader  Loader

	filesProcessed *prometheus.CounterVec
	fetchErrors    prometheus.Counter
	rowsInserted   prometheus.Counter
	malformedRows  prometheus.Counter
	loadDuration   prometheus.Histogram
}

// New creates a Handler reading payloads with fetcher and loading them with loader.
func New(fetcher ObjectFetcher, loader Loader, reg prometheus.Registerer) (*Handler, error) {
	filesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_files_processed_total",
		Help: "Number of staged objects handled by the ingest service, by result.",
	}, []string{"result"})
	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_fetch_errors_total",
		Help: "Number of staged objects whose payload could not be read back from storage.",
	})
	rowsInserted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_rows_inserted_total",
		Help: "Number of normalized rows inserted into the rates table.",
	})
	malformedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_malformed_records_total",
		Help: "Number of malformed feed records skipped during normalization.",
	})
	loadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_load_duration_seconds",
		Help:    "Time spent parsing and persisting one staged object.",
		Buckets: prometheus.DefBuckets,
	})
	for _, c := range []prometheus.Collector{filesProcessed, fetchErrors, rowsInserted, malformedRows, loadDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register ingest metrics: %v", err)
		}
	}

	return &Handler{
		objects:        fetcher,
		loader:         loader,
		filesProcessed: filesProcessed,
		fetchErrors:    fetchErrors,
		rowsInserted:   rowsInserted,
		malformedRows:  malformedRows,
		loadDuration:   loadDuration,
	}, nil
}

// HandleBatch processes one notification batch and returns the aggregated
// ingestion report.
//
// Keys outside the staging naming convention are skipped silently and do not
// count as processed files. A malformed payload or an empty valid-row result
// fails only that object; the rest of the batch is still attempted. Store
// failures abort the invocation, leaving already committed objects in place.
func (h *Handler) HandleBatch(ctx context.Context, events []objects.Event) (rates.Report, error) {
	var report rates.Report
	for _, ev := range events {
		key := normalizeKey(ev.Key)
		if !RelevantKey(key) {
			slog.Debug("Skipping object outside naming convention", "bucket", ev.Bucket, "key", key)
			continue
		}

		source := ev.Bucket + "/" + key
		payload, err := h.objects.Fetch(ctx, ev.Bucket, key)
		if err != nil {
			h.fetchErrors.Inc()
			return report, fmt.Errorf("fetching %s: %w", source, err)
		}

		loadStart := time.Now()
		entry, err := h.loader.Load(ctx, source, payload)
		h.loadDuration.Observe(time.Since(loadStart).Seconds())
		switch {
		case errors.Is(err, rates.ErrStore):
			h.filesProcessed.WithLabelValues("store_error").Inc()
			return report, err
		case errors.Is(err, rates.ErrNoRows):
			h.filesProcessed.WithLabelValues("empty").Inc()
			slog.Warn("Payload produced no valid rows, skipping", "source", source)
			continue
		case err != nil:
			h.filesProcessed.WithLabelValues("invalid").Inc()
			slog.Error("Failed to load payload", "source", source, "err", err)
			continue
		}

		h.filesProcessed.WithLabelValues("success").Inc()
		h.rowsInserted.Add(float64(entry.RowsInserted))
		h.malformedRows.Add(float64(entry.Malformed))
		report.Add(entry)
	}
	return report, nil
}

// RelevantKey reports whether an object key matches the staging naming
// convention (prefix "dolar-", suffix ".json").
func RelevantKey(key string) bool {
	name := path.Base(key)
	return strings.HasPrefix(name, constants.RawObjectPrefix) &&
		strings.HasSuffix(name, constants.RawObjectSuffix)
}

// normalizeKey undoes the URL encoding notification records apply to keys.
func normalizeKey(key string) string {
	if unescaped, err := url.QueryUnescape(key); err == nil {
		return unescaped
	}
	return key
}
