package ingest

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sebvel/dolar-pipeline/internal/rates"
	"github.com/sebvel/dolar-pipeline/internal/store/objects"
)

// BatchSource emits notification batches for newly created objects.
type BatchSource interface {
	Listen(ctx context.Context) <-chan []objects.Event
}

// BatchHandler loads every relevant object of one notification batch.
type BatchHandler interface {
	HandleBatch(ctx context.Context, events []objects.Event) (rates.Report, error)
}

// Listener consumes bucket notifications and drives the batch handler.
//
// Batches are handled strictly sequentially. A failed batch is logged and the
// listener backs off before consuming the next one; the storage side owns
// redelivery, so nothing is retried here.
type Listener struct {
	source  BatchSource
	handler BatchHandler
}

// NewListener creates a Listener feeding batches from source into handler.
func NewListener(source BatchSource, handler BatchHandler) *Listener {
	return &Listener{source: source, handler: handler}
}

// Run blocks consuming notification batches until the context is canceled or
// the notification stream closes.
func (l *Listener) Run(ctx context.Context) error {
	slog.Info("Listening for storage notifications")

	baseBackoff := 5 * time.Second
	maxBackoff := 30 * time.Second
	backoff := baseBackoff

	batches := l.source.Listen(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return errors.New("notification stream closed unexpectedly")
			}

			report, err := l.handler.HandleBatch(ctx, batch)
			if err != nil {
				slog.Error("Batch ingestion failed", "err", err, "partial_report", report)

				// #nosec:G404 We don't need cryptographic randomness.
				sleep := time.Duration(rand.Int63n(int64(backoff)))
				select {
				case <-time.After(sleep):
				case <-ctx.Done():
					return ctx.Err()
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}

			backoff = baseBackoff
			slog.Info("Batch ingested",
				"files_processed", report.FilesProcessed,
				"total_rows_inserted", report.TotalRowsInserted)
			for _, d := range report.Details {
				slog.Debug("Ingested object", "source", d.Source, "rows", d.RowsInserted,
					"first", d.First.Format(rates.TimeLayout), "last", d.Last.Format(rates.TimeLayout))
			}
		}
	}
}
