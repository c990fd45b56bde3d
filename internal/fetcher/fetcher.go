// Package fetcher implements the fetch-and-stage job: on a fixed interval it
// downloads the upstream exchange-rate feed and stores the unmodified
// response bytes in object storage under a timestamp-derived key.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sebvel/dolar-pipeline/internal/common/constants"
)

// ObjectPutter stores one staged payload.
type ObjectPutter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Config holds the fetch job settings.
type Config struct {
	FeedURL  string
	Interval time.Duration
	Timeout  time.Duration
}

// Fetcher periodically stages the upstream feed into object storage.
type Fetcher struct {
	cfg    Config
	store  ObjectPutter
	client *http.Client
	now    func() time.Time

	fetchesTotal *prometheus.CounterVec
	bytesStaged  prometheus.Counter
}

type options struct {
	client *http.Client
	now    func() time.Time
}

// Options represents an optional function to override Fetcher default values.
type Options func(*options)

// WithHTTPClient overrides the HTTP client used for the upstream fetch.
func WithHTTPClient(client *http.Client) Options {
	return func(o *options) {
		o.client = client
	}
}

// WithClock overrides the clock used to derive object keys. Used in tests.
func WithClock(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// New creates a Fetcher staging into the provided store.
func New(cfg Config, store ObjectPutter, reg prometheus.Registerer, args ...Options) (*Fetcher, error) {
	if cfg.FeedURL == "" {
		cfg.FeedURL = constants.DefaultFeedURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := options{
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}

	fetchesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_feed_fetches_total",
		Help: "Number of upstream feed fetch attempts by result.",
	}, []string{"result"})
	bytesStaged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fetch_bytes_staged_total",
		Help: "Total raw payload bytes staged to object storage.",
	})
	for _, c := range []prometheus.Collector{fetchesTotal, bytesStaged} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register fetch metrics: %v", err)
		}
	}

	return &Fetcher{
		cfg:          cfg,
		store:        store,
		client:       opts.client,
		now:          opts.now,
		fetchesTotal: fetchesTotal,
		bytesStaged:  bytesStaged,
	}, nil
}

// FetchOnce performs one fetch-and-stage cycle and returns the object key and
// payload size. A non-2xx upstream status or a store failure is an error; no
// partial upload happens in either case.
func (f *Fetcher) FetchOnce(ctx context.Context) (key string, size int, err error) {
	defer func() {
		if err != nil {
			f.fetchesTotal.WithLabelValues("failure").Inc()
			return
		}
		f.fetchesTotal.WithLabelValues("success").Inc()
		f.bytesStaged.Add(float64(size))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.FeedURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("building feed request: %v", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetching feed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", 0, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("reading feed response: %v", err)
	}

	key = fmt.Sprintf("%s%d%s", constants.RawObjectPrefix, f.now().Unix(), constants.RawObjectSuffix)
	if err := f.store.Put(ctx, key, raw, "application/json"); err != nil {
		return "", 0, fmt.Errorf("staging payload: %v", err)
	}

	slog.Info("Staged raw feed payload", "key", key, "size_bytes", len(raw))
	return key, len(raw), nil
}

// Run fetches on the configured interval until the context is canceled.
// Individual cycle failures are logged and counted but do not stop the loop.
func (f *Fetcher) Run(ctx context.Context) error {
	slog.Info("Fetch job started", "url", f.cfg.FeedURL, "interval", f.cfg.Interval)

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, _, err := f.FetchOnce(ctx); err != nil {
			slog.Error("Fetch cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("Fetch job stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
