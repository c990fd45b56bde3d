package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebvel/dolar-pipeline/internal/ingest"
	"github.com/sebvel/dolar-pipeline/internal/rates"
	"github.com/sebvel/dolar-pipeline/internal/store/objects"
)

type stubSource struct {
	batches chan []objects.Event
}

func newStubSource() *stubSource {
	return &stubSource{batches: make(chan []objects.Event)}
}

func (s *stubSource) Listen(ctx context.Context) <-chan []objects.Event {
	return s.batches
}

type recordingHandler struct {
	mu   sync.Mutex
	errs []error

	batches [][]objects.Event
}

func (h *recordingHandler) HandleBatch(ctx context.Context, events []objects.Event) (rates.Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, events)
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return rates.Report{}, err
	}
	return rates.Report{FilesProcessed: len(events)}, nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.batches)
}

func TestListenerHandlesBatchesInOrder(t *testing.T) {
	t.Parallel()

	source := newStubSource()
	handler := &recordingHandler{}
	l := ingest.NewListener(source, handler)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	first := []objects.Event{{Bucket: "dolar-raw", Key: "dolar-1.json"}}
	second := []objects.Event{{Bucket: "dolar-raw", Key: "dolar-2.json"}, {Bucket: "dolar-raw", Key: "dolar-3.json"}}
	source.batches <- first
	source.batches <- second

	require.Eventually(t, func() bool { return handler.count() == 2 },
		2*time.Second, 5*time.Millisecond, "both batches should be handled")

	handler.mu.Lock()
	assert.Equal(t, first, handler.batches[0], "first batch")
	assert.Equal(t, second, handler.batches[1], "second batch")
	handler.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled, "Run() should return the cancellation cause")
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after context cancellation")
	}
}

func TestListenerKeepsConsumingAfterBatchFailure(t *testing.T) {
	t.Parallel()

	source := newStubSource()
	handler := &recordingHandler{errs: []error{errors.New("store unavailable")}}
	l := ingest.NewListener(source, handler)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go l.Run(ctx)

	source.batches <- []objects.Event{{Bucket: "dolar-raw", Key: "dolar-1.json"}}

	// The second batch is only consumed once the post-failure backoff expires.
	delivered := make(chan struct{})
	go func() {
		source.batches <- []objects.Event{{Bucket: "dolar-raw", Key: "dolar-2.json"}}
		close(delivered)
	}()

	select {
	case <-delivered:
	case <-time.After(10 * time.Second):
		t.Fatal("listener stopped consuming after a failed batch")
	}
	require.Eventually(t, func() bool { return handler.count() == 2 },
		2*time.Second, 5*time.Millisecond, "the batch after the failure should be handled")
}

func TestListenerStopsWhenStreamCloses(t *testing.T) {
	t.Parallel()

	source := newStubSource()
	l := ingest.NewListener(source, &recordingHandler{})

	done := make(chan error, 1)
	go func() { done <- l.Run(t.Context()) }()

	close(source.batches)
	select {
	case err := <-done:
		require.Error(t, err, "an unexpectedly closed stream should be an error")
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after the stream closed")
	}
}
