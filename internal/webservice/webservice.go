// Package webservice provides the read-only HTTP API over the rates table.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sebvel/dolar-pipeline/internal/webservice/handlers"
	"github.com/sebvel/dolar-pipeline/internal/webservice/metrics"
)

// Server is a struct that holds the HTTP server and its configuration.
type Server struct {
	httpServer *http.Server

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context requests a graceful stop.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int

	ListenHost string
	ListenPort int
}

// New creates a new Server exposing the query endpoints over the given store.
func New(ctx context.Context, store handlers.IntervalStore, reg prometheus.Registerer, sc StaticConfig) (*Server, error) {
	if store == nil {
		return nil, errors.New("a store is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel}

	mw := metrics.New(reg)
	mux := http.NewServeMux()
	mux.Handle("GET /health", mw.Monitor("health", http.HandlerFunc(handlers.HealthHandler)))
	mux.Handle("POST /api/v1/dolar/intervalo", mw.Monitor("intervalo", handlers.NewInterval(store)))

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", sc.ListenHost, sc.ListenPort),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        http.TimeoutHandler(mux, sc.RequestTimeout, ""),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	return &s, nil
}

// Run starts the HTTP server and listens for incoming requests.
func (s *Server) Run() error {
	slog.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-s.gracefulCtx.Done():
		slog.Info("Graceful shutdown initiated")
		// use parent ctx so a cancel elsewhere unblocks Shutdown immediately
		if err := s.httpServer.Shutdown(s.ctx); err != nil {
			slog.Error("Graceful shutdown failed", "err", err)
			return err
		}
		slog.Info("Server shut down gracefully")
		s.cancel()
		return nil

	case err := <-serverErr:
		if err != nil {
			slog.Error("Server encountered error", "err", err)
			s.cancel()
			return err
		}
		// unlikely: ListenAndServe returned nil
		s.cancel()
		return nil
	}
}

// Quit shuts down the HTTP server gracefully.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.httpServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}
