// Package handlers provides the HTTP handlers for the query service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sebvel/dolar-pipeline/internal/rates"
)

// isoLayout is the response timestamp encoding.
const isoLayout = "2006-01-02T15:04:05"

// requestLayouts are the accepted interval bound encodings.
var requestLayouts = []string{
	time.RFC3339,
	isoLayout,
	rates.TimeLayout,
}

// IntervalStore runs the bounded range query behind the interval endpoint.
type IntervalStore interface {
	QueryInterval(ctx context.Context, start, end time.Time) ([]rates.Point, error)
}

// intervalRequest is the body of POST /api/v1/dolar/intervalo.
type intervalRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type point struct {
	Fechahora string  `json:"fechahora"`
	Valor     float64 `json:"valor"`
}

type intervalResponse struct {
	Count int     `json:"count"`
	Data  []point `json:"data"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// HealthHandler handles requests to the /health endpoint.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// Interval is the handler for interval queries against the rates table.
type Interval struct {
	store IntervalStore
}

// NewInterval creates an Interval handler backed by store.
func NewInterval(store IntervalStore) *Interval {
	return &Interval{store: store}
}

// ServeHTTP handles one interval query.
//
// Invalid bounds (unparseable, or end <= start) are client errors; a store
// failure is a server error. Matching points are returned ordered ascending
// by fechahora, values as their stored decimal magnitude.
func (h *Interval) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	start, err := parseBound(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid `start` timestamp: %v", err))
		return
	}
	end, err := parseBound(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid `end` timestamp: %v", err))
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "`end` must be after `start`")
		return
	}

	points, err := h.store.QueryInterval(r.Context(), start, end)
	if err != nil {
		slog.Error("Interval query failed", "req_id", reqID, "err", err)
		writeError(w, http.StatusInternalServerError, "Error querying the database")
		return
	}

	resp := intervalResponse{Count: len(points), Data: make([]point, 0, len(points))}
	for _, p := range points {
		resp.Data = append(resp.Data, point{
			Fechahora: p.Time.Format(isoLayout),
			Valor:     p.Value.InexactFloat64(),
		})
	}

	slog.Info("Interval query served", "req_id", reqID,
		"start", start.Format(rates.TimeLayout), "end", end.Format(rates.TimeLayout), "count", resp.Count)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode response", "req_id", reqID, "err", err)
	}
}

// parseBound accepts both space-separated and ISO-8601 timestamp encodings.
// Bounds are interpreted as naive local wall-clock instants, matching the
// stored representation.
func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range requestLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorResponse{Detail: detail}); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
