// Package handler exposes the audit and sync drivers over MCP, plus the
// health and metrics endpoints of the HTTP server.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"costplus/internal/adapter"
	"costplus/internal/journal"
	"costplus/internal/metrics"
)

// RunRecorder persists finished runs. *journal.Journal implements it.
type RunRecorder interface {
	Record(ctx context.Context, run journal.Run, changes []journal.PriceChange) error
}

// Defaults are the server-side settings a tool call falls back to.
type Defaults struct {
	MarkupPercent float64
	CostKey       string
	WholesaleKey  string
}

// Options configures a Handler.
type Options struct {
	Defaults Defaults
	// AllowApply enables writes from sync_wholesale_prices.
	AllowApply bool
	Journal    RunRecorder // optional
	Metrics    *metrics.Recorder
	Version    string
}

// Handler holds dependencies for the MCP tools and HTTP endpoints.
type Handler struct {
	catalog adapter.Catalog
	opts    Options
	logger  *slog.Logger
}

// New creates a new Handler over cat.
func New(cat adapter.Catalog, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Handler{
		catalog: cat,
		opts:    opts,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	mux.Handle("GET /metrics", h.opts.Metrics.Handler())

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.opts.Version,
	})
}

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
