package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"costplus/internal/handler"
	"costplus/internal/middleware"
)

func newMCPCmd(a *app) *cobra.Command {
	var (
		addr       string
		allowApply bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the audit and sync tools over the Model Context Protocol",
		Long: `mcp exposes audit_wholesale_prices and sync_wholesale_prices to MCP clients.

It speaks stdio by default. With --addr it serves streamable HTTP at /mcp,
plus /health and /metrics. Sync only writes when --allow-apply is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			defer a.writeMetrics(cfg.MetricsFile)

			client, err := a.newClient(cfg)
			if err != nil {
				return err
			}
			opts := handler.Options{
				Defaults: handler.Defaults{
					MarkupPercent: cfg.MarkupPercent,
					CostKey:       cfg.CostKey,
					WholesaleKey:  cfg.WholesaleKey,
				},
				AllowApply: allowApply,
				Metrics:    a.metrics,
				Version:    version,
			}
			jr, err := a.openJournal(cfg.JournalDSN)
			if err != nil {
				return err
			}
			if jr != nil {
				defer jr.Close()
				opts.Journal = jr
			}

			h := handler.New(client, opts, a.logger)
			if addr == "" {
				a.logger.Info("mcp server starting on stdio", slog.Bool("allow_apply", allowApply))
				return h.NewMCPServer().Run(ctx, &mcp.StdioTransport{})
			}
			return serveHTTP(ctx, addr, h, a.logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&addr, "addr", "", "serve streamable HTTP on this address (e.g. :8080) instead of stdio")
	fl.BoolVar(&allowApply, "allow-apply", false, "let sync_wholesale_prices write to the store")

	return cmd
}

// serveHTTP runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func serveHTTP(ctx context.Context, addr string, h *handler.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	// Tool calls walk the whole catalog, so writes get a long deadline.
	server := &http.Server{
		Addr:         addr,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}
