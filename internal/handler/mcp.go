package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"costplus/internal/audit"
	"costplus/internal/catalog"
	"costplus/internal/journal"
	"costplus/internal/model"
	"costplus/internal/syncer"
)

// DefaultListLimit caps the rows returned per list in a tool result.
const DefaultListLimit = 50

// === MCP Tool Input/Output Types ===

// AuditInput is the input schema for audit_wholesale_prices. Empty fields
// fall back to the server configuration.
type AuditInput struct {
	MarkupPercent     *float64 `json:"markupPercent,omitempty" jsonschema:"markup percent over cost; defaults to the server setting"`
	CostKey           string   `json:"costKey,omitempty" jsonschema:"cost meta key; detected when empty"`
	WholesaleKey      string   `json:"wholesaleKey,omitempty" jsonschema:"WholesaleX price meta key; detected when empty"`
	InheritParentCost bool     `json:"inheritParentCost,omitempty" jsonschema:"let variations without cost use the parent product's cost"`
	ListLimit         int      `json:"listLimit,omitempty" jsonschema:"maximum rows per returned list (default 50)"`
}

// AuditOutput is the audit report with its lists capped at ListLimit.
type AuditOutput struct {
	RunID       string              `json:"runId"`
	GeneratedAt string              `json:"generatedAt"`
	Config      audit.ReportConfig  `json:"config"`
	Summary     audit.Summary       `json:"summary"`
	MissingCost []audit.Row         `json:"missingCostProducts"`
	Fixable     []audit.Row         `json:"fixableProducts"`
	Errors      []catalog.ItemError `json:"errors"`
	Truncated   bool                `json:"truncated"`
}

// SyncInput is the input schema for sync_wholesale_prices.
type SyncInput struct {
	MarkupPercent     *float64 `json:"markupPercent,omitempty" jsonschema:"markup percent over cost; defaults to the server setting"`
	CostKey           string   `json:"costKey,omitempty" jsonschema:"cost meta key; detected when empty"`
	WholesaleKey      string   `json:"wholesaleKey,omitempty" jsonschema:"WholesaleX price meta key; detected when empty"`
	InheritParentCost bool     `json:"inheritParentCost,omitempty" jsonschema:"let variations without cost use the parent product's cost"`
	ListLimit         int      `json:"listLimit,omitempty" jsonschema:"maximum rows per returned list (default 50)"`
	Apply             bool     `json:"apply,omitempty" jsonschema:"write corrected prices; the server must allow it"`
	OnlyMissing       bool     `json:"onlyMissing,omitempty" jsonschema:"only set prices that are currently missing"`
}

// SyncOutput is the sync result with its change list capped at ListLimit.
type SyncOutput struct {
	RunID         string              `json:"runId"`
	Mode          syncer.Mode         `json:"mode"`
	MarkupPercent float64             `json:"markupPercent"`
	OnlyMissing   bool                `json:"onlyMissing"`
	CostKey       string              `json:"costKey"`
	WholesaleKey  string              `json:"wholesaleKey"`
	Stats         syncer.Stats        `json:"stats"`
	Changes       []syncer.Change     `json:"changes"`
	Errors        []catalog.ItemError `json:"errors"`
	Truncated     bool                `json:"truncated"`
}

// NewMCPServer creates an MCP server with the price tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "costplus",
			Version: h.opts.Version,
		},
		&mcp.ServerOptions{
			Instructions: "Wholesale cost-plus price reconciliation for a WooCommerce store. " +
				"Audit first; sync previews changes unless apply is set and the server allows writes.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit_wholesale_prices",
		Description: "Classify every product and variation as complete, fixable or missing cost. Read-only.",
	}, h.mcpAudit)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_wholesale_prices",
		Description: "Compute the cost-plus wholesale price for every fixable item. Dry run unless apply is true.",
	}, h.mcpSync)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpAudit(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AuditInput,
) (*mcp.CallToolResult, AuditOutput, error) {
	markup, err := h.markup(input.MarkupPercent)
	if err != nil {
		return nil, AuditOutput{}, err
	}

	started := time.Now()
	report, err := audit.Run(ctx, h.catalog, audit.Options{
		MarkupPercent:     markup,
		CostKey:           withDefault(input.CostKey, h.opts.Defaults.CostKey),
		WholesaleKey:      withDefault(input.WholesaleKey, h.opts.Defaults.WholesaleKey),
		InheritParentCost: input.InheritParentCost,
		Logger:            h.logger,
		Metrics:           h.opts.Metrics,
	})
	if err != nil {
		return nil, AuditOutput{}, h.mcpError(err)
	}
	h.record(ctx, journal.FromAudit(report, started, time.Now()), nil)

	limit := listLimit(input.ListLimit)
	missing, t1 := truncate(report.MissingCost, limit)
	fixable, t2 := truncate(report.Fixable, limit)
	return nil, AuditOutput{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt,
		Config:      report.Config,
		Summary:     report.Summary,
		MissingCost: missing,
		Fixable:     fixable,
		Errors:      report.Errors,
		Truncated:   t1 || t2,
	}, nil
}

func (h *Handler) mcpSync(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SyncInput,
) (*mcp.CallToolResult, SyncOutput, error) {
	if input.Apply && !h.opts.AllowApply {
		return nil, SyncOutput{}, fmt.Errorf("apply is disabled on this server; restart it with --allow-apply")
	}

	markup, err := h.markup(input.MarkupPercent)
	if err != nil {
		return nil, SyncOutput{}, err
	}

	res, err := syncer.Run(ctx, h.catalog, syncer.Options{
		MarkupPercent:     markup,
		CostKey:           withDefault(input.CostKey, h.opts.Defaults.CostKey),
		WholesaleKey:      withDefault(input.WholesaleKey, h.opts.Defaults.WholesaleKey),
		Apply:             input.Apply,
		OnlyMissing:       input.OnlyMissing,
		InheritParentCost: input.InheritParentCost,
		Logger:            h.logger,
		Metrics:           h.opts.Metrics,
	})
	if res != nil {
		run, changes := journal.FromSync(res, err)
		h.record(ctx, run, changes)
	}
	if err != nil {
		return nil, SyncOutput{}, h.mcpError(err)
	}

	changes, truncated := truncate(res.Changes, listLimit(input.ListLimit))
	return nil, SyncOutput{
		RunID:         res.RunID,
		Mode:          res.Mode,
		MarkupPercent: res.MarkupPercent,
		OnlyMissing:   res.OnlyMissing,
		CostKey:       res.CostKey,
		WholesaleKey:  res.WholesaleKey,
		Stats:         res.Stats,
		Changes:       changes,
		Errors:        res.Errors,
		Truncated:     truncated,
	}, nil
}

func (h *Handler) markup(v *float64) (float64, error) {
	if v == nil {
		return h.opts.Defaults.MarkupPercent, nil
	}
	if *v < 0 {
		return 0, model.NewConfigError("markupPercent", "must be a non-negative number")
	}
	return *v, nil
}

// record writes a run to the journal. Failures are logged, not returned:
// the run itself already happened.
func (h *Handler) record(ctx context.Context, run journal.Run, changes []journal.PriceChange) {
	if h.opts.Journal == nil {
		return
	}
	if err := h.opts.Journal.Record(ctx, run, changes); err != nil {
		h.logger.Error("journal write failed", "run_id", run.ID, "error", err)
	}
}

// mcpError converts driver errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, model.ErrKeyResolution) || errors.Is(err, model.ErrConfig) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

func listLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}

func truncate[T any](items []T, limit int) ([]T, bool) {
	if items == nil {
		return []T{}, false
	}
	if len(items) <= limit {
		return items, false
	}
	return items[:limit], true
}

func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}
