package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"costplus/internal/model"
	"costplus/internal/reconcile"
)

// Format selects a report renderer.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
)

// DefaultPreviewLimit is how many fixable items the console report lists.
const DefaultPreviewLimit = 10

const reportWidth = 80

// RenderOptions controls the console and CSV renderers.
type RenderOptions struct {
	// ListMissing adds the missing-cost listing to the console report and
	// restricts CSV rows to missing_cost.
	ListMissing  bool
	PreviewLimit int // Default: DefaultPreviewLimit
	// FixCommand is the command suggested under the fixable preview.
	FixCommand string
}

// Render writes report in format f.
func Render(w io.Writer, report *Report, f Format, opts RenderOptions) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatCSV:
		return WriteCSV(w, report, opts.ListMissing)
	case FormatConsole, "":
		return WriteConsole(w, report, opts)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// WriteJSON writes the report as one indented JSON document.
func WriteJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(report)
}

// CSVHeader is the column order of the CSV report.
var CSVHeader = []string{
	"entityType",
	"id",
	"parentId",
	"productType",
	"sku",
	"name",
	"status",
	"reason",
	"cost",
	"currentWholesale",
	"expectedWholesale",
}

// WriteCSV writes one row per detail row. With onlyMissing, rows other than
// missing_cost are dropped.
func WriteCSV(w io.Writer, report *Report, onlyMissing bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, row := range report.Details {
		if onlyMissing && row.Status != reconcile.StatusMissingCost {
			continue
		}
		parent := ""
		if row.ParentID != 0 {
			parent = strconv.FormatInt(row.ParentID, 10)
		}
		record := []string{
			row.EntityType,
			strconv.FormatInt(row.ID, 10),
			parent,
			row.ProductType,
			row.SKU,
			row.Name,
			string(row.Status),
			row.Reason,
			csvNumber(row.Cost),
			csvNumber(row.CurrentWholesale),
			csvNumber(row.ExpectedWholesale),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// =============================================================================
// CONSOLE REPORT
// =============================================================================

type consoleStyles struct {
	title    lipgloss.Style
	section  lipgloss.Style
	complete lipgloss.Style
	fixable  lipgloss.Style
	missing  lipgloss.Style
	muted    lipgloss.Style
}

// newConsoleStyles binds styles to w. Colors are dropped automatically when
// w is not a terminal or NO_COLOR is set.
func newConsoleStyles(w io.Writer) consoleStyles {
	r := lipgloss.NewRenderer(w)
	return consoleStyles{
		title:    r.NewStyle().Bold(true),
		section:  r.NewStyle().Bold(true),
		complete: r.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
		fixable:  r.NewStyle().Foreground(lipgloss.Color("#FFB300")),
		missing:  r.NewStyle().Foreground(lipgloss.Color("#E53935")),
		muted:    r.NewStyle().Faint(true),
	}
}

// WriteConsole writes the fixed-width human report.
func WriteConsole(w io.Writer, report *Report, opts RenderOptions) error {
	limit := opts.PreviewLimit
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	fixCmd := opts.FixCommand
	if fixCmd == "" {
		fixCmd = "costplus sync --apply"
	}

	st := newConsoleStyles(w)
	s := report.Summary
	total := s.Total()
	heavy := strings.Repeat("=", reportWidth)
	light := strings.Repeat("-", reportWidth)

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("%s", heavy)
	line("%s", st.title.Render("                    WHOLESALE PRICE AUDIT REPORT"))
	line("%s", heavy)
	line("Generated: %s", report.GeneratedAt)
	line("Markup: %s%%", strconv.FormatFloat(report.Config.MarkupPercent, 'f', -1, 64))
	line("Detected Keys:")
	line("  Cost Key:      %s", report.Config.CostKey)
	line("  Wholesale Key: %s", report.Config.WholesaleKey)
	line("%s", light)
	line("%s", st.section.Render("                              SUMMARY"))
	line("%s", light)
	line("                          Products    Variations    Total")
	summaryRow := func(label string, style lipgloss.Style, c Counts) {
		padded := fmt.Sprintf("%-24s", label)
		line("%s%9d    %10d    %5d (%s)", style.Render(padded), c.Products, c.Variations, c.Total(), percent(c.Total(), total))
	}
	summaryRow("Complete", st.complete, s.Complete)
	summaryRow("Fixable", st.fixable, s.Fixable)
	summaryRow("Missing Cost", st.missing, s.MissingCost)
	line("%s", light)
	line("TOTAL                   %9d    %10d    %5d", s.TotalProducts, s.TotalVariations, total)
	line("%s", light)

	if opts.ListMissing {
		line("%s", st.section.Render("                    PRODUCTS MISSING COST DATA"))
		line("%s", light)
		if len(report.MissingCost) == 0 {
			line("No products or variations are missing cost data.")
		} else {
			for _, row := range report.MissingCost {
				sku := "SKU: (none)"
				if row.SKU != "" {
					sku = "SKU: " + row.SKU
				}
				line("  %s  %s  Name: %s", idLabel(row), sku, row.Name)
			}
		}
		line("%s", light)
	}

	if len(report.Errors) > 0 {
		line("%s", st.section.Render("                    FETCH ERRORS"))
		line("%s", light)
		for _, e := range report.Errors {
			line("  Product ID: %d  Name: %s  %s: %s", e.ProductID, e.ProductName, e.Type, e.Message)
		}
		line("%s", light)
	}

	line("%s", st.section.Render("                    FIXABLE PRODUCTS (Preview)"))
	line("%s", light)
	line("These products have cost data but missing/incorrect wholesale prices.")
	line("%s", st.muted.Render(fmt.Sprintf("Run `%s` to fix.", fixCmd)))
	if len(report.Fixable) == 0 {
		line("No fixable products found.")
	} else {
		line("First %d fixable entries:", limit)
		for i, row := range report.Fixable {
			if i == limit {
				break
			}
			line("  %s  Cost: %s  Current: %s  Expected: %s",
				idLabel(row),
				model.FormatMoney(row.Cost),
				model.FormatMoney(row.CurrentWholesale),
				model.FormatMoney(row.ExpectedWholesale),
			)
		}
	}
	line("%s", heavy)

	_, err := io.WriteString(w, b.String())
	return err
}

func idLabel(row Row) string {
	if row.EntityType == "variation" {
		return fmt.Sprintf("Variation ID: %d (Parent: %d)", row.ID, row.ParentID)
	}
	return fmt.Sprintf("Product ID: %d", row.ID)
}

// percent renders part/total as a whole percentage, rounding halves up.
func percent(part, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", int(math.Floor(float64(part)/float64(total)*100+0.5)))
}
