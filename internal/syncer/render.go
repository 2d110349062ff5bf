package syncer

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"costplus/internal/model"
)

// WriteSummary prints the run header, the per-entity counts and, with
// listChanges, every planned or applied change.
func WriteSummary(w io.Writer, res *Result, listChanges bool) error {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	mode := "DRY RUN"
	if res.Mode == ModeApply {
		mode = "APPLY"
	}
	line("Mode: %s", mode)
	line("Markup: %s%%", strconv.FormatFloat(res.MarkupPercent, 'f', -1, 64))
	line("Wholesale key: %s", res.WholesaleKey)
	line("Cost key: %s", res.CostKey)

	if listChanges && len(res.Changes) > 0 {
		line("")
		line("Changes:")
		for _, c := range res.Changes {
			id := fmt.Sprintf("product %d", c.ID)
			if c.EntityType == "variation" {
				id = fmt.Sprintf("variation %d (parent %d)", c.ID, c.ParentID)
			}
			state := "planned"
			if c.Applied {
				state = "applied"
			}
			line("  [%s] %s %q: %s -> $%s", state, id, c.Name, model.FormatMoney(c.Current), c.Value)
		}
	}

	for _, e := range res.Errors {
		line("")
		line("Skipped product %d (%s): %s", e.ProductID, e.ProductName, e.Message)
	}

	st := res.Stats
	line("")
	line("Summary:")
	line("  simple reviewed:        %d", st.Simple.Reviewed)
	line("  simple missing cost:    %d", st.Simple.MissingCost)
	line("  simple needs update:    %d", st.Simple.NeedsUpdate)
	line("  simple updated:         %d", st.Simple.Updated)
	line("  variations reviewed:    %d", st.Variation.Reviewed)
	line("  variations missing cost:%d", st.Variation.MissingCost)
	line("  variations needs update:%d", st.Variation.NeedsUpdate)
	line("  variations updated:     %d", st.Variation.Updated)

	if res.Mode == ModeDryRun {
		line("")
		line("Dry run complete. Re-run with --apply to write changes.")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON writes the result as one indented JSON document.
func WriteJSON(w io.Writer, res *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}
