package journal

import (
	"time"

	"costplus/internal/audit"
	"costplus/internal/syncer"
)

// FromAudit builds the journal entry for an audit report.
func FromAudit(report *audit.Report, started, finished time.Time) Run {
	s := report.Summary
	return Run{
		ID:            report.RunID,
		Driver:        "audit",
		MarkupPercent: report.Config.MarkupPercent,
		CostKey:       report.Config.CostKey,
		WholesaleKey:  report.Config.WholesaleKey,
		Reviewed:      s.Total(),
		Complete:      s.Complete.Total(),
		Fixable:       s.Fixable.Total(),
		MissingCost:   s.MissingCost.Total(),
		FetchErrors:   len(report.Errors),
		StartedAt:     started.UTC(),
		FinishedAt:    finished.UTC(),
	}
}

// FromSync builds the journal entry and change rows for a sync result.
// runErr is the error the run ended with, if any.
func FromSync(res *syncer.Result, runErr error) (Run, []PriceChange) {
	st := res.Stats
	run := Run{
		ID:            res.RunID,
		Driver:        "sync",
		Mode:          string(res.Mode),
		MarkupPercent: res.MarkupPercent,
		CostKey:       res.CostKey,
		WholesaleKey:  res.WholesaleKey,
		Reviewed:      st.Simple.Reviewed + st.Variation.Reviewed,
		Fixable:       st.Simple.NeedsUpdate + st.Variation.NeedsUpdate,
		MissingCost:   st.Simple.MissingCost + st.Variation.MissingCost,
		Updated:       st.Simple.Updated + st.Variation.Updated,
		FetchErrors:   len(res.Errors),
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	changes := make([]PriceChange, 0, len(res.Changes))
	for _, c := range res.Changes {
		changes = append(changes, PriceChange{
			EntityType: c.EntityType,
			ItemID:     c.ID,
			ParentID:   c.ParentID,
			Name:       c.Name,
			Cost:       c.Cost,
			Previous:   c.Current,
			Expected:   c.Expected,
			Value:      c.Value,
			Applied:    c.Applied,
		})
	}
	return run, changes
}
