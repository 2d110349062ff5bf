package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"costplus/internal/journal"
	"costplus/internal/syncer"
)

func newSyncCmd(a *app) *cobra.Command {
	var (
		rf          runFlags
		dryRun      bool
		apply       bool
		onlyMissing bool
		listChanges bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Set wholesale prices to cost plus markup",
		Long: `Sync computes the cost-plus wholesale price for every product and variation
with a known cost. Without --apply it only reports what it would change.

--only-missing leaves items that already carry a wholesale price alone,
even when that price is wrong.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.loadConfig(cmd, &rf)
			if err != nil {
				return err
			}
			defer a.writeMetrics(cfg.MetricsFile)

			client, err := a.newClient(cfg)
			if err != nil {
				return err
			}
			jr, err := a.openJournal(cfg.JournalDSN)
			if err != nil {
				return err
			}
			if jr != nil {
				defer jr.Close()
			}

			res, runErr := syncer.Run(ctx, client, syncer.Options{
				MarkupPercent:     cfg.MarkupPercent,
				CostKey:           cfg.CostKey,
				WholesaleKey:      cfg.WholesaleKey,
				Apply:             apply,
				OnlyMissing:       onlyMissing,
				InheritParentCost: rf.inheritParentCost,
				Logger:            a.logger,
				Metrics:           a.metrics,
			})
			if res == nil {
				return runErr
			}

			if jr != nil {
				run, changes := journal.FromSync(res, runErr)
				if err := jr.Record(ctx, run, changes); err != nil {
					a.logger.Error("journal write failed", slog.String("run_id", run.ID), slog.String("error", err.Error()))
				}
			}

			if asJSON {
				err = syncer.WriteJSON(a.stdout, res)
			} else {
				err = syncer.WriteSummary(a.stdout, res, listChanges)
			}
			if runErr != nil {
				return runErr
			}
			return err
		},
	}

	rf.register(cmd)
	fl := cmd.Flags()
	fl.BoolVar(&dryRun, "dry-run", false, "report changes without writing (default)")
	fl.BoolVar(&apply, "apply", false, "write the corrected prices to the store")
	fl.BoolVar(&onlyMissing, "only-missing", false, "only set prices that are currently missing")
	fl.BoolVar(&listChanges, "list-changes", false, "print one line per planned or applied change")
	fl.BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "apply")

	return cmd
}
