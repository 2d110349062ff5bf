package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"costplus/internal/model"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled runs, or the price changes of one run",
		Long: `history reads the run journal. It needs --journal or COSTPLUS_JOURNAL_DSN
but no store credentials.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dsn := withDefault(a.journalDSN, os.Getenv("COSTPLUS_JOURNAL_DSN"))
			if dsn == "" {
				return model.NewConfigError("COSTPLUS_JOURNAL_DSN", "history needs --journal")
			}
			jr, err := a.openJournal(dsn)
			if err != nil {
				return err
			}
			defer jr.Close()

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			defer tw.Flush()

			if runID != "" {
				changes, err := jr.Changes(ctx, runID)
				if err != nil {
					return err
				}
				if len(changes) == 0 {
					return fmt.Errorf("run %s: %w", runID, errNoChanges)
				}
				fmt.Fprintln(tw, "ENTITY\tID\tPARENT\tNAME\tCURRENT\tEXPECTED\tAPPLIED")
				for _, c := range changes {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%t\n",
						c.EntityType, c.ItemID, parentLabel(c.ParentID), c.Name,
						priceLabel(c.Previous), model.FormatPrice(c.Expected), c.Applied)
				}
				return nil
			}

			runs, err := jr.Runs(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "RUN\tSTARTED\tDRIVER\tMODE\tMARKUP\tREVIEWED\tFIXABLE\tUPDATED\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g%%\t%d\t%d\t%d\t%s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Driver, r.Mode,
					r.MarkupPercent, r.Reviewed, r.Fixable, r.Updated, r.Error)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&limit, "limit", 20, "number of runs to list, newest first")
	fl.StringVar(&runID, "run", "", "show the price changes recorded for this run ID")

	return cmd
}

var errNoChanges = errors.New("no recorded changes")

func parentLabel(id int64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}

func priceLabel(v *float64) string {
	if v == nil {
		return "(none)"
	}
	return model.FormatPrice(*v)
}
