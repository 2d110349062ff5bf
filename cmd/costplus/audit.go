package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"costplus/internal/audit"
	"costplus/internal/journal"
	"costplus/internal/publish"
)

func newAuditCmd(a *app) *cobra.Command {
	var (
		rf          runFlags
		asJSON      bool
		asCSV       bool
		listMissing bool
		upload      string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report which products have a correct cost-plus wholesale price",
		Long: `Audit reads every product and variation and classifies it as complete,
fixable or missing_cost. Nothing is written to the store.

The console report is the default. --json prints the full report and
--csv prints one row per item (only missing_cost rows with --list-missing).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var dest *publish.Location
			if upload != "" {
				loc, err := publish.ParseS3URL(upload)
				if err != nil {
					return err
				}
				dest = &loc
			}

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

			started := time.Now()
			report, err := audit.Run(ctx, client, audit.Options{
				MarkupPercent:     cfg.MarkupPercent,
				CostKey:           cfg.CostKey,
				WholesaleKey:      cfg.WholesaleKey,
				InheritParentCost: rf.inheritParentCost,
				Logger:            a.logger,
				Metrics:           a.metrics,
			})
			if err != nil {
				return err
			}

			if jr != nil {
				if err := jr.Record(ctx, journal.FromAudit(report, started, time.Now()), nil); err != nil {
					a.logger.Error("journal write failed", slog.String("run_id", report.RunID), slog.String("error", err.Error()))
				}
			}

			format := audit.FormatConsole
			switch {
			case asJSON:
				format = audit.FormatJSON
			case asCSV:
				format = audit.FormatCSV
			}

			var buf bytes.Buffer
			if err := audit.Render(&buf, report, format, audit.RenderOptions{
				ListMissing: listMissing,
				FixCommand:  "costplus sync --apply",
			}); err != nil {
				return err
			}
			if _, err := a.stdout.Write(buf.Bytes()); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}

			if dest != nil {
				pub, err := publish.New(ctx, publish.Options{Region: cfg.S3Region, Endpoint: cfg.S3Endpoint}, a.logger)
				if err != nil {
					return err
				}
				return pub.Upload(ctx, *dest, buf.Bytes(), publish.ContentType(string(format)))
			}
			return nil
		},
	}

	rf.register(cmd)
	fl := cmd.Flags()
	fl.BoolVar(&asJSON, "json", false, "print the full report as JSON")
	fl.BoolVar(&asCSV, "csv", false, "print the report as CSV")
	fl.BoolVar(&listMissing, "list-missing", false, "list every missing-cost item")
	fl.StringVar(&upload, "upload", "", "also upload the rendered report to s3://bucket/key")
	cmd.MarkFlagsMutuallyExclusive("json", "csv")

	return cmd
}
