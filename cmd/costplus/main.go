// costplus audits and repairs WooCommerce wholesale prices against the
// cost-plus rule: wholesale = round2(cost * (1 + markup/100)).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"costplus/internal/config"
	"costplus/internal/journal"
	"costplus/internal/metrics"
	"costplus/internal/transport"
	"costplus/internal/woocommerce"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const storeTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// app carries the persistent flags and the process-wide dependencies
// built from them.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile  string
	logLevel    string
	journalDSN  string
	metricsFile string

	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "costplus",
		Short: "Audit and sync WooCommerce wholesale prices against cost plus markup",
		Long: `costplus keeps WholesaleX wholesale prices in line with product cost.

Every product and variation is classified as:
  complete      wholesale price matches cost plus markup
  fixable       cost is known but the wholesale price is missing or wrong
  missing_cost  no usable cost, nothing can be computed

Store credentials come from WOOCOMMERCE_REST_URL, WOOCOMMERCE_CONSUMER_KEY
and WOOCOMMERCE_CONSUMER_SECRET, or from --config.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = initLogger(a.stderr, os.Getenv("ENVIRONMENT"), withDefault(a.logLevel, os.Getenv("LOG_LEVEL")))
			slog.SetDefault(a.logger)
			a.metrics = metrics.New()
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "JSON or YAML config file (or set CONFIG_FILE)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (or set LOG_LEVEL)")
	pf.StringVar(&a.journalDSN, "journal", "", "record runs in a journal: sqlite path, postgres:// or mysql:// DSN")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")

	root.AddCommand(
		newAuditCmd(a),
		newSyncCmd(a),
		newDoctorCmd(a),
		newMCPCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// runFlags are the pricing flags shared by audit and sync.
type runFlags struct {
	markup            float64
	costKey           string
	wholesaleKey      string
	inheritParentCost bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.Float64Var(&f.markup, "markup", config.DefaultMarkupPercent, "markup percent over cost (or set WHOLESALE_MARKUP_PERCENT)")
	fl.StringVar(&f.costKey, "cost-key", "", "cost meta key, detected when unset (or set MY_COST_META_KEY)")
	fl.StringVar(&f.wholesaleKey, "wholesale-key", "", "WholesaleX price meta key, detected when unset (or set WHOLESALEX_PRICE_META_KEY)")
	fl.BoolVar(&f.inheritParentCost, "inherit-parent-cost", false, "let variations without cost use the parent product's cost")
}

// loadConfig reads the configuration and applies command-line overrides.
// No network access happens here except Secret Manager in production.
func (a *app) loadConfig(cmd *cobra.Command, rf *runFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configFile != "" {
		cfg, err = config.LoadFile(a.configFile)
	} else {
		cfg, err = config.Load(cmd.Context())
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	o := config.Overrides{
		LogLevel:    a.logLevel,
		JournalDSN:  a.journalDSN,
		MetricsFile: a.metricsFile,
	}
	if rf != nil {
		if cmd.Flags().Changed("markup") {
			o.MarkupPercent = &rf.markup
		}
		o.CostKey = rf.costKey
		o.WholesaleKey = rf.wholesaleKey
	}
	cfg, err = cfg.WithOverrides(o)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("store_domain", cfg.StoreDomain()),
		slog.Float64("markup_percent", cfg.MarkupPercent),
	)
	return cfg, nil
}

// newClient builds the WooCommerce client with metrics on every request.
func (a *app) newClient(cfg *config.Config) (*woocommerce.Client, error) {
	fp, err := transport.ParseFingerprint(cfg.TLSFingerprint)
	if err != nil {
		return nil, err
	}
	return woocommerce.New(woocommerce.Config{
		StoreURL:       cfg.Store.URL,
		ConsumerKey:    cfg.Store.ConsumerKey,
		ConsumerSecret: cfg.Store.ConsumerSecret,
		Transport:      a.metrics.InstrumentRoundTripper(transport.New(fp, storeTimeout)),
		Timeout:        storeTimeout,
		Logger:         a.logger,
	})
}

// openJournal opens the journal named by cfg, or returns nil when none is
// configured.
func (a *app) openJournal(dsn string) (*journal.Journal, error) {
	if dsn == "" {
		return nil, nil
	}
	j, err := journal.Open(dsn)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("journal opened", slog.String("dsn", redactDSN(dsn)))
	return j, nil
}

// writeMetrics exports the run's metrics when a textfile is configured.
func (a *app) writeMetrics(path string) {
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.logger.Error("writing metrics textfile failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
// Logs go to w (stderr) so stdout carries only reports.
func initLogger(w io.Writer, environment, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location in debug mode
		AddSource: lvl == slog.LevelDebug,
	}

	if environment == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if user, _, ok := strings.Cut(creds, ":"); ok {
		return dsn[:scheme+3] + user + ":***" + dsn[at:]
	}
	return dsn
}

func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}
