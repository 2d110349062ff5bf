package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costplus/internal/audit"
	"costplus/internal/model"
	"costplus/internal/syncer"
)

// fakeStore serves the WooCommerce endpoints the commands touch.
type fakeStore struct {
	mu      sync.Mutex
	version string
	gets    int
	puts    map[string]string // path -> body
}

func (s *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/wp-json/wc/v3")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "/system_status":
		s.gets++
		io.WriteString(w, `{"environment":{"version":"`+s.version+`"}}`)

	case r.Method == http.MethodGet && path == "/products":
		s.gets++
		w.Header().Set("X-WP-Total", "3")
		w.Header().Set("X-WP-TotalPages", "1")
		if r.URL.Query().Get("page") != "" && r.URL.Query().Get("page") != "1" {
			io.WriteString(w, `[]`)
			return
		}
		io.WriteString(w, `[
			{"id":1,"name":"Bar","type":"simple","meta_data":[
				{"id":11,"key":"mycost","value":"10"},
				{"id":12,"key":"wholesalex_b2b_role_1_base_price","value":"12.00"}]},
			{"id":2,"name":"Shaker","type":"simple","meta_data":[
				{"id":21,"key":"mycost","value":"10"}]},
			{"id":3,"name":"Gift Card","type":"simple","meta_data":[]}
		]`)

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/products/"):
		body, _ := io.ReadAll(r.Body)
		s.puts[path] = string(body)
		io.WriteString(w, `{}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"code":"rest_no_route","message":"No route was found.","data":{"status":404}}`)
	}
}

func (s *fakeStore) writes() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.puts))
	for k, v := range s.puts {
		out[k] = v
	}
	return out
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT", "STORE_SECRET_ID",
		"WOOCOMMERCE_REST_URL", "WOOCOMMERCE_CONSUMER_KEY", "WOOCOMMERCE_CONSUMER_SECRET",
		"MY_COST_META_KEY", "WHOLESALEX_PRICE_META_KEY", "WHOLESALE_MARKUP_PERCENT",
		"COSTPLUS_JOURNAL_DSN", "COSTPLUS_METRICS_FILE", "COSTPLUS_TLS_FINGERPRINT",
		"AWS_REGION", "COSTPLUS_S3_ENDPOINT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// startStore points the environment at a fresh fake store.
func startStore(t *testing.T) *fakeStore {
	t.Helper()
	clearEnv(t)

	store := &fakeStore{version: "8.5.1", puts: map[string]string{}}
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	t.Setenv("WOOCOMMERCE_REST_URL", srv.URL)
	t.Setenv("WOOCOMMERCE_CONSUMER_KEY", "ck_test")
	t.Setenv("WOOCOMMERCE_CONSUMER_SECRET", "cs_test")
	t.Setenv("COSTPLUS_TLS_FINGERPRINT", "none")
	t.Setenv("LOG_LEVEL", "error")
	return store
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), err
}

func TestAuditJSON(t *testing.T) {
	startStore(t)

	out, err := runCLI(t, "audit", "--json")
	require.NoError(t, err)

	var report audit.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Summary.TotalProducts)
	assert.Equal(t, 1, report.Summary.Complete.Products)
	assert.Equal(t, 1, report.Summary.Fixable.Products)
	assert.Equal(t, 1, report.Summary.MissingCost.Products)
	assert.Equal(t, "mycost", report.Config.CostKey)
	assert.Equal(t, "wholesalex_b2b_role_1_base_price", report.Config.WholesaleKey)
}

func TestAuditMarkupFlag(t *testing.T) {
	startStore(t)

	out, err := runCLI(t, "audit", "--json", "--markup", "10")
	require.NoError(t, err)

	var report audit.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, float64(10), report.Config.MarkupPercent)
	assert.Equal(t, 2, report.Summary.Fixable.Products)
}

func TestAuditCSVListMissing(t *testing.T) {
	startStore(t)

	out, err := runCLI(t, "audit", "--csv", "--list-missing")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, "header plus one missing_cost row:\n%s", out)
	assert.Contains(t, lines[1], "Gift Card")
	assert.Contains(t, lines[1], "missing_cost")
}

func TestAuditFormatsExclusive(t *testing.T) {
	store := startStore(t)

	_, err := runCLI(t, "audit", "--json", "--csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[json csv]")
	assert.Zero(t, store.gets)
}

func TestAuditInvalidUploadURL(t *testing.T) {
	store := startStore(t)

	_, err := runCLI(t, "audit", "--upload", "https://bucket/key")
	require.Error(t, err)
	assert.Zero(t, store.gets, "no fetch before the upload target is validated")
}

func TestAuditMissingCredentials(t *testing.T) {
	clearEnv(t)

	_, err := runCLI(t, "audit")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfig), "err = %v", err)
	assert.Contains(t, err.Error(), "WOOCOMMERCE_REST_URL")
}

func TestAuditNegativeMarkup(t *testing.T) {
	store := startStore(t)

	_, err := runCLI(t, "audit", "--markup", "-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfig), "err = %v", err)
	assert.Zero(t, store.gets)
}

func TestSyncDryRunThenApply(t *testing.T) {
	store := startStore(t)

	out, err := runCLI(t, "sync", "--list-changes")
	require.NoError(t, err)
	assert.Contains(t, out, "Mode: DRY RUN")
	assert.Contains(t, out, `[planned] product 2 "Shaker": (none) -> $12.00`)
	assert.Contains(t, out, "  simple needs update:    1")
	assert.Contains(t, out, "Dry run complete. Re-run with --apply to write changes.")
	assert.Empty(t, store.writes())

	out, err = runCLI(t, "sync", "--apply")
	require.NoError(t, err)
	assert.Contains(t, out, "Mode: APPLY")
	assert.Contains(t, out, "  simple updated:         1")
	assert.NotContains(t, out, "Dry run complete")

	writes := store.writes()
	require.Len(t, writes, 1)
	assert.Contains(t, writes["/products/2"], `"wholesalex_b2b_role_1_base_price"`)
	assert.Contains(t, writes["/products/2"], `"12.00"`)
}

func TestSyncJSON(t *testing.T) {
	startStore(t)

	out, err := runCLI(t, "sync", "--json")
	require.NoError(t, err)

	var res syncer.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, syncer.ModeDryRun, res.Mode)
	assert.Equal(t, 3, res.Stats.Simple.Reviewed)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "12.00", res.Changes[0].Value)
}

func TestSyncModesExclusive(t *testing.T) {
	store := startStore(t)

	_, err := runCLI(t, "sync", "--dry-run", "--apply")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[dry-run apply]")
	assert.Empty(t, store.writes())
}

func TestJournalAndHistory(t *testing.T) {
	startStore(t)
	dsn := filepath.Join(t.TempDir(), "journal.db")
	metricsFile := filepath.Join(t.TempDir(), "costplus.prom")

	_, err := runCLI(t, "--journal", dsn, "--metrics-file", metricsFile, "sync", "--apply")
	require.NoError(t, err)

	out, err := runCLI(t, "--journal", dsn, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "sync")
	assert.Contains(t, out, "apply")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "costplus_price_writes_total")
}

func TestHistoryNeedsJournal(t *testing.T) {
	clearEnv(t)

	_, err := runCLI(t, "history")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfig), "err = %v", err)
}

func TestDoctor(t *testing.T) {
	startStore(t)

	out, err := runCLI(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "WooCommerce:  8.5.1 (>= 3.5.0 OK)")
	assert.Contains(t, out, "Products:     3")
}

func TestDoctorOldStore(t *testing.T) {
	store := startStore(t)
	store.version = "3.0.0"

	out, err := runCLI(t, "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "3.0.0 (unsupported)")
}

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://app:s3cret@db:5432/costplus", "postgres://app:***@db:5432/costplus"},
		{"mysql://app@tcp(db)/costplus", "mysql://app@tcp(db)/costplus"},
		{"/var/lib/costplus/journal.db", "/var/lib/costplus/journal.db"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactDSN(tt.in), tt.in)
	}
}

func TestInitLogger(t *testing.T) {
	var buf bytes.Buffer

	initLogger(&buf, "production", "warn").Info("hidden")
	assert.Empty(t, buf.String())

	initLogger(&buf, "production", "info").Info("shown")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "production logs are JSON: %s", buf.String())

	buf.Reset()
	initLogger(&buf, "development", "bogus").Info("text")
	assert.Contains(t, buf.String(), "msg=text")
}
