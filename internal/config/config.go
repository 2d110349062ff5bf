// Package config handles loading and validation of run configuration.
// Supports both development (env vars or CONFIG_FILE) and production
// (store credentials from Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"gopkg.in/yaml.v3"

	"costplus/internal/model"
	"costplus/internal/transport"
)

// DefaultMarkupPercent is the markup applied when none is configured.
const DefaultMarkupPercent = 20

// Environment variable names.
const (
	EnvStoreURL       = "WOOCOMMERCE_REST_URL"
	EnvConsumerKey    = "WOOCOMMERCE_CONSUMER_KEY"
	EnvConsumerSecret = "WOOCOMMERCE_CONSUMER_SECRET"
	EnvCostKey        = "MY_COST_META_KEY"
	EnvWholesaleKey   = "WHOLESALEX_PRICE_META_KEY"
	EnvMarkup         = "WHOLESALE_MARKUP_PERCENT"
)

// Config holds all run configuration. Treat it as immutable once loaded;
// WithOverrides returns a modified copy.
type Config struct {
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject    string
	StoreSecretID string

	Store StoreConfig

	MarkupPercent float64
	// CostKey and WholesaleKey skip detection when set.
	CostKey      string
	WholesaleKey string

	JournalDSN     string
	MetricsFile    string
	TLSFingerprint string // "chrome" or "none"

	S3Region   string
	S3Endpoint string
}

// StoreConfig contains the WooCommerce REST credentials.
// In production, this is loaded from Secret Manager as JSON.
type StoreConfig struct {
	URL            string `json:"store_url" yaml:"store_url"`
	ConsumerKey    string `json:"consumer_key" yaml:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret" yaml:"consumer_secret"`
}

// fileConfig is the CONFIG_FILE layout, JSON or YAML.
type fileConfig struct {
	Environment    string      `json:"environment" yaml:"environment"`
	LogLevel       string      `json:"log_level" yaml:"log_level"`
	Store          StoreConfig `json:"store" yaml:"store"`
	MarkupPercent  *float64    `json:"markup_percent" yaml:"markup_percent"`
	CostKey        string      `json:"cost_key" yaml:"cost_key"`
	WholesaleKey   string      `json:"wholesale_key" yaml:"wholesale_key"`
	JournalDSN     string      `json:"journal_dsn" yaml:"journal_dsn"`
	MetricsFile    string      `json:"metrics_file" yaml:"metrics_file"`
	TLSFingerprint string      `json:"tls_fingerprint" yaml:"tls_fingerprint"`
	S3Region       string      `json:"s3_region" yaml:"s3_region"`
	S3Endpoint     string      `json:"s3_endpoint" yaml:"s3_endpoint"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields before returning.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return LoadFile(configPath)
	}

	markup, err := markupFromEnv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:    envOrDefault("ENVIRONMENT", "development"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		GCPProject:     os.Getenv("GCP_PROJECT"),
		StoreSecretID:  envOrDefault("STORE_SECRET_ID", "woocommerce-store"),
		MarkupPercent:  markup,
		CostKey:        os.Getenv(EnvCostKey),
		WholesaleKey:   os.Getenv(EnvWholesaleKey),
		JournalDSN:     os.Getenv("COSTPLUS_JOURNAL_DSN"),
		MetricsFile:    os.Getenv("COSTPLUS_METRICS_FILE"),
		TLSFingerprint: envOrDefault("COSTPLUS_TLS_FINGERPRINT", string(transport.FingerprintChrome)),
		S3Region:       os.Getenv("AWS_REGION"),
		S3Endpoint:     os.Getenv("COSTPLUS_S3_ENDPOINT"),
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, model.NewConfigError("GCP_PROJECT", "required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading store credentials: %w", err)
		}
	} else {
		cfg.loadFromEnv()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads all configuration from a JSON or YAML file, chosen by
// extension (.yaml and .yml are YAML, anything else JSON).
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Environment:    withDefault(fc.Environment, "development"),
		LogLevel:       withDefault(fc.LogLevel, "info"),
		Store:          fc.Store,
		MarkupPercent:  DefaultMarkupPercent,
		CostKey:        fc.CostKey,
		WholesaleKey:   fc.WholesaleKey,
		JournalDSN:     fc.JournalDSN,
		MetricsFile:    fc.MetricsFile,
		TLSFingerprint: withDefault(fc.TLSFingerprint, string(transport.FingerprintChrome)),
		S3Region:       fc.S3Region,
		S3Endpoint:     fc.S3Endpoint,
	}
	if fc.MarkupPercent != nil {
		cfg.MarkupPercent = *fc.MarkupPercent
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches store credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreSecretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadFromEnv reads store credentials from individual environment variables.
func (c *Config) loadFromEnv() {
	c.Store = StoreConfig{
		URL:            os.Getenv(EnvStoreURL),
		ConsumerKey:    os.Getenv(EnvConsumerKey),
		ConsumerSecret: os.Getenv(EnvConsumerSecret),
	}
}

func markupFromEnv() (float64, error) {
	raw := os.Getenv(EnvMarkup)
	if raw == "" {
		return DefaultMarkupPercent, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, model.NewConfigError(EnvMarkup, fmt.Sprintf("invalid markup value %q", raw))
	}
	return v, nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Store.URL == "" {
		return model.NewConfigError(EnvStoreURL, "missing required setting")
	}
	if c.Store.ConsumerKey == "" {
		return model.NewConfigError(EnvConsumerKey, "missing required setting")
	}
	if c.Store.ConsumerSecret == "" {
		return model.NewConfigError(EnvConsumerSecret, "missing required setting")
	}

	u, err := url.Parse(c.Store.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.NewConfigError(EnvStoreURL, fmt.Sprintf("invalid store URL %q", c.Store.URL))
	}

	if err := validateMarkup(c.MarkupPercent); err != nil {
		return err
	}
	if _, err := transport.ParseFingerprint(c.TLSFingerprint); err != nil {
		return model.NewConfigError("COSTPLUS_TLS_FINGERPRINT", err.Error())
	}
	return nil
}

func validateMarkup(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return model.NewConfigError("markup", fmt.Sprintf("invalid markup value %s: must be a non-negative number",
			strconv.FormatFloat(v, 'f', -1, 64)))
	}
	return nil
}

// Overrides are command-line values that take precedence over loaded
// configuration. Zero values leave the loaded setting untouched.
type Overrides struct {
	MarkupPercent *float64
	CostKey       string
	WholesaleKey  string
	LogLevel      string
	JournalDSN    string
	MetricsFile   string
}

// WithOverrides returns a copy of c with o applied.
func (c Config) WithOverrides(o Overrides) (*Config, error) {
	if o.MarkupPercent != nil {
		if err := validateMarkup(*o.MarkupPercent); err != nil {
			return nil, err
		}
		c.MarkupPercent = *o.MarkupPercent
	}
	c.CostKey = withDefault(o.CostKey, c.CostKey)
	c.WholesaleKey = withDefault(o.WholesaleKey, c.WholesaleKey)
	c.LogLevel = withDefault(o.LogLevel, c.LogLevel)
	c.JournalDSN = withDefault(o.JournalDSN, c.JournalDSN)
	c.MetricsFile = withDefault(o.MetricsFile, c.MetricsFile)
	return &c, nil
}

// StoreDomain is the host part of the store URL, for logs.
func (c *Config) StoreDomain() string {
	u, err := url.Parse(c.Store.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
