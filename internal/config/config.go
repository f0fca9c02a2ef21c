// Package config holds OPERATOR-LEVEL configuration for a copilot deployment.
//
// This is infrastructure config set by whoever runs the service, NOT
// end-user or organization configuration. The boundary is:
//
//   - Operator config (this package): data directory, model provider key and
//     model name, HTTP port, CORS origins, audit retention. Set via env vars
//     (CHAINSOLVE_*) or a config file (chainsolve.config.yaml).
//
//   - Organization config: AI policy (enabled, allowed modes, bypass, token
//     limit per seat). Stored in the entitlement store and resolved per
//     request (internal/entitlement).
//
// The model provider API key is deliberately not a load-time requirement:
// a deployment without one still serves health checks and returns
// AI_NOT_CONFIGURED (503) on copilot requests.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the CHAINSOLVE_ prefix
// (e.g. "openai_api_key" → CHAINSOLVE_OPENAI_API_KEY) and to a YAML field
// in chainsolve.config.yaml.
const (
	KeyDataDir            = "data_dir"
	KeyOpenAIAPIKey       = "openai_api_key"
	KeyModel              = "model"
	KeyPort               = "port"
	KeyCORSOrigins        = "cors_origins"
	KeyAuditRetentionDays = "audit_retention_days"
	KeyRequestsPerSecond  = "requests_per_second"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultPort           = 8080
	DefaultAuditRetention = 400 // days; a little over one billing year
	DefaultRequestsPerSec = 2   // per owner
)

// Config holds resolved operator-level configuration for a copilot process.
type Config struct {
	DataDir            string   // base directory for all state (~/.chainsolve)
	OpenAIAPIKey       string   // model provider key; empty means AI_NOT_CONFIGURED
	Model              string   // chat model identifier
	Port               int      // HTTP listen port
	CORSOrigins        []string // allowed origins; ["*"] for any
	AuditRetentionDays int      // audit rows older than this are pruned
	RequestsPerSecond  int      // per-owner rate limit; 0 disables
}

func init() {
	viper.SetEnvPrefix("CHAINSOLVE")
	viper.AutomaticEnv()
	viper.SetDefault(KeyModel, DefaultModel)
	viper.SetDefault(KeyPort, DefaultPort)
	viper.SetDefault(KeyCORSOrigins, []string{"*"})
	viper.SetDefault(KeyAuditRetentionDays, DefaultAuditRetention)
	viper.SetDefault(KeyRequestsPerSecond, DefaultRequestsPerSec)
}

// Load reads configuration from Viper (env vars, config file, defaults)
// and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:            resolveDataDir(),
		OpenAIAPIKey:       viper.GetString(KeyOpenAIAPIKey),
		Model:              viper.GetString(KeyModel),
		Port:               viper.GetInt(KeyPort),
		CORSOrigins:        viper.GetStringSlice(KeyCORSOrigins),
		AuditRetentionDays: viper.GetInt(KeyAuditRetentionDays),
		RequestsPerSecond:  viper.GetInt(KeyRequestsPerSecond),
	}
	if cfg.OpenAIAPIKey == "" {
		// quickstart fallback for single-box development
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535 (got %d)", c.Port)
	}
	if c.AuditRetentionDays <= 0 {
		return fmt.Errorf("audit_retention_days must be positive")
	}
	return nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainsolve"
	}
	return filepath.Join(home, ".chainsolve")
}

// QuotaDBPath returns the full path to the quota-ledger SQLite database.
func (c *Config) QuotaDBPath() string {
	return filepath.Join(c.DataDir, "quota.db")
}

// EntitlementDBPath returns the full path to the entitlement SQLite database.
func (c *Config) EntitlementDBPath() string {
	return filepath.Join(c.DataDir, "entitlement.db")
}

// AuditDBPath returns the full path to the audit-log SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// GraphDBPath returns the full path to the canvas-snapshot SQLite database.
func (c *Config) GraphDBPath() string {
	return filepath.Join(c.DataDir, "graph.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}
