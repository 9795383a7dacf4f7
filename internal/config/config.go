package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hans/hans/internal/platform/managementapi"
	"github.com/hans/hans/internal/platform/pseudonym"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	ManagementAPIBaseURL    string        `mapstructure:"MANAGEMENT_API_BASE_URL"`
	ManagementAPITimeout    time.Duration `mapstructure:"MANAGEMENT_API_TIMEOUT"`
	ManagementAPIRetryCount int           `mapstructure:"MANAGEMENT_API_RETRY_COUNT"`
	ManagementAPIRetryWait  time.Duration `mapstructure:"MANAGEMENT_API_RETRY_WAIT"`

	CSVImportMaxLines int    `mapstructure:"CSV_IMPORT_MAX_LINES"`
	ImportMaxUpload   string `mapstructure:"IMPORT_MAX_UPLOAD"`

	// HashingSentinel must hold pseudonym.InsecureSentinelValue verbatim to
	// select the fast hasher. Anything else keeps the secure default.
	HashingSentinel string `mapstructure:"STUPIDLY_HOBBLE_SECURITY"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"REQUEST_TIMEOUT",
	"MANAGEMENT_API_BASE_URL", "MANAGEMENT_API_TIMEOUT", "MANAGEMENT_API_RETRY_COUNT", "MANAGEMENT_API_RETRY_WAIT",
	"CSV_IMPORT_MAX_LINES", "IMPORT_MAX_UPLOAD",
	pseudonym.InsecureSentinelEnv,
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "5m")
	v.SetDefault("MANAGEMENT_API_TIMEOUT", "10s")
	v.SetDefault("MANAGEMENT_API_RETRY_COUNT", 0)
	v.SetDefault("MANAGEMENT_API_RETRY_WAIT", "500ms")
	v.SetDefault("CSV_IMPORT_MAX_LINES", 1000)
	v.SetDefault("IMPORT_MAX_UPLOAD", "5M")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" under
// ENV=development and "external" everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "external"
}

// HashingMode is decided once here and handed to the hasher at startup.
func (c *Config) HashingMode() pseudonym.Mode {
	return pseudonym.ModeFromSentinel(c.HashingSentinel)
}

// ManagementAPI returns the subscription service client settings.
func (c *Config) ManagementAPI() managementapi.Config {
	return managementapi.Config{
		BaseURL:    c.ManagementAPIBaseURL,
		Timeout:    c.ManagementAPITimeout,
		RetryCount: c.ManagementAPIRetryCount,
		RetryWait:  c.ManagementAPIRetryWait,
	}
}

// Validate checks the settings needed to serve requests. The migrate
// command only needs Load.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "external" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}
	if mode == "external" && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER must be set when AUTH_MODE is \"external\" (current ENV=%q)", c.Env)
	}
	if c.IsProduction() && mode == "development" {
		return fmt.Errorf("AUTH_MODE=development is not allowed in production")
	}

	if err := c.ManagementAPI().Validate(); err != nil {
		switch {
		case errors.Is(err, managementapi.ErrMissingBaseURL):
			return fmt.Errorf("MANAGEMENT_API_BASE_URL: %w", err)
		case errors.Is(err, managementapi.ErrNegativeRetryCount):
			return fmt.Errorf("MANAGEMENT_API_RETRY_COUNT: %w", err)
		}
		return err
	}

	if c.CSVImportMaxLines <= 0 {
		return fmt.Errorf("CSV_IMPORT_MAX_LINES must be positive, got %d", c.CSVImportMaxLines)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.IsProduction() && c.HashingMode() == pseudonym.ModeInsecure {
		return fmt.Errorf("%s is set to the insecure sentinel; refusing to hash NHS numbers insecurely in production", pseudonym.InsecureSentinelEnv)
	}

	return nil
}
