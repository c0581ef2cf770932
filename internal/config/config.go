// Package config defines the global configuration structure for the importer
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"shopimport/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the importer service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"shopimport"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Platform      PlatformConfig
	Scraper       ScraperConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for redirects (no trailing slash)
	AppURL string `envconfig:"APP_URL" validate:"required,url"` // embedded app UI, e.g. https://importer.example.com/app
	// PublicURL is this service's own public base, used to build the billing
	// return URL handed to the platform at checkout.
	PublicURL string `envconfig:"PUBLIC_URL" validate:"required,url"`
	// SessionSecret signs the tenant session tokens presented on /v1 routes.
	SessionSecret SecretString `envconfig:"SESSION_SECRET" validate:"required"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// PlatformConfig holds the commerce platform admin API and webhook credentials.
type PlatformConfig struct {
	// AdminAPIURL is a template for the per-shop admin GraphQL endpoint; the
	// %s placeholder is replaced with the tenant's shop domain.
	AdminAPIURL   string        `envconfig:"PLATFORM_ADMIN_API_URL" default:"https://%s/admin/api/2024-10/graphql.json" validate:"required"`
	AccessToken   SecretString  `envconfig:"PLATFORM_ACCESS_TOKEN" validate:"required"`
	WebhookSecret SecretString  `envconfig:"PLATFORM_WEBHOOK_SECRET" validate:"required"`
	Timeout       time.Duration `envconfig:"PLATFORM_TIMEOUT" default:"20s"`
	TestMode      bool          `envconfig:"PLATFORM_BILLING_TEST_MODE" default:"false"`
}

// ScraperConfig holds the upstream catalog scraping provider credentials.
type ScraperConfig struct {
	APIKey  SecretString  `envconfig:"SCRAPER_API_KEY"`
	BaseURL string        `envconfig:"SCRAPER_BASE_URL" default:"https://api.scrapingprovider.example"`
	Timeout time.Duration `envconfig:"SCRAPER_TIMEOUT" default:"30s"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ShopImport"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}
