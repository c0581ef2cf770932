// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Build metadata injected at link time via
// -ldflags "-X shopimport/internal/config.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// LoadConfig loads and validates the service configuration.
// For local development a .env file in the working directory is honored;
// existing environment variables always take precedence.
func LoadConfig() (*Config, error) {
	// Enforce UTC to prevent period-bound drift between the reconciler
	// and the billing platform.
	time.Local = time.UTC

	// Non-fatal if absent; never overrides existing env vars.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment configuration: %w", err)
	}

	cfg.Build = BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate runs struct-tag validation over the populated config and converts
// failures into a single descriptive error listing every offending field.
func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(cfg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("config validation: %w", err)
		}
		msg := "invalid configuration:"
		for _, fe := range verrs {
			msg += fmt.Sprintf(" %s (rule %q);", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%s", msg)
	}

	return nil
}
