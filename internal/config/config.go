// Package config resolves the run configuration: flags win, then
// environment variables (optionally seeded from a .env file), then
// defaults. All of it is fixed for the duration of one run.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// DefaultRegion is used when neither the flag nor the environment
// names a region.
const DefaultRegion = "us-east-1"

// Environment variable names.
const (
	EnvRegion            = "TM_UNINSTALL_REGION"
	EnvCollectorEndpoint = "TM_UNINSTALL_COLLECTOR_ENDPOINT"
	EnvCollectorCA       = "TM_UNINSTALL_COLLECTOR_CA"
	EnvMetricsAddr       = "TM_UNINSTALL_METRICS_ADDR"
)

// Error is a configuration-level problem. It is the only class of
// error that aborts the run before any row is processed.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return "config: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a configuration error.
func Errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Config is the resolved, immutable run configuration.
type Config struct {
	Package           string
	Mode              string
	Region            string
	File              string
	MetricsAddr       string
	CollectorEndpoint string
	CollectorCA       string
	Preflight         bool
	AssumeYes         bool
}

// FromEnv loads an optional .env from the working directory and
// returns the environment-derived settings. Flag values layered on
// top by the caller take precedence.
func FromEnv() Config {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()
	return Config{
		Region:            envOr(EnvRegion, DefaultRegion),
		MetricsAddr:       os.Getenv(EnvMetricsAddr),
		CollectorEndpoint: os.Getenv(EnvCollectorEndpoint),
		CollectorCA:       os.Getenv(EnvCollectorCA),
	}
}

// Validate checks the parts every run needs. Mode strings are parsed
// separately by the command package.
func (c Config) Validate() error {
	if c.Package == "" {
		return Errorf("package name is required")
	}
	if c.File == "" {
		return Errorf("input file path is required")
	}
	if c.Region == "" {
		return Errorf("region is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
