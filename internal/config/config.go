// Package config holds the runtime settings of the schemactl tool.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/zeusync/apischema/internal/core/observability/log"
	"github.com/zeusync/apischema/internal/core/schema"
)

// Prefix is prepended to every variable name.
const Prefix = "SCHEMACTL_"

type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`
	MaxDepth    int    `env:"MAX_DEPTH" envDefault:"64"`
	Strict      bool   `env:"STRICT" envDefault:"false"`
	Validation  string `env:"VALIDATION" envDefault:"lazy"`
	SchemaFile  string `env:"SCHEMA_FILE"`
	Catalog     bool   `env:"CATALOG" envDefault:"true"`
	Parallelism int    `env:"PARALLELISM" envDefault:"0"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err)
	}
	if _, err := c.ValidationMode(); err != nil {
		return fmt.Errorf("%sVALIDATION: %w", Prefix, err)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("%sMAX_DEPTH must be positive, got %d", Prefix, c.MaxDepth)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("%sPARALLELISM must not be negative, got %d", Prefix, c.Parallelism)
	}
	return nil
}

func (c *Config) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

func (c *Config) ValidationMode() (schema.ValidationMode, error) {
	return schema.ParseValidationMode(c.Validation)
}
