package config

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Validate checks the fields the given mode needs. Modes match the CLI
// subcommands.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "migrate", "ledger":
		errs = append(errs, c.validateStore()...)
	case "ingest":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateIngest()...)
	case "retrain", "score":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateFeature()...)
		errs = append(errs, c.validateModel()...)
	case "export":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateFeature()...)
		errs = append(errs, c.validateModel()...)
		if c.Export.Path == "" {
			errs = append(errs, "export.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.Connect.MaxAttempts < 0 {
		errs = append(errs, "store.connect.max_attempts must be >= 0")
	}
	return errs
}

func (c *Config) validateIngest() []string {
	var errs []string
	if c.Ingest.LandingDir == "" {
		errs = append(errs, "ingest.landing_dir is required")
	}
	if c.Ingest.Delimiter != "" && utf8.RuneCountInString(c.Ingest.Delimiter) != 1 {
		errs = append(errs, "ingest.delimiter must be a single character")
	}
	return errs
}

func (c *Config) validateFeature() []string {
	var errs []string
	if c.Feature.View == "" {
		errs = append(errs, "feature.view is required")
	}
	if c.Feature.SchemaFile == "" && len(c.Feature.Numeric)+len(c.Feature.Categorical) == 0 {
		errs = append(errs, "feature.numeric or feature.categorical is required")
	}
	return errs
}

func (c *Config) validateModel() []string {
	if !c.Model.Enabled {
		return nil
	}
	var errs []string
	switch c.Model.Backend {
	case "", "local":
		if c.Model.Dir == "" {
			errs = append(errs, "model.dir is required for the local backend")
		}
	case "azure":
		if c.Model.Azure.ConnectionString == "" {
			errs = append(errs, "model.azure.connection_string is required")
		}
		if c.Model.Azure.Container == "" {
			errs = append(errs, "model.azure.container is required")
		}
	default:
		errs = append(errs, "model.backend must be local or azure")
	}
	if c.Model.TestSize <= 0 || c.Model.TestSize >= 1 {
		errs = append(errs, "model.test_size must be between 0 and 1")
	}
	if c.Model.MaxIter <= 0 {
		errs = append(errs, "model.max_iter must be > 0")
	}
	return errs
}
