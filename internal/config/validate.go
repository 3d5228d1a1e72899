package config

import (
	"errors"
	"fmt"
)

// Validate checks the structural validity of a Config. All problems are
// collected and returned joined, so one run reports everything wrong.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Bind == "" {
		errs = append(errs, errors.New("config: server.bind is required"))
	}

	if cfg.Storage.Path == "" {
		errs = append(errs, errors.New("config: storage.path is required"))
	}

	if cfg.Provider.BaseURL == "" {
		errs = append(errs, errors.New("config: provider.base_url is required"))
	}
	if cfg.Provider.EmbedModel == "" {
		errs = append(errs, errors.New("config: provider.embed_model is required"))
	}
	if cfg.Provider.EmbedDims <= 0 {
		errs = append(errs, errors.New("config: provider.embed_dims must be positive"))
	}

	switch cfg.Billing.Mode {
	case "none", "dev":
	default:
		errs = append(errs, fmt.Errorf("config: unknown billing.mode %q (supported: none, dev)", cfg.Billing.Mode))
	}
	for op, amount := range cfg.Billing.Costs {
		if amount < 0 {
			errs = append(errs, fmt.Errorf("config: billing.costs[%s] must not be negative", op))
		}
	}

	switch cfg.Export.Backend {
	case "fs":
		if cfg.Export.Root == "" {
			errs = append(errs, errors.New("config: export.root is required for the fs backend"))
		}
	case "s3":
		if cfg.Export.S3.Endpoint == "" {
			errs = append(errs, errors.New("config: export.s3.endpoint is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown export.backend %q (supported: fs, s3)", cfg.Export.Backend))
	}

	if cfg.Retention.ExportMaxAge < 0 {
		errs = append(errs, errors.New("config: retention.export_max_age must not be negative"))
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.level %q", cfg.Log.Level))
	}

	return errors.Join(errs...)
}
