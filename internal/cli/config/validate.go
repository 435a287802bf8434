package config

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/agriflow/internal/pipeline"
	"github.com/leapstack-labs/agriflow/pkg/adapter"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Target == nil || c.Target.Type == "" {
		errs = append(errs, fmt.Errorf("target type is required"))
	} else if !adapter.IsRegistered(c.Target.Type) {
		errs = append(errs, fmt.Errorf("invalid target configuration: %w", &adapter.UnknownAdapterError{
			Type:      c.Target.Type,
			Available: adapter.ListAdapters(),
		}))
	}

	if _, err := pipeline.ParsePolicy(c.Pipeline.UnresolvedKeys); err != nil {
		errs = append(errs, err)
	}
	if c.Pipeline.InsertBatchSize < 0 {
		errs = append(errs, fmt.Errorf("pipeline.insert_batch_size must not be negative"))
	}

	switch c.Staging.Driver {
	case "fs":
		if c.Staging.Dir == "" {
			errs = append(errs, fmt.Errorf("staging.dir is required for the fs driver"))
		}
	case "s3":
		if c.Staging.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("staging.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown staging driver %q (want fs or s3)", c.Staging.Driver))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (want text or json)", c.LogFormat))
	}
	switch c.OutputFormat {
	case OutputAuto, OutputText, OutputJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown output %q (want auto, text or json)", c.OutputFormat))
	}

	return errors.Join(errs...)
}
