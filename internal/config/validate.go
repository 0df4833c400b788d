package config

import (
	"errors"
	"fmt"
	"regexp"
)

var prefixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIndexing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.Archive == "" {
		return errors.New("paths.archive is required")
	}
	if c.Paths.Incoming == "" {
		return errors.New("paths.incoming is required")
	}
	if c.Paths.Quarantine == "" {
		return errors.New("paths.quarantine is required")
	}
	if c.Paths.Tmp == "" {
		return errors.New("paths.tmp must be set")
	}
	return nil
}

func (c *Config) validateIndexing() error {
	if !prefixPattern.MatchString(c.Indexing.Prefix) {
		return fmt.Errorf("indexing.prefix %q must match %s", c.Indexing.Prefix, prefixPattern.String())
	}
	if c.Indexing.BatchSize < 1 {
		return fmt.Errorf("indexing.batch_size must be >= 1, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.Workers < 1 {
		return fmt.Errorf("indexing.workers must be >= 1, got %d", c.Indexing.Workers)
	}
	if c.Indexing.MaxRetries < 0 {
		return fmt.Errorf("indexing.max_retries must be >= 0, got %d", c.Indexing.MaxRetries)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
