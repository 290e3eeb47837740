package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures. A missing generator API key is deliberately
// not an error here: the pipeline reports it as a configuration failure at
// submit time so read-only commands still work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return fmt.Errorf("paths.cache_dir must not be empty")
	}

	if err := validateURL("generator.base_url", c.Generator.BaseURL); err != nil {
		return err
	}
	if c.Generator.TimeoutSeconds < 0 {
		return fmt.Errorf("generator.timeout_seconds must not be negative")
	}

	if c.Speech.Enabled {
		if err := validateURL("speech.base_url", c.Speech.BaseURL); err != nil {
			return err
		}
	}
	if c.Speech.TimeoutSeconds < 0 {
		return fmt.Errorf("speech.timeout_seconds must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}

	return nil
}

func validateURL(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, value)
	}
	return nil
}
