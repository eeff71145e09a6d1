package config

import (
	"fmt"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/errors"
)

// validLogLevels are the accepted logging.level values.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for errors that would otherwise surface
// mid-turn. It returns the first failure as a ConfigError carrying the
// dotted field path.
func (c *Config) Validate() error {
	if err := c.validateInstances(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.Modes.Validate()
}

func (c *Config) validateInstances() error {
	seen := make(map[string]int, len(c.Instances))
	for i, inst := range c.Instances {
		field := fmt.Sprintf("instances[%d]", i)
		if inst.Model == "" {
			return errors.NewConfigError("model is required", nil).WithField(field + ".model")
		}
		if prev, dup := seen[inst.ID]; dup {
			return errors.NewConfigError(
				fmt.Sprintf("instance ID %q already used by instances[%d]; give duplicates of a model distinct ids", inst.ID, prev),
				nil,
			).WithField(field + ".id")
		}
		seen[inst.ID] = i

		if inst.Temperature != nil && (*inst.Temperature < 0 || *inst.Temperature > 2) {
			return errors.NewConfigError(
				fmt.Sprintf("temperature must be in [0, 2], got %v", *inst.Temperature), nil,
			).WithField(field + ".temperature")
		}
		if inst.TopP != nil && (*inst.TopP < 0 || *inst.TopP > 1) {
			return errors.NewConfigError(
				fmt.Sprintf("top_p must be in [0, 1], got %v", *inst.TopP), nil,
			).WithField(field + ".top_p")
		}
		if inst.MaxTokens != nil && *inst.MaxTokens <= 0 {
			return errors.NewConfigError("max_tokens must be > 0", nil).WithField(field + ".max_tokens")
		}
	}
	return nil
}

func (c *Config) validateTransport() error {
	if c.Transport.BaseURL == "" {
		return errors.NewConfigError("base URL is required", nil).WithField("transport.base_url")
	}
	if !strings.HasPrefix(c.Transport.BaseURL, "http://") && !strings.HasPrefix(c.Transport.BaseURL, "https://") {
		return errors.NewConfigError(
			fmt.Sprintf("base URL must start with http:// or https://, got %q", c.Transport.BaseURL), nil,
		).WithField("transport.base_url")
	}
	if c.Transport.TimeoutSeconds < 0 {
		return errors.NewConfigError("timeout_seconds must be >= 0", nil).WithField("transport.timeout_seconds")
	}
	if c.Transport.RequestsPerSecond < 0 {
		return errors.NewConfigError("requests_per_second must be >= 0", nil).WithField("transport.requests_per_second")
	}
	if c.Transport.Burst < 0 {
		return errors.NewConfigError("burst must be >= 0", nil).WithField("transport.burst")
	}
	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	for _, valid := range validLogLevels {
		if level == valid {
			return nil
		}
	}
	return errors.NewConfigError(
		fmt.Sprintf("level must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.Logging.Level),
		nil,
	).WithField("logging.level")
}
