// Package config loads and validates the Ensemble configuration: the model
// instance roster, transport settings, base sampling parameters, logging,
// and the per-mode knobs. Configuration is viper-backed: a .ensemble.yaml
// file (working directory first, then $HOME) overridden by ENSEMBLE_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ensemble-chat/ensemble/internal/modes"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// Config is the complete Ensemble configuration.
type Config struct {
	// Instances is the model roster for a conversation. Each entry becomes
	// one modes.Instance; duplicates of the same model are allowed as long
	// as instance IDs stay unique.
	Instances []InstanceConfig `mapstructure:"instances"`
	// Settings are the base sampling parameters applied to every call,
	// overridden per instance and per call.
	Settings SettingsConfig `mapstructure:"settings"`
	// Transport configures the model backend connection.
	Transport TransportConfig `mapstructure:"transport"`
	// Logging configures the debug log.
	Logging LoggingConfig `mapstructure:"logging"`
	// Modes holds the per-mode knobs (rounds, thresholds, prompt overrides,
	// coordinator/router/chair selection).
	Modes modes.Config `mapstructure:"modes"`
}

// InstanceConfig declares one invocation target in the roster.
type InstanceConfig struct {
	// ID identifies the instance across a turn. Defaults to the model ID
	// when omitted; must be unique after defaulting.
	ID string `mapstructure:"id"`
	// Model is the backend model identifier, e.g. "openai/gpt-4o".
	Model string `mapstructure:"model"`
	// Label is the display name shown in transcripts and brackets.
	Label string `mapstructure:"label"`
	// Temperature, TopP, and MaxTokens override the base settings for this
	// instance. Nil means inherit.
	Temperature *float64 `mapstructure:"temperature"`
	TopP        *float64 `mapstructure:"top_p"`
	MaxTokens   *int     `mapstructure:"max_tokens"`
}

// Params returns the instance's parameter overrides.
func (ic *InstanceConfig) Params() transport.Params {
	return transport.Params{
		Temperature: ic.Temperature,
		TopP:        ic.TopP,
		MaxTokens:   ic.MaxTokens,
	}
}

// SettingsConfig holds the base sampling parameters.
type SettingsConfig struct {
	Temperature *float64 `mapstructure:"temperature"`
	TopP        *float64 `mapstructure:"top_p"`
	MaxTokens   *int     `mapstructure:"max_tokens"`
}

// Params returns the base parameters as a transport.Params.
func (sc *SettingsConfig) Params() transport.Params {
	return transport.Params{
		Temperature: sc.Temperature,
		TopP:        sc.TopP,
		MaxTokens:   sc.MaxTokens,
	}
}

// TransportConfig configures the model backend connection.
type TransportConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:8090".
	BaseURL string `mapstructure:"base_url"`
	// APIKey, when set, is sent as a bearer token. Prefer the
	// ENSEMBLE_TRANSPORT_API_KEY environment variable over the config file.
	APIKey string `mapstructure:"api_key"`
	// TimeoutSeconds bounds each streamed call. 0 means no client timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// RequestsPerSecond throttles calls per model. 0 disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	// Burst is the limiter burst size. Defaults to 1 when limiting is on.
	Burst int `mapstructure:"burst"`
}

// Timeout returns the per-call timeout as a time.Duration (0 means disabled).
func (tc *TransportConfig) Timeout() time.Duration {
	return time.Duration(tc.TimeoutSeconds) * time.Second
}

// ClientConfig converts the transport section into a transport.ClientConfig.
// The caller supplies the logger.
func (tc *TransportConfig) ClientConfig() transport.ClientConfig {
	return transport.ClientConfig{
		BaseURL:           tc.BaseURL,
		APIKey:            tc.APIKey,
		Timeout:           tc.Timeout(),
		RequestsPerSecond: tc.RequestsPerSecond,
		Burst:             tc.Burst,
	}
}

// LoggingConfig controls debug logging behavior.
type LoggingConfig struct {
	// Enabled controls whether debug logging is on (default: true).
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info").
	Level string `mapstructure:"level"`
	// Dir is the log directory. Empty means log to stderr.
	Dir string `mapstructure:"dir"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Instances: []InstanceConfig{},
		Transport: TransportConfig{
			BaseURL:           "http://localhost:8090",
			TimeoutSeconds:    0, // no watchdog; cancellation is caller-driven
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
		Modes: modes.DefaultConfig(),
	}
}

// SetDefaults registers default values with the given viper instance.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Transport defaults
	v.SetDefault("transport.base_url", defaults.Transport.BaseURL)
	v.SetDefault("transport.timeout_seconds", defaults.Transport.TimeoutSeconds)
	v.SetDefault("transport.requests_per_second", defaults.Transport.RequestsPerSecond)
	v.SetDefault("transport.burst", defaults.Transport.Burst)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)

	// Mode defaults
	v.SetDefault("modes.elected.vote_max_tokens", defaults.Modes.Elected.VoteMaxTokens)
	v.SetDefault("modes.refine.rounds", defaults.Modes.Refine.Rounds)
	v.SetDefault("modes.consensus.max_rounds", defaults.Modes.Consensus.MaxRounds)
	v.SetDefault("modes.consensus.threshold", defaults.Modes.Consensus.Threshold)
	v.SetDefault("modes.debate.rounds", defaults.Modes.Debate.Rounds)
	v.SetDefault("modes.explain.levels", defaults.Modes.Explain.Levels)
}

// Init prepares a viper instance to read .ensemble.yaml from the working
// directory or $HOME, with ENSEMBLE_* environment overrides
// (ENSEMBLE_TRANSPORT_BASE_URL, ENSEMBLE_LOGGING_LEVEL, ...).
func Init(v *viper.Viper) {
	v.SetConfigName(".ensemble")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}

	v.SetEnvPrefix("ENSEMBLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// Load reads the configuration from viper into a Config struct, applies
// roster defaulting, and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyRosterDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyRosterDefaults fills omitted instance IDs with the model ID.
func (c *Config) applyRosterDefaults() {
	for i := range c.Instances {
		if c.Instances[i].ID == "" {
			c.Instances[i].ID = c.Instances[i].Model
		}
	}
}

// Roster converts the configured instances into the runtime roster.
func (c *Config) Roster() []modes.Instance {
	roster := make([]modes.Instance, len(c.Instances))
	for i, ic := range c.Instances {
		roster[i] = modes.Instance{
			ID:      ic.ID,
			ModelID: ic.Model,
			Label:   ic.Label,
			Params:  ic.Params(),
		}
	}
	return roster
}
