package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config is the immutable configuration template supplied once at process
// start. Per-caller copies are produced with DeriveForIdentity; the template
// itself is never mutated after load.
type Config struct {
	// Identity is empty on the template and set on per-caller derivatives.
	Identity string `json:"identity,omitempty" mapstructure:"identity"`

	// Default identity policy
	DefaultIdentity      string `json:"default_identity" mapstructure:"default_identity"`
	AllowDefaultIdentity bool   `json:"allow_default_identity" mapstructure:"allow_default_identity"`

	// Runtime limits
	Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime"`

	// Model providers
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Transcript persistence
	Transcripts TranscriptsConfig `json:"transcripts" mapstructure:"transcripts"`

	// Labels are attached to every derived context (tenant tier, region, ...)
	Labels map[string]string `json:"labels,omitempty" mapstructure:"labels"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RuntimeConfig holds the execution-context runtime limits
type RuntimeConfig struct {
	MaxIdentities          int           `json:"max_identities" mapstructure:"max_identities"`
	MaxGlobalInflight      int           `json:"max_global_inflight" mapstructure:"max_global_inflight"`
	MaxPerIdentityInflight int           `json:"max_per_identity_inflight" mapstructure:"max_per_identity_inflight"`
	IdleTimeout            time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	BuildTimeout           time.Duration `json:"build_timeout" mapstructure:"build_timeout"`
	TeardownTimeout        time.Duration `json:"teardown_timeout" mapstructure:"teardown_timeout"`
	SweepInterval          time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
}

// ProvidersConfig holds model provider configuration
type ProvidersConfig struct {
	Default   string         `json:"default" mapstructure:"default"`
	Anthropic ProviderConfig `json:"anthropic" mapstructure:"anthropic"`
	OpenAI    ProviderConfig `json:"openai" mapstructure:"openai"`
}

// ProviderConfig holds one provider's credentials and model selection
type ProviderConfig struct {
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// MetricsConfig holds the prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"`
}

// TranscriptsConfig holds transcript persistence configuration
type TranscriptsConfig struct {
	Dir             string `json:"dir" mapstructure:"dir"`
	ArchiveDir      string `json:"archive_dir" mapstructure:"archive_dir"`
	ArchiveSchedule string `json:"archive_schedule" mapstructure:"archive_schedule"` // cron expression
}

// DefaultConfig returns a configuration with sane defaults
func DefaultConfig() *Config {
	return &Config{
		DefaultIdentity:      "default",
		AllowDefaultIdentity: true,
		Runtime: RuntimeConfig{
			MaxIdentities:          64,
			MaxGlobalInflight:      128,
			MaxPerIdentityInflight: 8,
			IdleTimeout:            30 * time.Minute,
			BuildTimeout:           300 * time.Second,
			TeardownTimeout:        30 * time.Second,
			SweepInterval:          60 * time.Second,
		},
		Providers: ProvidersConfig{
			Default: "anthropic",
			Anthropic: ProviderConfig{
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 4096,
			},
			OpenAI: ProviderConfig{
				Model:     "gpt-4o",
				MaxTokens: 4096,
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			ServiceName: "warden",
			SampleRatio: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:9632",
		},
		Transcripts: TranscriptsConfig{
			ArchiveSchedule: "0 3 * * *",
		},
	}
}

// Clone returns a deep copy of the configuration. Nested maps are copied so
// that no mutable state is shared between the original and the copy.
func (c *Config) Clone() *Config {
	clone := *c

	if c.Labels != nil {
		clone.Labels = make(map[string]string, len(c.Labels))
		for k, v := range c.Labels {
			clone.Labels[k] = v
		}
	}

	return &clone
}

// DeriveForIdentity returns a deep copy of the template with the caller
// identity injected. Pure value transformation, no I/O.
func (c *Config) DeriveForIdentity(identity string) *Config {
	derived := c.Clone()
	derived.Identity = identity
	return derived
}

// String returns a JSON representation with credentials masked
func (c *Config) String() string {
	masked := c.Clone()
	if masked.Providers.Anthropic.APIKey != "" {
		masked.Providers.Anthropic.APIKey = "***"
	}
	if masked.Providers.OpenAI.APIKey != "" {
		masked.Providers.OpenAI.APIKey = "***"
	}

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("config marshal error: %v", err)
	}
	return string(data)
}
