package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON schema the raw config document is validated
// against before semantic checks run.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "default_identity": {"type": "string"},
    "allow_default_identity": {"type": "boolean"},
    "data_dir": {"type": "string"},
    "runtime": {
      "type": "object",
      "properties": {
        "max_identities": {"type": "integer", "minimum": 1},
        "max_global_inflight": {"type": "integer", "minimum": 1},
        "max_per_identity_inflight": {"type": "integer", "minimum": 0}
      }
    },
    "providers": {
      "type": "object",
      "properties": {
        "default": {"type": "string", "enum": ["anthropic", "openai"]},
        "anthropic": {"type": "object"},
        "openai": {"type": "object"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "error"]}
      }
    },
    "tracing": {
      "type": "object",
      "properties": {
        "sample_ratio": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "labels": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

// Validator validates configuration values
type Validator struct {
	schemaLoader gojsonschema.JSONLoader
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		schemaLoader: gojsonschema.NewStringLoader(configSchema),
	}
}

// Validate runs schema validation over the raw document shape followed by
// semantic checks the schema cannot express.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.validateSchema(cfg); err != nil {
		return err
	}
	return v.validateSemantics(cfg)
}

func (v *Validator) validateSchema(cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(v.schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("config schema validation failed: %s", strings.Join(msgs, "; "))
	}

	return nil
}

func (v *Validator) validateSemantics(cfg *Config) error {
	rt := cfg.Runtime

	if rt.MaxIdentities <= 0 {
		return fmt.Errorf("runtime.max_identities must be positive")
	}
	if rt.MaxGlobalInflight <= 0 {
		return fmt.Errorf("runtime.max_global_inflight must be positive")
	}
	if rt.MaxPerIdentityInflight < 0 {
		return fmt.Errorf("runtime.max_per_identity_inflight cannot be negative")
	}
	if rt.IdleTimeout <= 0 {
		return fmt.Errorf("runtime.idle_timeout must be positive")
	}
	if rt.BuildTimeout <= 0 {
		return fmt.Errorf("runtime.build_timeout must be positive")
	}
	if rt.TeardownTimeout <= 0 {
		return fmt.Errorf("runtime.teardown_timeout must be positive")
	}
	if rt.SweepInterval <= 0 {
		return fmt.Errorf("runtime.sweep_interval must be positive")
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}

	if cfg.AllowDefaultIdentity && cfg.DefaultIdentity == "" {
		return fmt.Errorf("default_identity is required when allow_default_identity is set")
	}

	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		if err := v.ValidateAPIKey(key, "anthropic"); err != nil {
			return err
		}
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		if err := v.ValidateAPIKey(key, "openai"); err != nil {
			return err
		}
	}

	return nil
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}
