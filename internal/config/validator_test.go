package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(DefaultConfig()))
}

func TestValidate_Limits(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max identities", func(c *Config) { c.Runtime.MaxIdentities = 0 }},
		{"zero global inflight", func(c *Config) { c.Runtime.MaxGlobalInflight = 0 }},
		{"negative per-identity inflight", func(c *Config) { c.Runtime.MaxPerIdentityInflight = -1 }},
		{"zero idle timeout", func(c *Config) { c.Runtime.IdleTimeout = 0 }},
		{"zero build timeout", func(c *Config) { c.Runtime.BuildTimeout = 0 }},
		{"zero sweep interval", func(c *Config) { c.Runtime.SweepInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, v.Validate(cfg))
		})
	}
}

func TestValidate_DefaultIdentityPolicy(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.AllowDefaultIdentity = true
	cfg.DefaultIdentity = ""
	assert.Error(t, v.Validate(cfg))

	cfg.AllowDefaultIdentity = false
	assert.NoError(t, v.Validate(cfg))
}

func TestValidate_UnknownProviderDefault(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.Providers.Default = "mistral"
	assert.Error(t, v.Validate(cfg))
}

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.ValidateAPIKey("sk-ant-abc123", "anthropic"))
	require.NoError(t, v.ValidateAPIKey("sk-abc123", "openai"))

	assert.Error(t, v.ValidateAPIKey("", "anthropic"))
	assert.Error(t, v.ValidateAPIKey("sk-abc123", "anthropic"))
	assert.Error(t, v.ValidateAPIKey("pk-abc123", "openai"))
}

func TestValidate_BadAPIKeyInConfig(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "not-a-key"
	assert.Error(t, v.Validate(cfg))
}
