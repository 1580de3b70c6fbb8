package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "default", cfg.DefaultIdentity)
	assert.True(t, cfg.AllowDefaultIdentity)
	assert.Equal(t, 64, cfg.Runtime.MaxIdentities)
	assert.Equal(t, 300*time.Second, cfg.Runtime.BuildTimeout)
	assert.Empty(t, cfg.Identity)
}

func TestDeriveForIdentity_InjectsIdentity(t *testing.T) {
	template := DefaultConfig()

	derived := template.DeriveForIdentity("tenant-a")
	assert.Equal(t, "tenant-a", derived.Identity)
	assert.Empty(t, template.Identity, "template must stay untouched")
}

func TestDeriveForIdentity_DeepCopiesLabels(t *testing.T) {
	template := DefaultConfig()
	template.Labels = map[string]string{"tier": "free"}

	derived := template.DeriveForIdentity("tenant-a")
	derived.Labels["tier"] = "pro"
	derived.Labels["region"] = "eu"

	assert.Equal(t, "free", template.Labels["tier"])
	_, leaked := template.Labels["region"]
	assert.False(t, leaked, "derived mutation must not leak into the template")
}

func TestDeriveForIdentity_IndependentCopies(t *testing.T) {
	template := DefaultConfig()
	template.Labels = map[string]string{"tier": "free"}

	a := template.DeriveForIdentity("a")
	b := template.DeriveForIdentity("b")

	a.Labels["tier"] = "pro"
	assert.Equal(t, "free", b.Labels["tier"])
}

func TestClone_NilLabels(t *testing.T) {
	cfg := DefaultConfig()
	require.Nil(t, cfg.Labels)

	clone := cfg.Clone()
	assert.Nil(t, clone.Labels)
}

func TestString_MasksAPIKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "sk-ant-REDACTED"
	cfg.Providers.OpenAI.APIKey = "sk-secret1234567890abcdef"

	out := cfg.String()
	assert.NotContains(t, out, "secret1234567890abcdef")
	assert.Contains(t, out, "***")

	// masking must not mutate the original
	assert.Equal(t, "sk-ant-REDACTED", cfg.Providers.Anthropic.APIKey)
}
