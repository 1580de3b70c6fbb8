package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "does-not-exist.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Runtime.MaxIdentities)
	assert.NotEmpty(t, cfg.Transcripts.Dir)
	assert.NotEmpty(t, cfg.Transcripts.ArchiveDir)
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "warden.json")

	doc := `{
		"default_identity": "anonymous",
		"data_dir": "` + tempDir + `",
		"runtime": {
			"max_identities": 4,
			"max_global_inflight": 16,
			"idle_timeout": "2m"
		}
	}`
	require.NoError(t, os.WriteFile(configPath, []byte(doc), 0600))

	cfg, err := NewLoader(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "anonymous", cfg.DefaultIdentity)
	assert.Equal(t, 4, cfg.Runtime.MaxIdentities)
	assert.Equal(t, 16, cfg.Runtime.MaxGlobalInflight)
	assert.Equal(t, 2*time.Minute, cfg.Runtime.IdleTimeout)

	// Unset fields keep defaults
	assert.Equal(t, 8, cfg.Runtime.MaxPerIdentityInflight)
	assert.Equal(t, filepath.Join(tempDir, "transcripts"), cfg.Transcripts.Dir)
}

func TestLoad_MalformedFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "warden.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0600))

	_, err := NewLoader(configPath).Load()
	assert.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "warden.json")

	cfg := DefaultConfig()
	cfg.DataDir = tempDir
	cfg.DefaultIdentity = "shared"
	cfg.Runtime.MaxIdentities = 7
	cfg.Labels = map[string]string{"env": "test"}

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "shared", loaded.DefaultIdentity)
	assert.Equal(t, 7, loaded.Runtime.MaxIdentities)
	assert.Equal(t, "test", loaded.Labels["env"])
}
