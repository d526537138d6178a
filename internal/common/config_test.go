package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, "http://127.0.0.1:2076", config.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, config.BackendTimeout())
	assert.Equal(t, 500*time.Millisecond, config.DefaultPollInterval())
	assert.Equal(t, time.Second, config.PollIntervalFor("kfold_sort"))
	assert.Equal(t, 500*time.Millisecond, config.PollIntervalFor("split"))
	assert.Equal(t, 500, config.Storage.MaxRunHistory)
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
environment = "production"

[server]
port = 9000

[backend]
base_url = "http://vision:2076"
timeout = "5s"

[jobs]
poll_interval = "200ms"

[jobs.poll_intervals]
kfold_sort = "2s"
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9001
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9001, config.Server.Port, "later file should override earlier")
	assert.Equal(t, "http://vision:2076", config.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, config.BackendTimeout())
	assert.Equal(t, 200*time.Millisecond, config.DefaultPollInterval())
	assert.Equal(t, 2*time.Second, config.PollIntervalFor("kfold_sort"))
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PILLOPS_SERVER_PORT", "7777")
	t.Setenv("PILLOPS_BACKEND_URL", "http://10.0.0.5:2076")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7777, config.Server.Port)
	assert.Equal(t, "http://10.0.0.5:2076", config.Backend.BaseURL)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 8200, "0.0.0.0")

	assert.Equal(t, 8200, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
