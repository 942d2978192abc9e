package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "fixer.db", cfg.Database)
	assert.Equal(t, 1, cfg.Fix.Workers)
	assert.Equal(t, 10, cfg.Fix.RetryAttempts)
	assert.Equal(t, 3*time.Second, cfg.Fix.RetryBaseDelay)
	assert.Equal(t, 45*time.Minute, cfg.Fix.TokenRefreshAfter)
	assert.Equal(t, 10*time.Millisecond, cfg.Fix.PollInterval)
	assert.Equal(t, time.Second, cfg.Fix.ShutdownGrace)
	assert.Equal(t, "https://api.box.com/2.0", cfg.API.BaseURL)
	assert.Equal(t, 10, cfg.API.RateLimitPerSec)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Web.Listen)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixer.yaml")
	content := `
database: /var/lib/fixer/state.db
root_folder_id: "987654"
fix:
  workers: 8
  retry_attempts: 3
  retry_base_delay: 500ms
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fixer/state.db", cfg.Database)
	assert.Equal(t, "987654", cfg.RootFolderID)
	assert.Equal(t, 8, cfg.Fix.Workers)
	assert.Equal(t, 3, cfg.Fix.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Fix.RetryBaseDelay)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset keys keep defaults.
	assert.Equal(t, 45*time.Minute, cfg.Fix.TokenRefreshAfter)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Fix.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg.Fix.Workers = 2
	cfg.Fix.RetryAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg.Fix.RetryAttempts = 1
	cfg.Database = ""
	assert.Error(t, cfg.Validate())
}
