package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "MIS_Upload_File", cfg.MIS.RecordList)
	assert.Equal(t, "MIS_Attachment", cfg.MIS.AttachmentRoot)
	assert.Equal(t, 1, cfg.MIS.Workers)
	assert.Equal(t, 30*time.Second, cfg.MIS.CallTimeout)
	assert.Equal(t, "memory", cfg.MIS.GuardBackend)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("MIS_WORKERS", "4")
	t.Setenv("MIS_GUARD_BACKEND", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 4, cfg.MIS.Workers)
	assert.Equal(t, "redis", cfg.MIS.GuardBackend)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("MIS_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnvOrDefault("MIS_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("MIS_TEST_VALUE_MISSING", "fallback"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  allow_origins: ["https://mis.example.com"]
mis:
  record_list: Costs
  workers: 0
  call_timeout: 5s
  guard_backend: redis
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://mis.example.com"}, cfg.Server.AllowOrigins)
	assert.Equal(t, "Costs", cfg.MIS.RecordList)
	assert.Equal(t, 1, cfg.MIS.Workers, "workers below one fall back to sequential")
	assert.Equal(t, 5*time.Second, cfg.MIS.CallTimeout)
	assert.Equal(t, "MIS_Attachment", cfg.MIS.AttachmentRoot)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
