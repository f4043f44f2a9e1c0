package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	libconfig "evcentral/libs/config"
)

func TestLoadDefaultsWithMemoryStorage(t *testing.T) {
	t.Setenv(libconfig.PathEnv, "")
	t.Setenv("CSMS_STORAGE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddress())
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.PingInterval())
	assert.Equal(t, 15*time.Second, cfg.WriteTimeout())
	assert.Zero(t, cfg.ReadTimeout())
	assert.Equal(t, 10*time.Second, cfg.BootInterval())
	assert.True(t, cfg.OCPP.RequireSubprotocol)
	assert.Equal(t, "test", cfg.Remote.DefaultIDTag)
	assert.Equal(t, 1, cfg.Remote.DefaultConnector)
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Setenv(libconfig.PathEnv, "")
	t.Setenv("CSMS_STORAGE_DRIVER", "postgres")
	t.Setenv("CSMS_POSTGRES_DSN", "")

	_, err := Load("")
	assert.ErrorContains(t, err, "DSN is required")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv(libconfig.PathEnv, "")
	t.Setenv("CSMS_STORAGE_DRIVER", "sqlite")

	_, err := Load("")
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestLoadFileThenEnv(t *testing.T) {
	t.Setenv(libconfig.PathEnv, "")
	path := filepath.Join(t.TempDir(), "csms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: ":9000"
storage:
  driver: Postgres
  dsn: postgres://localhost/csms
ocpp:
  callTimeoutSeconds: 5
  requireSubprotocol: false
remote:
  defaultIdTag: fleet
  tags: [TAG1]
`), 0o600))
	t.Setenv("CSMS_OCPP_CALL_TIMEOUT", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddress())
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, 7*time.Second, cfg.CallTimeout())
	assert.False(t, cfg.OCPP.RequireSubprotocol)
	assert.Equal(t, "fleet", cfg.Remote.DefaultIDTag)
	assert.Equal(t, []string{"TAG1"}, cfg.Remote.Tags)
	assert.Equal(t, 24*time.Hour, cfg.RedisTTL())
}

func TestLoadTagsFromEnv(t *testing.T) {
	t.Setenv(libconfig.PathEnv, "")
	t.Setenv("CSMS_STORAGE_DRIVER", "memory")
	t.Setenv("CSMS_AUTH_TAGS", "TAG1, TAG2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"TAG1", "TAG2"}, cfg.Remote.Tags)
}
