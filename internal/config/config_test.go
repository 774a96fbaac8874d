package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stockroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "demo-project")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.True(t, cfg.Storage.Seed)
	assert.Equal(t, 50, cfg.Storage.PageSize)
	assert.Equal(t, AuthFirebase, cfg.Auth.Mode)
	assert.Equal(t, "demo-project", cfg.Auth.ProjectID)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  public_reads: true
  shutdown_timeout: 10s
storage:
  driver: mongo
  dsn: mongodb://localhost:27017
  page_size: 20
auth:
  mode: static
  token_hash: aGFzaA==
  token_salt: c2FsdA==
log:
  verbosity: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Server.PublicReads)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverMongo, cfg.Storage.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.DSN)
	assert.Equal(t, "stockroom", cfg.Storage.Database, "unset keys keep their default")
	assert.Equal(t, 20, cfg.Storage.PageSize)
	assert.Equal(t, AuthStatic, cfg.Auth.Mode)
	assert.Equal(t, 2, cfg.Log.Verbosity)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: postgres
  dsn: postgres://file
auth:
  project_id: from-file
`)
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("FIREBASE_PROJECT_ID", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "postgres://env", cfg.Storage.DSN)
	assert.Equal(t, "from-env", cfg.Auth.ProjectID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read")
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot parse")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "cassandra" }, "unknown storage.driver"},
		{"remote driver without dsn", func(c *Config) { c.Storage.Driver = DriverRedis }, "storage.dsn is required"},
		{"zero page size", func(c *Config) { c.Storage.PageSize = 0 }, "page_size"},
		{"firebase without project", func(c *Config) { c.Auth.ProjectID = "" }, "auth.project_id"},
		{"static without hash", func(c *Config) { c.Auth.Mode = AuthStatic }, "auth.token_hash"},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }, "unknown auth.mode"},
		{"negative rate", func(c *Config) { c.Server.WriteRateLimit = -1 }, "must not be negative"},
		{"rate without burst", func(c *Config) { c.Server.WriteBurst = 0 }, "write_burst"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.ProjectID = "demo-project"
			c.mutate(cfg)

			err := cfg.Validate()
			if c.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.wantErr)
		})
	}
}
