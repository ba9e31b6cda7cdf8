package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(filepath.Join("configs", "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "data/billing.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, "documents", cfg.Storage.DocumentDir)
	assert.Equal(t, int64(10<<20), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  read_timeout: 5s
database:
  path: /var/lib/billing/billing.db
storage:
  document_dir: /var/lib/billing/docs
  max_upload_bytes: 2048
logger:
  level: debug
`), 0o644))

	t.Setenv("DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "/var/lib/billing/docs", cfg.Storage.DocumentDir)
	assert.Equal(t, int64(2048), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCUMENT_DIR=/srv/docs\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("DOCUMENT_DIR") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs", cfg.Storage.DocumentDir)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "billing.db"},
			Storage:  StorageConfig{DocumentDir: "docs"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"no storage", func(c *Config) { c.Storage.DocumentDir = "" }, "storage.document_dir"},
		{"negative upload", func(c *Config) { c.Storage.MaxUploadBytes = -1 }, "max_upload_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: 8081},
		Database: DatabaseConfig{Path: "billing.db", MaxOpenConns: 4},
		Storage:  StorageConfig{DocumentDir: "docs", MaxUploadBytes: 1024},
	}

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "billing.db", cc.Database.Path)
	assert.Equal(t, 4, cc.Database.MaxOpenConns)
	assert.Equal(t, "docs", cc.Storage.DocumentDir)
	assert.Equal(t, int64(1024), cc.Storage.MaxUploadBytes)
	assert.Equal(t, 8081, cc.Server.Port)
	assert.NoError(t, cc.Validate())
}
