package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
redis:
  host: "localhost"
  port: 6379
service:
  timeout_seconds: 30
  environments:
    test:
      url: "https://ubyport.example/ws_uby.svc"
      domain: "D"
      username: "user"
      password: "secret"
operator:
  idub: "123456789"
  mark: "HOTEL"
  name: "Hotel"
  postal_code: "11000"
pipeline:
  fallback_batch_size: 32
  fatal_prefixes: ["1"]
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "123456789", cfg.Operator.ID)
	require.Equal(t, 32, cfg.Pipeline.FallbackBatchSize)
	require.Equal(t, []string{"1"}, cfg.Pipeline.FatalPrefixes)

	env, err := cfg.Environment("test")
	require.NoError(t, err)
	require.Equal(t, "D", env.Domain)

	_, err = cfg.Environment("production")
	require.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDatabaseConfig_ConnString(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, Username: "u", Password: "p", DBName: "db"}
	require.Equal(t, "postgres://u:p@h:5432/db?sslmode=disable", d.ConnString())

	d.DSN = "postgres://x"
	require.Equal(t, "postgres://x", d.ConnString())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("UBYSYNC_SERVICE_PASSWORD", "fromenv")
	t.Setenv("UBYSYNC_DB_PASSWORD", "dbpass")

	cfg := &Config{Service: ServiceConfig{Environments: map[string]EnvironmentConfig{
		"test": {Username: "u", Password: "old"},
	}}}
	ApplyEnv(cfg, filepath.Join(t.TempDir(), "missing.env"))

	require.Equal(t, "fromenv", cfg.Service.Environments["test"].Password)
	require.Equal(t, "u", cfg.Service.Environments["test"].Username)
	require.Equal(t, "dbpass", cfg.Database.Password)
}
