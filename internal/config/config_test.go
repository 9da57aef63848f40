package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDBPath, EnvRemoteURL, EnvHubAddr, EnvHubBackend, EnvHubOrigins, EnvLogLevel, EnvLogFormat, EnvLogOutput, EnvLogTimeFmt} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(Options{EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Empty(t, cfg.RemoteURL)
	assert.Equal(t, DefaultHubAddr, cfg.HubAddr)
	assert.Equal(t, BackendMemory, cfg.HubBackend)
	assert.Equal(t, "info", cfg.Log().Level)
	assert.Equal(t, "console", cfg.Log().Format)
	assert.Equal(t, "stderr", cfg.Log().Output)
	assert.Nil(t, cfg.Origins())
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"LEDGER_DB_PATH=from-file.db\nLEDGER_HUB_ADDR=:9000\nLOG_LEVEL=warn\n"), 0o600))
	t.Setenv(EnvHubAddr, ":9100")

	cfg, err := Load(Options{
		EnvFiles:  []string{envFile},
		Overrides: map[string]string{EnvLogLevel: "debug"},
	})
	require.NoError(t, err)

	assert.Equal(t, "from-file.db", cfg.DBPath)
	assert.Equal(t, ":9100", cfg.HubAddr, "process environment beats .env")
	assert.Equal(t, "debug", cfg.LogLevel, "overrides beat everything")
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	clearEnv(t)
	_, err := Load(Options{EnvFiles: []string{filepath.Join(t.TempDir(), "nope.env")}})
	assert.NoError(t, err)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad remote scheme", map[string]string{EnvRemoteURL: "ftp://host"}, "unsupported store scheme"},
		{"hub behind hub", map[string]string{EnvHubBackend: "http://other:8080"}, "cannot be backed by another hub"},
		{"bad log format", map[string]string{EnvLogFormat: "xml"}, "json or console"},
		{"empty db path", map[string]string{EnvDBPath: ""}, "LEDGER_DB_PATH is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(Options{EnvFiles: []string{}, Overrides: tt.env})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRemoteScheme(t *testing.T) {
	tests := map[string]string{
		"http://hub:8080":                 "http",
		"https://hub.example.com/base":    "http",
		"redis://localhost:6379/0":        "redis",
		"postgres://u:p@localhost/ledger": "postgres",
		"postgresql://localhost/ledger":   "postgres",
	}
	for raw, want := range tests {
		got, err := RemoteScheme(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := RemoteScheme("file:///tmp/x")
	assert.Error(t, err)
}

func TestOrigins(t *testing.T) {
	cfg := &Config{HubOrigins: " http://a.test, ,http://b.test"}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Origins())
}
