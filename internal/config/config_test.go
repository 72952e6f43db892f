package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OUTBOXLAB_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Equal(t, "http://localhost:4000", cfg.APIURL)
	assert.Equal(t, DefaultUserinfoURL, cfg.UserinfoURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.SetupRequired())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OUTBOXLAB_CONFIG", "")
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("API_URL", "https://api.example.com/")
	t.Setenv("GOOGLE_CLIENT_ID", "client.apps.googleusercontent.com")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("DB_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.False(t, cfg.SetupRequired())
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "", cfg.DBPath)
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("OUTBOXLAB_CONFIG", "")
	t.Setenv("HTTP_PORT", "not-a-port")
	t.Setenv("REQUEST_TIMEOUT", "-1s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outboxlab.yaml")
	content := "api_url: http://backend.internal:4000/\n" +
		"google_client_id: from-file\n" +
		"request_timeout: 5s\n" +
		"log_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("OUTBOXLAB_CONFIG", path)
	t.Setenv("GOOGLE_CLIENT_ID", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://backend.internal:4000", cfg.APIURL)
	assert.Equal(t, "from-env", cfg.GoogleClientID)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadMissingYAML(t *testing.T) {
	t.Setenv("OUTBOXLAB_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}
