package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "https://localhost:7247/api", cfg.CatalogAPI.BaseURL)
	assert.Zero(t, cfg.CatalogAPI.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Server.Pprof)
	assert.Equal(t, `^https?://(localhost|127\.0\.0\.1)(:[0-9]+)?$`, cfg.Server.CORSPattern)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("CATALOG_API_BASE_URL", "http://catalog.local/api")
	t.Setenv("CATALOG_API_TIMEOUT", "15s")
	t.Setenv("PREVIEW_DIR", "/tmp/previews")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "http://catalog.local/api", cfg.CatalogAPI.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.CatalogAPI.Timeout)
	assert.Equal(t, "/tmp/previews", cfg.Preview.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("CATALOG_API_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}
