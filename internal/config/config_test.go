package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REGISTRY_DRIVER", "http")
	t.Setenv("REGISTRY_BASE_URL", "http://registry.local")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Reading.DefaultTimeout)
	assert.Equal(t, 2*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "@every 1m", cfg.Reading.ExpirySweepSchedule)
	assert.Equal(t, 256, cfg.Client.OfflineCacheSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "warn", cfg.Log.ClientLevel)
}

func TestValidate(t *testing.T) {
	t.Run("http registry needs a base url", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("REGISTRY_DRIVER", "http")
		t.Setenv("REGISTRY_BASE_URL", "")
		_, err := Load("does-not-exist.env")
		assert.ErrorContains(t, err, "REGISTRY_BASE_URL")
	})

	t.Run("sheets registry needs credentials", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("REGISTRY_DRIVER", "sheets")
		t.Setenv("GOOGLE_SHEETS_CREDENTIALS_PATH", "")
		_, err := Load("does-not-exist.env")
		assert.ErrorContains(t, err, "GOOGLE_SHEETS_CREDENTIALS_PATH")
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("REGISTRY_BASE_URL", "http://registry.local")
		t.Setenv("POLL_INTERVAL", "soon")
		_, err := Load("does-not-exist.env")
		assert.ErrorContains(t, err, "POLL_INTERVAL")
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "sqlite")
		t.Setenv("REGISTRY_BASE_URL", "http://registry.local")
		_, err := Load("does-not-exist.env")
		assert.ErrorContains(t, err, "STORE_DRIVER")
	})
}

func TestLoadClientIgnoresServerSettings(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("REGISTRY_BASE_URL", "")
	t.Setenv("API_BASE_URL", "http://inventory.local")
	t.Setenv("FIELD_USER_ID", "op-7")

	cfg, err := LoadClient("does-not-exist.env")
	require.NoError(t, err)
	assert.Equal(t, "http://inventory.local", cfg.Client.APIBaseURL)
	assert.Equal(t, "op-7", cfg.Client.UserID)

	t.Setenv("OFFLINE_CACHE_SIZE", "0")
	_, err = LoadClient("does-not-exist.env")
	assert.ErrorContains(t, err, "OFFLINE_CACHE_SIZE")
}
