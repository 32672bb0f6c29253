// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "veriform", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1, cfg.API.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.API.BackoffCap)
	assert.Equal(t, 2, cfg.API.UploadAttempts)
	assert.Equal(t, 6, cfg.Verify.PollAttempts)
	assert.Equal(t, 2*time.Second, cfg.Verify.PollInterval)
	assert.True(t, cfg.Delays.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("api.max_retries", 3)
		v.Set("verify.base_url", "https://verify.internal.test")
		v.Set("verify.dry_run", true)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.API.MaxRetries)
		assert.Equal(t, "https://verify.internal.test", cfg.Verify.BaseURL)
		assert.True(t, cfg.Verify.DryRun)
	})

	t.Run("decodes selector overrides", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("selectors.fields", map[string]interface{}{
			"organization": []map[string]interface{}{
				{"kind": "id", "query": "org-search"},
				{"kind": "attribute", "query": "input[placeholder*='school' i]"},
			},
		})

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		require.Len(t, cfg.Selectors.Fields["organization"], 2)
		assert.Equal(t, "id", cfg.Selectors.Fields["organization"][0].Kind)
		assert.Equal(t, "org-search", cfg.Selectors.Fields["organization"][0].Query)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		testCases := []struct {
			name string
			key  string
			val  interface{}
		}{
			{"empty base url", "verify.base_url", ""},
			{"zero poll attempts", "verify.poll_attempts", 0},
			{"negative retries", "api.max_retries", -1},
			{"zero upload attempts", "api.upload_attempts", 0},
			{"inverted delay range", "delays.min", "5s"},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				v := viper.New()
				SetDefaults(v)
				v.Set(tc.key, tc.val)
				_, err := NewConfigFromViper(v)
				assert.Error(t, err)
			})
		}
	})

	t.Run("proxy enabled requires endpoints", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("proxy.enabled", true)
		_, err := NewConfigFromViper(v)
		require.Error(t, err)

		v.Set("proxy.endpoints", []string{"http://127.0.0.1:8081"})
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Len(t, cfg.Proxy.Endpoints, 1)
	})
}
