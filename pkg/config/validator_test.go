package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	cfg := &Config{
		Defaults:  DefaultDefaults(),
		Queue:     DefaultQueueConfig(),
		Providers: DefaultProvidersConfig(),
		Storage:   DefaultStorageConfig(),
		Redis:     DefaultRedisConfig(),
		HTTP:      DefaultHTTPConfig(),
		Retention: DefaultRetentionConfig(),
	}
	cfg.Storage.Endpoint = "https://proj.supabase.co/storage/v1"
	return cfg
}

func TestValidateAll(t *testing.T) {
	cfg := validTestConfig()
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateProviders(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "missing text model",
			mutate:  func(cfg *Config) { cfg.Providers.Text.Model = "" },
			wantErr: "text.model",
		},
		{
			name:    "zero text timeout",
			mutate:  func(cfg *Config) { cfg.Providers.Text.Timeout = 0 },
			wantErr: "text.timeout",
		},
		{
			name:    "missing image model",
			mutate:  func(cfg *Config) { cfg.Providers.Image.Model = "" },
			wantErr: "image.model",
		},
		{
			name:    "tiny image dimensions",
			mutate:  func(cfg *Config) { cfg.Providers.Image.Width = 16 },
			wantErr: "image.width/height",
		},
		{
			name:    "missing voice",
			mutate:  func(cfg *Config) { cfg.Providers.Audio.VoiceID = "" },
			wantErr: "audio.voice_id",
		},
		{
			name: "mock mode skips upstream requirements",
			mutate: func(cfg *Config) {
				cfg.Providers.Mock.Enabled = true
				cfg.Providers.Text.Model = ""
				cfg.Providers.Audio.VoiceID = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).validateProviders()

			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStorage(t *testing.T) {
	t.Run("missing endpoint fails for real providers", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Storage.Endpoint = ""
		err := NewValidator(cfg).validateStorage()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint")
	})

	t.Run("missing endpoint allowed in mock mode", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Storage.Endpoint = ""
		cfg.Providers.Mock.Enabled = true
		require.NoError(t, NewValidator(cfg).validateStorage())
	})

	t.Run("missing buckets fail", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Storage.BucketAudio = ""
		err := NewValidator(cfg).validateStorage()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket_audio")
	})
}

func TestValidateRedis(t *testing.T) {
	cfg := validTestConfig()
	cfg.Redis.Addr = ""
	err := NewValidator(cfg).validateRedis()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "addr")

	cfg = validTestConfig()
	cfg.Redis.DB = -1
	err = NewValidator(cfg).validateRedis()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestValidateDefaults(t *testing.T) {
	cfg := validTestConfig()
	cfg.Defaults.SceneCount = 0
	err := NewValidator(cfg).validateDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene_count")

	cfg = validTestConfig()
	cfg.Defaults.SceneCount = MaxSceneCount + 1
	err = NewValidator(cfg).validateDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene_count")
}

func TestValidateRetention(t *testing.T) {
	cfg := validTestConfig()
	cfg.Retention.StoryRetentionDays = 0
	err := NewValidator(cfg).validateRetention()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "story_retention_days")

	cfg = validTestConfig()
	cfg.Retention.DeadLetterKeep = -1
	err = NewValidator(cfg).validateRetention()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dead_letter_keep")

	cfg = validTestConfig()
	cfg.Retention.CleanupInterval = 0
	err = NewValidator(cfg).validateRetention()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup_interval")
}

func TestMockEnabled(t *testing.T) {
	cfg := validTestConfig()
	assert.False(t, cfg.MockEnabled())

	cfg.Providers.Mock.Enabled = true
	assert.True(t, cfg.MockEnabled())

	assert.False(t, (&Config{}).MockEnabled(), "nil providers never mock")
}
