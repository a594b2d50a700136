package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
[server]
port = 8080

[feed]
base_url = "https://scanrad.io"
feed_id = "rid-417"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		assert.Error(t, err)
	})

	t.Run("parses sections", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "rid-417", cfg.Feed.FeedID)
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		t.Setenv("ALERT_ENV", "PROD")
		t.Setenv("ALERT_SMTP_SERVER", "smtp.example.com")
		t.Setenv("TWILIO_ACCOUNT_SID", "AC-test")
		t.Setenv("AUDIO_DAY", "2026-08-30")

		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)
		assert.Equal(t, "PROD", cfg.Alerts.Environment)
		assert.Equal(t, "smtp.example.com", cfg.Alerts.SMTPServer)
		assert.Equal(t, "AC-test", cfg.Alerts.TwilioAccountSID)
		assert.Equal(t, "2026-08-30", cfg.Pipeline.StartDay)
	})
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)
		return cfg
	}

	t.Run("applies defaults", func(t *testing.T) {
		cfg := valid(t)
		require.NoError(t, cfg.Validate())

		assert.Equal(t, 60, cfg.Feed.SegmentDurationSecs)
		assert.Equal(t, 5, cfg.Feed.MaxRetries)
		assert.Equal(t, "data/audio", cfg.Pipeline.AudioDir)
		assert.Equal(t, 180, cfg.Pipeline.MinBackoffSecs)
		assert.Equal(t, 900, cfg.Pipeline.MaxBackoffSecs)
		assert.Equal(t, 10, cfg.Pipeline.BackoffWindowSize)
		assert.Equal(t, "whisper-ctranslate2", cfg.Transcription.EnginePath)
		assert.Equal(t, "medium", cfg.Transcription.Model)
		assert.Equal(t, 3600, cfg.Alerts.MaxEventAgeSecs)
		assert.Equal(t, 587, cfg.Alerts.SMTPPort)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("rejects invalid port", func(t *testing.T) {
		cfg := valid(t)
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires feed identity", func(t *testing.T) {
		cfg := valid(t)
		cfg.Feed.FeedID = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects malformed start day", func(t *testing.T) {
		cfg := valid(t)
		cfg.Pipeline.StartDay = "yesterday"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects inverted backoff bounds", func(t *testing.T) {
		cfg := valid(t)
		cfg.Pipeline.MinBackoffSecs = 600
		cfg.Pipeline.MaxBackoffSecs = 300
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown log level", func(t *testing.T) {
		cfg := valid(t)
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("from address defaults to the smtp user", func(t *testing.T) {
		cfg := valid(t)
		cfg.Alerts.SMTPUser = "alerts@example.com"
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "alerts@example.com", cfg.Alerts.FromEmail)
	})
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("prefers the explicit path", func(t *testing.T) {
		path := writeConfig(t, minimalConfig)
		cfg, err := LoadWithFallback(path)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("errors when nothing is found", func(t *testing.T) {
		_, err := LoadWithFallback(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}
