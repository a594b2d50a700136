package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings
	Feed          FeedConfig          `toml:"feed"`          // Scanner feed source settings
	Pipeline      PipelineConfig      `toml:"pipeline"`      // Segment acquisition pipeline settings
	Transcription TranscriptionConfig `toml:"transcription"` // External transcription engine settings
	Alerts        AlertsConfig        `toml:"alerts"`        // Alert matching and notification settings
	Subscribers   SubscribersConfig   `toml:"subscribers"`   // Subscriber preference store settings
	Storage       StorageConfig       `toml:"storage"`       // Data persistence settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the status/subscriber API
	Host             string `toml:"host"`                  // Host address to bind to
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Keep-alive idle timeout
}

// FeedConfig contains scanner feed source configuration
type FeedConfig struct {
	BaseURL             string `toml:"base_url"`                // Base URL of the scanner feed (e.g., https://scanrad.io)
	FeedID              string `toml:"feed_id"`                 // Feed identifier used in download/latest URLs
	SegmentDurationSecs int    `toml:"segment_duration_secs"`   // Duration of one audio segment in seconds
	RequestTimeoutSecs  int    `toml:"request_timeout_seconds"` // HTTP request timeout in seconds
	MaxRetries          int    `toml:"max_retries"`             // Maximum download attempts on HTTP 500 / network errors
	RetryBaseDelayMs    int    `toml:"retry_base_delay_ms"`     // Base delay for exponential retry backoff in milliseconds
}

// PipelineConfig contains segment acquisition pipeline configuration
type PipelineConfig struct {
	AudioDir           string `toml:"audio_dir"`             // Directory for transient audio files
	TranscriptDir      string `toml:"transcript_dir"`        // Directory for durable transcript artifacts
	StartDay           string `toml:"start_day"`             // Optional fixed sweep start day (YYYY-MM-DD), empty = today UTC
	MaxSegmentAgeSecs  int    `toml:"max_segment_age_secs"`  // Segments older than this are skipped during sweep
	PollIntervalSecs   int    `toml:"poll_interval_secs"`    // Latest-segment poll interval in seconds
	HeartbeatSecs      int    `toml:"heartbeat_secs"`        // Idle-poll heartbeat log interval in seconds
	MinBackoffSecs     int    `toml:"min_backoff_secs"`      // Floor for the adaptive minimum-age threshold
	MaxBackoffSecs     int    `toml:"max_backoff_secs"`      // Ceiling for the adaptive minimum-age threshold
	BackoffWindowSize  int    `toml:"backoff_window_size"`   // Sliding window size for the backoff controller
	MinClipDurationSec int    `toml:"min_clip_duration_sec"` // Decoded clips at or below this duration are discarded
	ReaperIntervalSecs int    `toml:"reaper_interval_secs"`  // Orphaned-audio reaper interval in seconds
}

// TranscriptionConfig contains settings for the external transcription engine
type TranscriptionConfig struct {
	EnginePath  string `toml:"engine_path"`     // Path to the transcription engine executable
	Model       string `toml:"model"`           // Model size passed to the engine (e.g., "medium")
	Language    string `toml:"language"`        // Primary language for transcription (e.g., "en")
	TimeoutSecs int    `toml:"timeout_seconds"` // Maximum time to wait for the engine to exit
}

// AlertsConfig contains alert matching and notification configuration
type AlertsConfig struct {
	Environment      string `toml:"environment"`        // Environment tag included in alert messages (e.g., "PROD")
	MaxEventAgeSecs  int    `toml:"max_event_age_secs"` // Events older than this are never alerted on
	SMTPServer       string `toml:"smtp_server"`        // SMTP server hostname
	SMTPPort         int    `toml:"smtp_port"`          // SMTP server port
	SMTPUser         string `toml:"smtp_user"`          // SMTP username
	SMTPPassword     string `toml:"smtp_password"`      // SMTP password (prefer ALERT_SMTP_PASSWORD env)
	FromEmail        string `toml:"from_email"`         // From address for email alerts
	TwilioAccountSID string `toml:"twilio_account_sid"` // Twilio account SID (prefer TWILIO_ACCOUNT_SID env)
	TwilioAuthToken  string `toml:"twilio_auth_token"`  // Twilio auth token (prefer TWILIO_AUTH_TOKEN env)
	TwilioFromNumber string `toml:"twilio_from_number"` // From number for SMS alerts
}

// SubscribersConfig contains subscriber preference store configuration
type SubscribersConfig struct {
	DataDir string `toml:"data_dir"` // Directory holding subscribers.json / subscribers.dev.json
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLiteBasePath string `toml:"sqlite_base_path"` // Base path for SQLite database files
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" or "console"
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,
		"configs/config.toml",
		"config.toml",
	}

	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyEnvOverrides lets deployment environment variables override file
// values. Secrets (SMTP, Twilio) are expected to arrive this way.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ALERT_ENV"); v != "" {
		c.Alerts.Environment = v
	}
	if v := os.Getenv("ALERT_SMTP_SERVER"); v != "" {
		c.Alerts.SMTPServer = v
	}
	if v := os.Getenv("ALERT_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Alerts.SMTPPort = port
		}
	}
	if v := os.Getenv("ALERT_SMTP_USER"); v != "" {
		c.Alerts.SMTPUser = v
	}
	if v := os.Getenv("ALERT_SMTP_PASSWORD"); v != "" {
		c.Alerts.SMTPPassword = v
	}
	if v := os.Getenv("ALERT_FROM_EMAIL"); v != "" {
		c.Alerts.FromEmail = v
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		c.Alerts.TwilioAccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.Alerts.TwilioAuthToken = v
	}
	if v := os.Getenv("TWILIO_FROM_NUMBER"); v != "" {
		c.Alerts.TwilioFromNumber = v
	}
	if v := os.Getenv("AUDIO_DAY"); v != "" {
		c.Pipeline.StartDay = v
	}
	if v := os.Getenv("ALERT_MAX_BACKOFF_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxBackoffSecs = secs
		}
	}
	if v := os.Getenv("ALERT_MAX_SEGMENT_AGE_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxSegmentAgeSecs = secs
		}
	}
}

// Validate validates the configuration and applies defaults
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	// Validate feed config
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed base_url is required")
	}
	if c.Feed.FeedID == "" {
		return fmt.Errorf("feed feed_id is required")
	}
	if c.Feed.SegmentDurationSecs <= 0 {
		c.Feed.SegmentDurationSecs = 60
	}
	if c.Feed.RequestTimeoutSecs <= 0 {
		c.Feed.RequestTimeoutSecs = 30
	}
	if c.Feed.MaxRetries <= 0 {
		c.Feed.MaxRetries = 5
	}
	if c.Feed.RetryBaseDelayMs <= 0 {
		c.Feed.RetryBaseDelayMs = 2000
	}

	// Validate pipeline config
	if c.Pipeline.AudioDir == "" {
		c.Pipeline.AudioDir = "data/audio"
	}
	if c.Pipeline.TranscriptDir == "" {
		c.Pipeline.TranscriptDir = "data/transcripts"
	}
	if c.Pipeline.StartDay != "" {
		if _, err := time.Parse("2006-01-02", c.Pipeline.StartDay); err != nil {
			return fmt.Errorf("invalid start_day %q (must be YYYY-MM-DD): %w", c.Pipeline.StartDay, err)
		}
	}
	if c.Pipeline.MaxSegmentAgeSecs <= 0 {
		c.Pipeline.MaxSegmentAgeSecs = 3600
	}
	if c.Pipeline.PollIntervalSecs <= 0 {
		c.Pipeline.PollIntervalSecs = 5
	}
	if c.Pipeline.HeartbeatSecs <= 0 {
		c.Pipeline.HeartbeatSecs = 300
	}
	if c.Pipeline.MinBackoffSecs <= 0 {
		c.Pipeline.MinBackoffSecs = 180
	}
	if c.Pipeline.MaxBackoffSecs <= 0 {
		c.Pipeline.MaxBackoffSecs = 900
	}
	if c.Pipeline.MaxBackoffSecs < c.Pipeline.MinBackoffSecs {
		return fmt.Errorf("max_backoff_secs (%d) must be >= min_backoff_secs (%d)",
			c.Pipeline.MaxBackoffSecs, c.Pipeline.MinBackoffSecs)
	}
	if c.Pipeline.BackoffWindowSize <= 0 {
		c.Pipeline.BackoffWindowSize = 10
	}
	if c.Pipeline.MinClipDurationSec <= 0 {
		c.Pipeline.MinClipDurationSec = 3
	}
	if c.Pipeline.ReaperIntervalSecs <= 0 {
		c.Pipeline.ReaperIntervalSecs = 3600
	}

	// Validate transcription config
	if c.Transcription.EnginePath == "" {
		c.Transcription.EnginePath = "whisper-ctranslate2"
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "medium"
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "en"
	}
	if c.Transcription.TimeoutSecs <= 0 {
		c.Transcription.TimeoutSecs = 300
	}

	// Validate alerts config. Missing SMTP/Twilio credentials are not fatal:
	// the affected channel is disabled at send time.
	if c.Alerts.Environment == "" {
		c.Alerts.Environment = "DEV"
	}
	if c.Alerts.MaxEventAgeSecs <= 0 {
		c.Alerts.MaxEventAgeSecs = 3600
	}
	if c.Alerts.SMTPPort == 0 {
		c.Alerts.SMTPPort = 587
	}
	if c.Alerts.FromEmail == "" {
		c.Alerts.FromEmail = c.Alerts.SMTPUser
	}

	// Validate subscribers config
	if c.Subscribers.DataDir == "" {
		c.Subscribers.DataDir = "data/subscribers"
	}

	// Validate storage config
	if c.Storage.SQLiteBasePath == "" {
		c.Storage.SQLiteBasePath = "data/db"
	}

	// Validate logging config
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
