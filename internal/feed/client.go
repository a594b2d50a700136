package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Client handles HTTP requests to the scanner feed
type Client struct {
	config     config.FeedConfig
	audioDir   string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new scanner feed client
func NewClient(cfg config.FeedConfig, audioDir string, logger *logger.Logger) *Client {
	return &Client{
		config:   cfg,
		audioDir: audioDir,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
		},
		logger: logger.Named("feed-client"),
	}
}

// AudioPath returns the deterministic on-disk path for a segment's audio.
func (c *Client) AudioPath(unixtime int64) string {
	return filepath.Join(c.audioDir, fmt.Sprintf("audio_%d.mp3", unixtime))
}

// Download fetches one segment's audio, validates it, and writes it to the
// audio directory. It retries on HTTP 500 and network-level errors with
// exponential backoff; any other non-200 status and any validation failure
// are definitive, and no partial file is left behind.
func (c *Client) Download(ctx context.Context, unixtime int64) (string, error) {
	url := fmt.Sprintf("%s/download/%s/%d?t=%d", c.config.BaseURL, c.config.FeedID, unixtime, c.config.SegmentDurationSecs)
	audioPath := c.AudioPath(unixtime)

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := c.retryDelay(attempt)
			c.logger.Warn("Retrying segment download",
				logger.Int64("unixtime", unixtime),
				logger.Int("attempt", attempt),
				logger.Int("max_attempts", c.config.MaxRetries),
				logger.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		payload, retryable, err := c.fetchOnce(ctx, url)
		if err == nil {
			if err := os.WriteFile(audioPath, payload, 0644); err != nil {
				return "", fmt.Errorf("failed to write audio file %s: %w", audioPath, err)
			}
			c.logger.Info("Downloaded audio segment",
				logger.Int64("unixtime", unixtime),
				logger.String("path", audioPath),
				logger.Int("bytes", len(payload)))
			return audioPath, nil
		}

		lastErr = err
		if !retryable {
			c.logger.Error("Segment download failed",
				logger.Int64("unixtime", unixtime),
				logger.String("url", url),
				logger.Error(err))
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	c.logger.Error("Segment download exhausted retries",
		logger.Int64("unixtime", unixtime),
		logger.String("url", url),
		logger.Int("attempts", c.config.MaxRetries),
		logger.Error(lastErr))
	return "", fmt.Errorf("download failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}

// fetchOnce performs a single download attempt. The second return value
// reports whether the failure may be retried.
func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusInternalServerError {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("upstream returned HTTP 500")
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	// The upstream already answered 200, so a malformed body is not worth
	// retrying within this attempt. The outer poll cycle may come back to it.
	if err := ValidatePayload(resp.Header.Get("Content-Type"), payload); err != nil {
		return nil, false, err
	}

	return payload, false, nil
}

// retryDelay computes the exponential backoff for the given attempt with
// +/-20% jitter.
func (c *Client) retryDelay(attempt int) time.Duration {
	base := time.Duration(c.config.RetryBaseDelayMs) * time.Millisecond
	backoff := base * time.Duration(1<<uint(attempt-2))
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(backoff) * jitter)
}

// Latest queries the latest-segment endpoint and returns the newest available
// segment timestamp.
func (c *Client) Latest(ctx context.Context) (int64, error) {
	url := fmt.Sprintf("%s/latest/%s", c.config.BaseURL, c.config.FeedID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("latest segment query returned status %d", resp.StatusCode)
	}

	var latest LatestSegment
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return 0, fmt.Errorf("failed to decode latest segment response: %w", err)
	}
	if latest.Unixtime <= 0 {
		return 0, fmt.Errorf("latest segment response carries no usable timestamp")
	}

	return latest.Unixtime, nil
}
