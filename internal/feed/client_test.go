package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

func testFeedConfig(baseURL string) config.FeedConfig {
	return config.FeedConfig{
		BaseURL:             baseURL,
		FeedID:              "rid-test",
		SegmentDurationSecs: 60,
		RequestTimeoutSecs:  5,
		MaxRetries:          3,
		RetryBaseDelayMs:    1,
	}
}

func validAudio() []byte {
	payload := make([]byte, 4096)
	copy(payload, "ID3")
	return payload
}

func serveAudio(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func TestClientDownload(t *testing.T) {
	t.Run("writes validated audio to disk", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/download/rid-test/1756700000", r.URL.Path)
			assert.Equal(t, "60", r.URL.Query().Get("t"))
			serveAudio(w, validAudio())
		}))
		defer server.Close()

		client := NewClient(testFeedConfig(server.URL), t.TempDir(), logger.NewNop())
		path, err := client.Download(context.Background(), 1756700000)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, data, 4096)
	})

	t.Run("retries on HTTP 500 and recovers", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			serveAudio(w, validAudio())
		}))
		defer server.Close()

		client := NewClient(testFeedConfig(server.URL), t.TempDir(), logger.NewNop())
		_, err := client.Download(context.Background(), 1756700000)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(testFeedConfig(server.URL), t.TempDir(), logger.NewNop())
		_, err := client.Download(context.Background(), 1756700000)
		require.Error(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("does not retry other status codes", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(testFeedConfig(server.URL), t.TempDir(), logger.NewNop())
		_, err := client.Download(context.Background(), 1756700000)
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled context aborts the retry ladder", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		cfg := testFeedConfig(server.URL)
		cfg.RetryBaseDelayMs = 60000

		ctx, cancel := context.WithCancel(context.Background())
		client := NewClient(cfg, t.TempDir(), logger.NewNop())

		done := make(chan error, 1)
		go func() {
			_, err := client.Download(ctx, 1756700000)
			done <- err
		}()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("download did not stop after cancellation")
		}
		assert.LessOrEqual(t, attempts, 1)
	})

	t.Run("rejects HTML body without retrying", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte("<html><body>no video</body></html>"))
		}))
		defer server.Close()

		audioDir := t.TempDir()
		client := NewClient(testFeedConfig(server.URL), audioDir, logger.NewNop())
		_, err := client.Download(context.Background(), 1756700000)
		require.Error(t, err)
		assert.Equal(t, 1, attempts)

		// No partial file may be left behind.
		_, statErr := os.Stat(client.AudioPath(1756700000))
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestClientLatest(t *testing.T) {
	t.Run("object response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/latest/rid-test", r.URL.Path)
			w.Write([]byte(`{"unixtime": 1756700060}`))
		}))
		defer server.Close()

		client := NewClient(testFeedConfig(server.URL), t.TempDir(), logger.NewNop())
		ts, err := client.Latest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1756700060), ts)
	})

	t.Run("bare integer response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`1756700120`))
		}))
		defer server.Close()

		client := NewClient(testFeedConfig(server.URL), t.TempDir(), logger.NewNop())
		ts, err := client.Latest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1756700120), ts)
	})

	t.Run("zero timestamp is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"unixtime": 0}`))
		}))
		defer server.Close()

		client := NewClient(testFeedConfig(server.URL), t.TempDir(), logger.NewNop())
		_, err := client.Latest(context.Background())
		assert.Error(t, err)
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(testFeedConfig(server.URL), t.TempDir(), logger.NewNop())
		_, err := client.Latest(context.Background())
		assert.Error(t, err)
	})
}
