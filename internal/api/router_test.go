package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwatch/scanwatch/internal/alerts"
	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/internal/feed"
	"github.com/scanwatch/scanwatch/internal/pipeline"
	"github.com/scanwatch/scanwatch/internal/storage/sqlite"
	"github.com/scanwatch/scanwatch/internal/subscribers"
	"github.com/scanwatch/scanwatch/internal/transcribe"
	"github.com/scanwatch/scanwatch/internal/websocket"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

func newTestRouter(t *testing.T) (http.Handler, *sqlite.Store) {
	t.Helper()
	log := logger.NewNop()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	subscriberStore, err := subscribers.NewStore(t.TempDir(), "DEV", log)
	require.NoError(t, err)

	wsServer := websocket.NewServer(log)

	cfg := &config.Config{}
	pipelineCfg := config.PipelineConfig{
		AudioDir:          t.TempDir(),
		TranscriptDir:     t.TempDir(),
		MaxSegmentAgeSecs: 3600,
		MinBackoffSecs:    180,
		MaxBackoffSecs:    900,
		BackoffWindowSize: 10,
	}

	backoff := pipeline.NewController(180*time.Second, 900*time.Second, 10, log)
	clock, err := pipeline.NewClock("", time.Minute, time.Now().UTC())
	require.NoError(t, err)

	matcher := alerts.NewMatcher("DEV", time.Hour, alerts.NewSMTPSender(config.AlertsConfig{}, log), alerts.NewTwilioSender(config.AlertsConfig{}, log), log)
	feedClient := feed.NewClient(config.FeedConfig{BaseURL: "http://localhost", FeedID: "rid-test", SegmentDurationSecs: 60, RequestTimeoutSecs: 1, MaxRetries: 1, RetryBaseDelayMs: 1}, pipelineCfg.AudioDir, log)
	gateway := transcribe.NewGateway(config.TranscriptionConfig{EnginePath: "true", TimeoutSecs: 1}, pipelineCfg.TranscriptDir, log)

	svc := pipeline.NewService(feedClient, gateway, matcher, subscriberStore, backoff, clock, store, wsServer, pipelineCfg, 60, log)

	return NewRouter(svc, store, subscriberStore, cfg, log, wsServer).Routes(), store
}

func TestStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(180), body["backoff_threshold_secs"])
	assert.Equal(t, float64(0), body["processed_count"])
}

func TestTranscriptionsEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	_, err := store.StoreTranscript(&sqlite.TranscriptRecord{
		Unixtime:     1756700000,
		DurationSecs: 60,
		Text:         "segment text",
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count       int                        `json:"count"`
		Transcripts []*sqlite.TranscriptRecord `json:"transcripts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Transcripts, 1)
	assert.Equal(t, "segment text", body.Transcripts[0].Text)
}

func TestAlertsEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	require.NoError(t, store.StoreDispatch(&alerts.Dispatch{
		ID: "d-1", Unixtime: 1756700000, Channel: alerts.ChannelEmail,
		Recipient: "a@example.com", MatchedTerm: "fire", Delivered: true, SentAt: time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matched_term":"fire"`)
}

func TestSubscriberEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("upsert then list", func(t *testing.T) {
		payload := `{"email":"a@example.com","keywords":["fire"],"zones":["zone 4"],"alert_type":"email"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/subscribers/", strings.NewReader(payload)))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/subscribers/", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Count       int                      `json:"count"`
			Subscribers []subscribers.Subscriber `json:"subscribers"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, 1, body.Count)
		assert.Equal(t, "a@example.com", body.Subscribers[0].Email)
		assert.NotEmpty(t, body.Subscribers[0].ID)
	})

	t.Run("rejects payload without email", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/subscribers/", strings.NewReader(`{"keywords":["fire"]}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unknown alert type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/subscribers/",
			strings.NewReader(`{"email":"a@example.com","alert_type":"pager"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete removes the subscriber", func(t *testing.T) {
		payload := `{"email":"gone@example.com","keywords":["flood"]}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/subscribers/", strings.NewReader(payload)))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/subscribers/gone@example.com", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/subscribers/gone@example.com", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
