package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scanwatch/scanwatch/internal/alerts"
	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/internal/feed"
	"github.com/scanwatch/scanwatch/internal/storage/sqlite"
	"github.com/scanwatch/scanwatch/internal/subscribers"
	"github.com/scanwatch/scanwatch/internal/transcribe"
	"github.com/scanwatch/scanwatch/internal/websocket"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Fetcher downloads segment audio and discovers the newest segment.
type Fetcher interface {
	Download(ctx context.Context, unixtime int64) (string, error)
	Latest(ctx context.Context) (int64, error)
	AudioPath(unixtime int64) string
}

// Transcriber turns a local audio file into a transcript artifact.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcribe.Result, error)
	TranscriptPath(audioPath string) string
}

// SubscriberSource returns a fresh subscriber snapshot per match pass.
type SubscriberSource interface {
	Load() []subscribers.Subscriber
}

// HistoryStore records completed transcripts and alert dispatches.
type HistoryStore interface {
	StoreTranscript(record *sqlite.TranscriptRecord) (int64, error)
	StoreDispatch(d *alerts.Dispatch) error
}

// WebSocketServer defines the interface for a WebSocket server
type WebSocketServer interface {
	Broadcast(message *websocket.Message)
}

// Phase names reported by Status.
const (
	PhaseSweep = "sweep"
	PhasePoll  = "poll"
)

// Status is a point-in-time snapshot of the pipeline for the API.
type Status struct {
	Phase            string        `json:"phase"`
	BackoffThreshold time.Duration `json:"backoff_threshold"`
	ProcessedCount   int           `json:"processed_count"`
	LastUnixtime     int64         `json:"last_unixtime"`
}

// Service orchestrates segment acquisition: a historical sweep over the day's
// segments followed by a live poll for new ones. Segments move through
// download, transcription, alert matching, and cleanup strictly one at a
// time; all retry lives inside the fetcher.
type Service struct {
	fetcher     Fetcher
	transcriber Transcriber
	matcher     *alerts.Matcher
	subscribers SubscriberSource
	backoff     *Controller
	clock       *Clock
	history     HistoryStore
	wsServer    WebSocketServer
	cfg         config.PipelineConfig
	segmentSecs int

	logger *logger.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time

	// mu guards the fields below; the loop goroutine writes them while the
	// API reads snapshots through Status.
	mu           sync.Mutex
	processed    map[int64]bool
	phase        string
	lastUnixtime int64
}

// NewService creates the acquisition pipeline. history and wsServer may be
// nil; the pipeline then runs without persistence or live event streaming.
func NewService(
	fetcher Fetcher,
	transcriber Transcriber,
	matcher *alerts.Matcher,
	subscriberSource SubscriberSource,
	backoff *Controller,
	clock *Clock,
	history HistoryStore,
	wsServer WebSocketServer,
	cfg config.PipelineConfig,
	segmentSecs int,
	log *logger.Logger,
) *Service {
	return &Service{
		fetcher:     fetcher,
		transcriber: transcriber,
		matcher:     matcher,
		subscribers: subscriberSource,
		backoff:     backoff,
		clock:       clock,
		history:     history,
		wsServer:    wsServer,
		cfg:         cfg,
		segmentSecs: segmentSecs,
		processed:   make(map[int64]bool),
		logger:      log.Named("pipeline"),
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}
}

// Start launches the sweep-then-poll loop in the background.
func (s *Service) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.AudioDir, 0755); err != nil {
		return fmt.Errorf("failed to create audio dir: %w", err)
	}
	if err := os.MkdirAll(s.cfg.TranscriptDir, 0755); err != nil {
		return fmt.Errorf("failed to create transcript dir: %w", err)
	}

	s.seedProcessedSet()

	s.logger.Info("Starting acquisition pipeline",
		logger.Time("sweep_start", s.clock.Start()),
		logger.Int("segment_secs", s.segmentSecs),
		logger.Int("known_segments", s.processedCount()))

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop requests a clean shutdown and waits for in-flight segment work to
// finish.
func (s *Service) Stop() {
	s.logger.Info("Stopping acquisition pipeline")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Acquisition pipeline stopped")
}

// Status returns a snapshot of pipeline progress.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Phase:            s.phase,
		BackoffThreshold: s.backoff.Threshold(),
		ProcessedCount:   len(s.processed),
		LastUnixtime:     s.lastUnixtime,
	}
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	s.sweep(ctx)
	if s.stopped(ctx) {
		return
	}
	s.poll(ctx)
}

// seedProcessedSet reconstructs the processed set from the transcript
// directory. Transcript files are the durable completion markers.
func (s *Service) seedProcessedSet() {
	entries, err := os.ReadDir(s.cfg.TranscriptDir)
	if err != nil {
		s.logger.Warn("Failed to list transcript directory", logger.Error(err))
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "audio_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "audio_"), ".json"), 10, 64)
		if err != nil {
			continue
		}
		s.markProcessed(ts)
	}
}

// sweep catches up on the day's segments in timestamp order.
func (s *Service) sweep(ctx context.Context) {
	s.setPhase(PhaseSweep)
	s.logger.Info("Starting sweep", logger.Time("from", s.clock.Start()))

	it := s.clock.Iterator(s.now().UTC())
	for {
		if s.stopped(ctx) {
			return
		}
		ts, ok := it.Next()
		if !ok {
			break
		}

		if s.isProcessed(ts) || s.transcriptExists(ts) {
			s.markProcessed(ts)
			continue
		}

		age := s.now().UTC().Sub(time.Unix(ts, 0))
		if age > time.Duration(s.cfg.MaxSegmentAgeSecs)*time.Second {
			s.logger.Debug("Skipping segment past maximum age",
				logger.Int64("unixtime", ts),
				logger.Duration("age", age))
			continue
		}
		if age < s.backoff.Threshold() {
			s.logger.Debug("Deferring segment below backoff threshold",
				logger.Int64("unixtime", ts),
				logger.Duration("age", age),
				logger.Duration("threshold", s.backoff.Threshold()))
			continue
		}

		outcome := s.processSegment(ctx, ts, true)
		s.backoff.Record(outcome)
	}

	s.logger.Info("Sweep complete, entering polling mode")
}

// poll watches the latest-segment endpoint for new work.
func (s *Service) poll(ctx context.Context) {
	s.setPhase(PhasePoll)

	ticker := time.NewTicker(time.Duration(s.cfg.PollIntervalSecs) * time.Second)
	defer ticker.Stop()

	heartbeat := time.Duration(s.cfg.HeartbeatSecs) * time.Second
	lastHeartbeat := s.now()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.now().Sub(lastHeartbeat) > heartbeat {
			s.logger.Info("Polling for new segments",
				logger.Duration("backoff_threshold", s.backoff.Threshold()),
				logger.Int("processed", s.processedCount()))
			lastHeartbeat = s.now()
		}

		latest, err := s.fetcher.Latest(ctx)
		if err != nil {
			s.logger.Warn("Failed to query latest segment", logger.Error(err))
			continue
		}
		if s.isProcessed(latest) {
			continue
		}

		age := s.now().UTC().Sub(time.Unix(latest, 0))
		if age < s.backoff.Threshold() {
			s.logger.Info("Latest segment too recent, deferring",
				logger.Int64("unixtime", latest),
				logger.Duration("age", age),
				logger.Duration("threshold", s.backoff.Threshold()))
			continue
		}

		s.logger.Info("New segment detected", logger.Int64("unixtime", latest))
		outcome := s.processSegment(ctx, latest, false)
		s.backoff.Record(outcome)
	}
}

// processSegment drives one segment through download, transcription, alert
// matching, and cleanup. The returned outcome feeds the backoff controller.
// Failures are terminal for this run: the segment is marked processed so the
// loop cannot spin on it.
func (s *Service) processSegment(ctx context.Context, unixtime int64, sweepPhase bool) Outcome {
	s.setLastUnixtime(unixtime)

	audioPath, err := s.fetcher.Download(ctx, unixtime)
	if err != nil {
		s.markProcessed(unixtime)
		s.removeAudio(s.fetcher.AudioPath(unixtime))
		return OutcomeInvalid
	}

	// Clips of a few seconds are key-up noise, not traffic; drop them
	// before paying for transcription.
	if !sweepPhase {
		if short, dur := s.isShortClip(audioPath); short {
			s.logger.Info("Discarding short clip",
				logger.Int64("unixtime", unixtime),
				logger.Duration("duration", dur))
			s.markProcessed(unixtime)
			s.removeAudio(audioPath)
			return OutcomeValid
		}
	}

	result, err := s.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		s.markProcessed(unixtime)
		if sweepPhase {
			s.removeAudio(audioPath)
		} else {
			// Kept for inspection; the reaper reclaims it later.
			s.logger.Warn("Transcription failed, audio retained",
				logger.Int64("unixtime", unixtime),
				logger.String("audio", audioPath))
		}
		return OutcomeInvalid
	}

	s.markProcessed(unixtime)
	text := result.Transcript.Text

	s.recordTranscript(unixtime, text)
	s.runAlertPass(text, unixtime)
	s.removeAudio(audioPath)

	return OutcomeValid
}

// runAlertPass matches one transcript against every subscriber. The snapshot
// is loaded fresh so preference edits apply to the next segment without a
// restart. One subscriber's failure never blocks the rest.
func (s *Service) runAlertPass(text string, unixtime int64) {
	subs := s.subscribers.Load()
	for i := range subs {
		sub := &subs[i]

		channel := alerts.ChannelEmail
		if sub.AlertType == string(alerts.ChannelSMS) {
			channel = alerts.ChannelSMS
		}

		dispatch := s.matcher.CheckAndTrigger(text, sub, channel, unixtime)
		if dispatch == nil {
			continue
		}

		if s.history != nil {
			if err := s.history.StoreDispatch(dispatch); err != nil {
				s.logger.Error("Failed to record alert dispatch", logger.Error(err))
			}
		}
		if s.wsServer != nil {
			s.wsServer.Broadcast(&websocket.Message{
				Type: websocket.MessageTypeAlert,
				Data: map[string]any{
					"unixtime":     dispatch.Unixtime,
					"channel":      string(dispatch.Channel),
					"matched_term": dispatch.MatchedTerm,
					"delivered":    dispatch.Delivered,
				},
			})
		}
	}
}

func (s *Service) recordTranscript(unixtime int64, text string) {
	if s.history != nil {
		record := &sqlite.TranscriptRecord{
			Unixtime:     unixtime,
			DurationSecs: s.segmentSecs,
			Text:         text,
			CreatedAt:    s.now().UTC(),
		}
		if _, err := s.history.StoreTranscript(record); err != nil {
			s.logger.Error("Failed to record transcript", logger.Error(err))
		}
	}
	if s.wsServer != nil {
		s.wsServer.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeTranscription,
			Data: map[string]any{
				"unixtime": unixtime,
				"text":     text,
			},
		})
	}
}

// isShortClip reports whether the decoded audio duration is at or below the
// configured minimum. Decode failures fall through to transcription; the
// gateway surfaces a better error for genuinely broken audio.
func (s *Service) isShortClip(audioPath string) (bool, time.Duration) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return false, 0
	}
	dur, err := feed.ClipDuration(data)
	if err != nil {
		return false, 0
	}
	return dur <= time.Duration(s.cfg.MinClipDurationSec)*time.Second, dur
}

func (s *Service) transcriptExists(unixtime int64) bool {
	path := filepath.Join(s.cfg.TranscriptDir, fmt.Sprintf("audio_%d.json", unixtime))
	_, err := os.Stat(path)
	return err == nil
}

func (s *Service) removeAudio(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to delete audio file", logger.String("path", path), logger.Error(err))
		}
		return
	}
	s.logger.Debug("Deleted audio file", logger.String("path", path))
}

func (s *Service) stopped(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Service) markProcessed(ts int64) {
	s.mu.Lock()
	s.processed[ts] = true
	s.mu.Unlock()
}

func (s *Service) isProcessed(ts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[ts]
}

func (s *Service) processedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func (s *Service) setPhase(phase string) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *Service) setLastUnixtime(ts int64) {
	s.mu.Lock()
	s.lastUnixtime = ts
	s.mu.Unlock()
}
