package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Reaper removes audio files that never produced a transcript. It runs on
// its own timer, independent of the acquisition loop; the only coordination
// between the two is file presence, which is safe because the loop always
// writes the transcript before it considers a segment complete.
type Reaper struct {
	audioDir      string
	transcriptDir string
	interval      time.Duration
	logger        *logger.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewReaper creates a new orphaned-audio reaper
func NewReaper(audioDir, transcriptDir string, interval time.Duration, logger *logger.Logger) *Reaper {
	return &Reaper{
		audioDir:      audioDir,
		transcriptDir: transcriptDir,
		interval:      interval,
		logger:        logger.Named("reaper"),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background reaper loop.
func (r *Reaper) Start() {
	r.logger.Info("Starting orphan reaper", logger.Duration("interval", r.interval))
	r.wg.Add(1)
	go r.run()
}

// Stop stops the reaper and waits for it to finish.
func (r *Reaper) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("Orphan reaper stopped")
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Sweep()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopCh:
			return
		}
	}
}

// Sweep deletes every audio file lacking a same-named transcript. An
// individual delete failure is logged and does not stop the sweep.
func (r *Reaper) Sweep() {
	transcripts, err := os.ReadDir(r.transcriptDir)
	if err != nil {
		r.logger.Error("Failed to list transcript directory", logger.String("dir", r.transcriptDir), logger.Error(err))
		return
	}
	transcribed := make(map[string]bool)
	for _, entry := range transcripts {
		if strings.HasSuffix(entry.Name(), ".json") {
			transcribed[strings.TrimSuffix(entry.Name(), ".json")] = true
		}
	}

	audio, err := os.ReadDir(r.audioDir)
	if err != nil {
		r.logger.Error("Failed to list audio directory", logger.String("dir", r.audioDir), logger.Error(err))
		return
	}

	deleted := 0
	for _, entry := range audio {
		name := entry.Name()
		if !strings.HasSuffix(name, ".mp3") {
			continue
		}
		if transcribed[strings.TrimSuffix(name, ".mp3")] {
			continue
		}
		path := filepath.Join(r.audioDir, name)
		if err := os.Remove(path); err != nil {
			r.logger.Warn("Failed to delete orphaned audio", logger.String("path", path), logger.Error(err))
			continue
		}
		deleted++
		r.logger.Info("Deleted orphaned audio", logger.String("path", path))
	}

	if deleted == 0 {
		r.logger.Debug("No orphaned audio files found")
	}
}
