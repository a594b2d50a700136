package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Gateway invokes the external transcription engine as a subprocess and reads
// back the JSON artifact it writes. The engine is a black box: any non-zero
// exit, or a zero exit without the expected artifact, is a failure. The audio
// file is never deleted here so a failed segment can be inspected by hand.
type Gateway struct {
	config        config.TranscriptionConfig
	transcriptDir string
	logger        *logger.Logger
}

// NewGateway creates a new transcription gateway
func NewGateway(cfg config.TranscriptionConfig, transcriptDir string, logger *logger.Logger) *Gateway {
	return &Gateway{
		config:        cfg,
		transcriptDir: transcriptDir,
		logger:        logger.Named("transcribe"),
	}
}

// TranscriptPath returns the artifact path the engine is expected to produce
// for the given audio file.
func (g *Gateway) TranscriptPath(audioPath string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(g.transcriptDir, base+".json")
}

// Transcribe runs the engine on the given audio file and returns the parsed
// transcript artifact.
func (g *Gateway) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	transcriptPath := g.TranscriptPath(audioPath)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutSecs)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.config.EnginePath, audioPath,
		"--model", g.config.Model,
		"--language", g.config.Language,
		"--output_format", "json",
		"--output_dir", g.transcriptDir,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g.logger.Info("Running transcription engine",
		logger.String("engine", g.config.EnginePath),
		logger.String("audio", audioPath))

	start := time.Now()
	if err := cmd.Run(); err != nil {
		g.logger.Error("Transcription engine failed",
			logger.String("audio", audioPath),
			logger.Error(err),
			logger.String("stdout", stdout.String()),
			logger.String("stderr", stderr.String()))
		return nil, fmt.Errorf("transcription engine failed for %s: %w", audioPath, err)
	}

	if _, err := os.Stat(transcriptPath); err != nil {
		g.logger.Error("Transcript artifact missing after engine exit",
			logger.String("audio", audioPath),
			logger.String("expected", transcriptPath),
			logger.String("stdout", stdout.String()),
			logger.String("stderr", stderr.String()))
		return nil, fmt.Errorf("transcript artifact %s not found after engine exit", transcriptPath)
	}

	transcript, err := LoadTranscript(transcriptPath)
	if err != nil {
		return nil, err
	}

	g.logger.Info("Transcription completed",
		logger.String("audio", audioPath),
		logger.String("transcript", transcriptPath),
		logger.Duration("elapsed", time.Since(start)))

	return &Result{TranscriptPath: transcriptPath, Transcript: transcript}, nil
}
