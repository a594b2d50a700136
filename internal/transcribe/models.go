package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
)

// Transcript is the JSON artifact the transcription engine writes next to a
// processed segment. Only the full text is required; segment timings are kept
// when present.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment is one timed slice of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result describes a completed transcription.
type Result struct {
	TranscriptPath string
	Transcript     *Transcript
}

// LoadTranscript reads and parses a transcript artifact from disk.
func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript %s: %w", path, err)
	}

	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", path, err)
	}

	return &transcript, nil
}
