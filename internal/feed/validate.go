package feed

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tcolgate/mp3"
)

// MinAudioBytes is the smallest payload accepted as a real audio segment.
// Anything smaller is an upstream stub or error body.
const MinAudioBytes = 2048

// htmlSignatures are prefixes of error pages the upstream has been observed
// returning with a 200 status. Checked case-insensitively against the start
// of the payload.
var htmlSignatures = []string{
	"<html",
	"<!doctype",
	"<head",
	"<body",
	"no video",
}

// ValidatePayload checks that a downloaded response body is plausibly an MP3
// audio segment. The upstream sometimes serves HTML error pages with a 200
// status, so the content type alone cannot be trusted.
func ValidatePayload(contentType string, payload []byte) error {
	if !strings.HasPrefix(contentType, "audio/") {
		return fmt.Errorf("response is not audio (Content-Type: %q)", contentType)
	}

	head := strings.ToLower(string(payload[:min(len(payload), 512)]))
	for _, sig := range htmlSignatures {
		if strings.Contains(head, sig) {
			return fmt.Errorf("response looks like an HTML error page (matched %q)", sig)
		}
	}

	if len(payload) < MinAudioBytes {
		return fmt.Errorf("payload too small to be an audio segment (%d bytes)", len(payload))
	}

	if !hasMP3Magic(payload) {
		return fmt.Errorf("payload does not start with a valid MP3 frame signature")
	}

	return nil
}

// hasMP3Magic reports whether the payload begins with an ID3 tag or an MP3
// frame sync (0xFF followed by a byte with the top three bits set).
func hasMP3Magic(payload []byte) bool {
	if bytes.HasPrefix(payload, []byte("ID3")) {
		return true
	}
	return len(payload) > 2 && payload[0] == 0xFF && payload[1]&0xE0 == 0xE0
}

// ClipDuration decodes the MP3 payload frame by frame and returns the total
// audio duration. Decode errors after at least one valid frame are treated as
// end of stream so that truncated tail frames do not fail the whole clip.
func ClipDuration(payload []byte) (time.Duration, error) {
	decoder := mp3.NewDecoder(bytes.NewReader(payload))

	var total time.Duration
	var frame mp3.Frame
	frames := 0
	skipped := 0
	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if err == io.EOF || frames > 0 {
				break
			}
			return 0, fmt.Errorf("failed to decode MP3 frame: %w", err)
		}
		total += frame.Duration()
		frames++
	}

	return total, nil
}

func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}
