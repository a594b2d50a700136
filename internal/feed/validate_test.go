package feed

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mp3Payload(prefix []byte, size int) []byte {
	payload := make([]byte, size)
	copy(payload, prefix)
	return payload
}

func TestValidatePayload(t *testing.T) {
	t.Run("accepts ID3 tagged audio", func(t *testing.T) {
		payload := mp3Payload([]byte("ID3"), 4096)
		assert.NoError(t, ValidatePayload("audio/mpeg", payload))
	})

	t.Run("accepts raw frame sync", func(t *testing.T) {
		payload := mp3Payload([]byte{0xFF, 0xFB, 0x90}, 4096)
		assert.NoError(t, ValidatePayload("audio/mpeg", payload))
	})

	t.Run("rejects non-audio content type", func(t *testing.T) {
		payload := mp3Payload([]byte("ID3"), 4096)
		err := ValidatePayload("text/html", payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not audio")
	})

	t.Run("rejects HTML error page served as audio", func(t *testing.T) {
		payload := mp3Payload([]byte("<html><body>Server Error</body></html>"), 4096)
		err := ValidatePayload("audio/mpeg", payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTML error page")
	})

	t.Run("rejects HTML signature regardless of case", func(t *testing.T) {
		payload := mp3Payload([]byte("<!DOCTYPE html>"), 4096)
		assert.Error(t, ValidatePayload("audio/mpeg", payload))
	})

	t.Run("rejects no video stub body", func(t *testing.T) {
		payload := mp3Payload([]byte("No video found for this time"), 4096)
		assert.Error(t, ValidatePayload("audio/mpeg", payload))
	})

	t.Run("rejects undersized payload", func(t *testing.T) {
		payload := mp3Payload([]byte("ID3"), MinAudioBytes-1)
		err := ValidatePayload("audio/mpeg", payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too small")
	})

	t.Run("rejects payload with no MP3 magic", func(t *testing.T) {
		payload := bytes.Repeat([]byte{0x42}, 4096)
		err := ValidatePayload("audio/mpeg", payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MP3 frame signature")
	})

	t.Run("rejects frame sync with wrong second byte", func(t *testing.T) {
		// 0xFF must be followed by a byte with the top three bits set.
		payload := mp3Payload([]byte{0xFF, 0x1B}, 4096)
		assert.Error(t, ValidatePayload("audio/mpeg", payload))
	})
}

func TestLatestSegmentUnmarshal(t *testing.T) {
	t.Run("bare integer", func(t *testing.T) {
		var latest LatestSegment
		require.NoError(t, latest.UnmarshalJSON([]byte(`1756700000`)))
		assert.Equal(t, int64(1756700000), latest.Unixtime)
	})

	t.Run("unixtime field", func(t *testing.T) {
		var latest LatestSegment
		require.NoError(t, latest.UnmarshalJSON([]byte(`{"unixtime": 1756700060}`)))
		assert.Equal(t, int64(1756700060), latest.Unixtime)
	})

	t.Run("timestamp field", func(t *testing.T) {
		var latest LatestSegment
		require.NoError(t, latest.UnmarshalJSON([]byte(`{"timestamp": 1756700120}`)))
		assert.Equal(t, int64(1756700120), latest.Unixtime)
	})

	t.Run("object without timestamp fields", func(t *testing.T) {
		var latest LatestSegment
		assert.Error(t, latest.UnmarshalJSON([]byte(`{"status": "ok"}`)))
	})
}
