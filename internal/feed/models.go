package feed

import (
	"encoding/json"
	"fmt"
)

// LatestSegment is the response of the latest-segment endpoint. The upstream
// is loose about its shape: it returns either a JSON object carrying the
// timestamp under "unixtime" or "timestamp", or a bare integer.
type LatestSegment struct {
	Unixtime int64
}

// UnmarshalJSON accepts all known response shapes of the latest endpoint.
func (l *LatestSegment) UnmarshalJSON(data []byte) error {
	var bare int64
	if err := json.Unmarshal(data, &bare); err == nil {
		l.Unixtime = bare
		return nil
	}

	var obj struct {
		Unixtime  *int64 `json:"unixtime"`
		Timestamp *int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unexpected latest-segment response shape: %w", err)
	}

	switch {
	case obj.Unixtime != nil:
		l.Unixtime = *obj.Unixtime
	case obj.Timestamp != nil:
		l.Unixtime = *obj.Timestamp
	default:
		return fmt.Errorf("latest-segment response carries no unixtime or timestamp field")
	}
	return nil
}
