package pipeline

import (
	"fmt"
	"time"
)

// Clock enumerates candidate segment timestamps over a day at a fixed stride.
// It is only consulted during the sweep phase; the poll phase discovers
// segments through the latest-segment endpoint instead.
type Clock struct {
	start  time.Time
	stride time.Duration
}

// NewClock creates a segment clock starting at UTC midnight of startDay
// (YYYY-MM-DD), or of the current day when startDay is empty.
func NewClock(startDay string, stride time.Duration, now time.Time) (*Clock, error) {
	var start time.Time
	if startDay != "" {
		parsed, err := time.Parse("2006-01-02", startDay)
		if err != nil {
			return nil, fmt.Errorf("invalid start day %q (must be YYYY-MM-DD): %w", startDay, err)
		}
		start = parsed
	} else {
		start = now.UTC().Truncate(24 * time.Hour)
	}

	return &Clock{start: start, stride: stride}, nil
}

// Start returns the first timestamp the clock will produce.
func (c *Clock) Start() time.Time {
	return c.start
}

// Iterator returns a restartable iterator over segment timestamps from the
// clock's start up to (but excluding) the given end time.
func (c *Clock) Iterator(end time.Time) *ClockIterator {
	return &ClockIterator{next: c.start, end: end, stride: c.stride}
}

// ClockIterator walks segment timestamps lazily in ascending order.
type ClockIterator struct {
	next   time.Time
	end    time.Time
	stride time.Duration
}

// Next returns the next segment unixtime. The second return value is false
// once the sequence is exhausted.
func (it *ClockIterator) Next() (int64, bool) {
	if !it.next.Before(it.end) {
		return 0, false
	}
	ts := it.next.Unix()
	it.next = it.next.Add(it.stride)
	return ts, true
}
