package alerts

import (
	"fmt"
	"time"
)

// Channel identifies an outbound notification channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one composed alert, built once per (segment, subscriber, match).
type Message struct {
	Environment string
	EventTime   time.Time
	EventZone   string // rendered zone label, "UTC" when fallback applied
	MatchedTerm string
	Transcript  string
}

// Subject renders the alert subject line.
func (m *Message) Subject() string {
	return fmt.Sprintf("Scanner Monitor Alert [%s]", m.Environment)
}

// Body renders the plain-text alert body.
func (m *Message) Body() string {
	var timeLine string
	if m.EventZone == "UTC" {
		timeLine = fmt.Sprintf("Event Time (UTC): %s", m.EventTime.Format("2006-01-02 15:04:05 UTC"))
	} else {
		timeLine = fmt.Sprintf("Event Time: %s", m.EventTime.Format("2006-01-02 15:04:05 MST"))
	}
	return fmt.Sprintf("Environment: %s\n%s\nKeyword/Zone: '%s' detected in transcript:\n%s",
		m.Environment, timeLine, m.MatchedTerm, m.Transcript)
}

// Dispatch records the outcome of one alert delivery attempt.
type Dispatch struct {
	ID          string    `json:"id"`
	Unixtime    int64     `json:"unixtime"`
	Channel     Channel   `json:"channel"`
	Recipient   string    `json:"recipient"`
	MatchedTerm string    `json:"matched_term"`
	Delivered   bool      `json:"delivered"`
	SentAt      time.Time `json:"sent_at"`
}
