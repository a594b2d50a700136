package alerts

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scanwatch/scanwatch/internal/subscribers"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// Matcher decides whether a transcript triggers an alert for a subscriber and
// dispatches the composed message. Outbound failures are logged and swallowed:
// one subscriber's broken channel must never block matching for the rest.
type Matcher struct {
	environment string
	maxEventAge time.Duration
	email       EmailSender
	sms         SMSSender
	logger      *logger.Logger
	now         func() time.Time
}

// NewMatcher creates a new alert matcher
func NewMatcher(environment string, maxEventAge time.Duration, email EmailSender, sms SMSSender, logger *logger.Logger) *Matcher {
	return &Matcher{
		environment: environment,
		maxEventAge: maxEventAge,
		email:       email,
		sms:         sms,
		logger:      logger.Named("alert-matcher"),
		now:         time.Now,
	}
}

// Vocabulary builds the matching vocabulary for a subscriber: keywords in
// declared order, then zones in declared order, deduplicated
// case-insensitively keeping the first occurrence. The declared order makes
// first-match selection deterministic.
func Vocabulary(sub *subscribers.Subscriber) []string {
	terms := make([]string, 0, len(sub.Keywords)+len(sub.Zones))
	seen := make(map[string]bool)
	for _, list := range [][]string{sub.Keywords, sub.Zones} {
		for _, term := range list {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			key := strings.ToLower(term)
			if seen[key] {
				continue
			}
			seen[key] = true
			terms = append(terms, term)
		}
	}
	return terms
}

// CheckAndTrigger matches the transcript against the subscriber's vocabulary
// and, on the first hit, dispatches an alert on the requested channel.
// Returns nil when nothing was dispatched: no match, a stale event, or a
// subscriber without the channel's contact method. eventUnixtime of zero
// falls back to the current time.
func (m *Matcher) CheckAndTrigger(transcript string, sub *subscribers.Subscriber, channel Channel, eventUnixtime int64) *Dispatch {
	matched := ""
	lowered := strings.ToLower(transcript)
	for _, term := range Vocabulary(sub) {
		if strings.Contains(lowered, strings.ToLower(term)) {
			matched = term
			break
		}
	}
	if matched == "" {
		return nil
	}

	eventTime := m.now().UTC()
	if eventUnixtime > 0 {
		eventTime = time.Unix(eventUnixtime, 0).UTC()
	}

	// Freshness gate: never replay stale matches after a restart or backfill.
	age := m.now().Sub(eventTime)
	if age > m.maxEventAge {
		m.logger.Info("Suppressing alert for stale event",
			logger.Int64("unixtime", eventUnixtime),
			logger.Duration("age", age),
			logger.String("matched_term", matched))
		return nil
	}

	msg := m.compose(matched, transcript, eventTime, sub.Timezone)

	// An absent contact method is a valid configuration, not an error.
	var recipient string
	var sendErr error
	switch {
	case channel == ChannelEmail && sub.Email != "":
		recipient = sub.Email
		sendErr = m.email.Send(recipient, msg.Subject(), msg.Body())
	case channel == ChannelSMS && sub.Phone != "":
		recipient = sub.Phone
		_, sendErr = m.sms.Send(recipient, msg.Body())
	default:
		return nil
	}

	if sendErr != nil {
		m.logger.Warn("Alert delivery failed",
			logger.String("channel", string(channel)),
			logger.String("recipient", recipient),
			logger.String("matched_term", matched),
			logger.Error(sendErr))
	}

	return &Dispatch{
		ID:          uuid.NewString(),
		Unixtime:    eventUnixtime,
		Channel:     channel,
		Recipient:   recipient,
		MatchedTerm: matched,
		Delivered:   sendErr == nil,
		SentAt:      m.now().UTC(),
	}
}

// compose renders the alert message, translating the event time into the
// subscriber's timezone when one resolves. A timezone error silently falls
// back to UTC; it must never block delivery.
func (m *Matcher) compose(matched, transcript string, eventTime time.Time, timezone string) *Message {
	zone := "UTC"
	rendered := eventTime
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err == nil {
			rendered = eventTime.In(loc)
			zone = timezone
		} else {
			m.logger.Debug("Failed to resolve subscriber timezone, using UTC",
				logger.String("timezone", timezone),
				logger.Error(err))
		}
	}

	return &Message{
		Environment: m.environment,
		EventTime:   rendered,
		EventZone:   zone,
		MatchedTerm: matched,
		Transcript:  transcript,
	}
}
