package subscribers

import "time"

// Subscriber is one alert recipient's preference record. Zones and keywords
// together form the matching vocabulary; either list may be empty. Timezone
// is an optional IANA zone name used to render event times in alerts.
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Zones     []string  `json:"zones"`
	Keywords  []string  `json:"keywords"`
	Timezone  string    `json:"timezone,omitempty"`
	AlertType string    `json:"alert_type,omitempty"` // "email" (default) or "sms"
	CreatedAt time.Time `json:"created_at"`
}

// HasContact reports whether the subscriber can be reached on any channel.
func (s *Subscriber) HasContact() bool {
	return s.Email != "" || s.Phone != ""
}
