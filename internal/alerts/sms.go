package alerts

import (
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

// SMSSender sends one alert SMS and returns the provider message ID.
type SMSSender interface {
	Send(to, body string) (string, error)
}

// TwilioSender delivers SMS through the Twilio REST API.
type TwilioSender struct {
	cfg    config.AlertsConfig
	client *twilio.RestClient
	logger *logger.Logger
}

// NewTwilioSender creates a Twilio SMS sender. The client is only built when
// credentials are present; otherwise Send reports the channel unconfigured.
func NewTwilioSender(cfg config.AlertsConfig, logger *logger.Logger) *TwilioSender {
	s := &TwilioSender{
		cfg:    cfg,
		logger: logger.Named("sms-sender"),
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		s.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		})
	}
	return s
}

// Send submits one SMS. Returns the Twilio message SID on success.
func (s *TwilioSender) Send(to, body string) (string, error) {
	if s.client == nil || s.cfg.TwilioFromNumber == "" {
		return "", fmt.Errorf("sms channel not configured (missing Twilio credentials or from number)")
	}
	if to == "" {
		return "", fmt.Errorf("missing recipient phone number")
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.cfg.TwilioFromNumber)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}

	s.logger.Info("SMS alert sent", logger.String("to", to), logger.String("sid", sid))
	return sid, nil
}
