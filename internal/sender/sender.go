// internal/sender/sender.go
package sender

import (
	"context"

	"github.com/grassrootshq/outreach-backend/internal/model"
)

// The engine never talks to a provider directly; the transport adapters
// behind these interfaces are supplied at wiring time.

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type VoiceSender interface {
	// PlaceRoboCall plays the recording when recordingID is set, otherwise
	// reads the script text-to-speech.
	PlaceRoboCall(ctx context.Context, to, script string, recordingID *int) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html, text string) error
}

// Registry bundles the per-channel senders the dispatcher switches over.
type Registry struct {
	SMS   SMSSender
	Voice VoiceSender
	Email EmailSender
}

// Send delivers one campaign message to one address on the campaign's
// channel. A non-nil error is a provider error for the delivery record.
func (r Registry) Send(ctx context.Context, c *model.Campaign, to string) error {
	switch c.Channel {
	case model.ChannelSMS:
		return r.SMS.SendSMS(ctx, to, c.Message)
	case model.ChannelRoboCall:
		return r.Voice.PlaceRoboCall(ctx, to, c.Message, c.VoiceRecordingID)
	default:
		return r.Email.SendEmail(ctx, to, c.EmailSubject, c.EmailHTMLContent, c.EmailPlainTextContent)
	}
}
