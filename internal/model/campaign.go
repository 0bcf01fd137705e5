// internal/model/campaign.go
package model

import "time"

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelRoboCall Channel = "robocall"
	ChannelEmail    Channel = "email"
)

// UsesPhone reports whether the channel delivers to a phone number.
func (c Channel) UsesPhone() bool {
	return c == ChannelSMS || c == ChannelRoboCall
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSealed    Status = "sealed"
)

// Terminal reports whether no further sends can happen from this status
// without an explicit retry command.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusSealed:
		return true
	}
	return false
}

type Campaign struct {
	ID        int        `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Message   string     `db:"message" json:"message"`
	Channel   Channel    `db:"channel" json:"channel"`
	Status    Status     `db:"status" json:"status"`
	CreatedBy int        `db:"created_by" json:"created_by"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	SentAt    *time.Time `db:"sent_at" json:"sent_at,omitempty"`

	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`

	// Audience filter. A voter matches if it lives in any listed ZIP or
	// carries any listed tag.
	ZipCodes []string `db:"zip_codes" json:"zip_codes"`
	TagIDs   []int64  `db:"tag_ids" json:"tag_ids"`

	// Channel payload. RoboCall uses the recording when set, otherwise
	// Message is read as the call script. Email ignores Message.
	VoiceRecordingID      *int   `db:"voice_recording_id" json:"voice_recording_id,omitempty"`
	EmailSubject          string `db:"email_subject" json:"email_subject,omitempty"`
	EmailHTMLContent      string `db:"email_html_content" json:"email_html_content,omitempty"`
	EmailPlainTextContent string `db:"email_plain_text_content" json:"email_plain_text_content,omitempty"`

	EnforceCallingHours bool `db:"enforce_calling_hours" json:"enforce_calling_hours"`
	StartHour           int  `db:"start_hour" json:"start_hour"`
	EndHour             int  `db:"end_hour" json:"end_hour"`
	IncludeWeekends     bool `db:"include_weekends" json:"include_weekends"`

	PreventDuplicateMessages bool `db:"prevent_duplicate_messages" json:"prevent_duplicate_messages"`

	TotalRecipients      int `db:"total_recipients" json:"total_recipients"`
	SuccessfulDeliveries int `db:"successful_deliveries" json:"successful_deliveries"`
	FailedDeliveries     int `db:"failed_deliveries" json:"failed_deliveries"`
	PendingDeliveries    int `db:"pending_deliveries" json:"pending_deliveries"`
}

// Pristine reports whether the campaign has never materialized recipients;
// only a pristine draft may have its content or targeting edited.
func (c *Campaign) Pristine() bool {
	return c.Status == StatusDraft && c.TotalRecipients == 0
}
