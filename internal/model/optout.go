// internal/model/optout.go
package model

import (
	"strings"
	"time"
)

type OptOutType string

const (
	OptOutAll       OptOutType = "all"
	OptOutRoboCalls OptOutType = "robocalls"
	OptOutSMS       OptOutType = "sms"
)

// Covers reports whether an opt-out of this type suppresses sends on the
// given channel. A broad "all" opt-out subsumes the channel-specific ones.
// Email has no registry entry in this model; its unsubscribe flow lives
// with the email provider.
func (t OptOutType) Covers(ch Channel) bool {
	switch t {
	case OptOutAll:
		return ch.UsesPhone()
	case OptOutSMS:
		return ch == ChannelSMS
	case OptOutRoboCalls:
		return ch == ChannelRoboCall
	}
	return false
}

type OptOutMethod string

const (
	OptOutByPhone OptOutMethod = "phone"
	OptOutBySMS   OptOutMethod = "sms"
	OptOutManual  OptOutMethod = "manual"
	OptOutViaWeb  OptOutMethod = "web"
)

type OptOut struct {
	ID          int          `db:"id" json:"id"`
	PhoneNumber string       `db:"phone_number" json:"phone_number"` // E.164
	Type        OptOutType   `db:"type" json:"type"`
	Method      OptOutMethod `db:"method" json:"method"`
	Reason      string       `db:"reason" json:"reason,omitempty"`
	VoterID     *int         `db:"voter_id" json:"voter_id,omitempty"`
	OptedOutAt  time.Time    `db:"opted_out_at" json:"opted_out_at"`
}

// NormalizePhone canonicalizes a phone number to E.164. Ten-digit numbers
// are assumed US; eleven digits with a leading 1 likewise. Anything else
// keeps its digits behind a plus sign.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return "+" + digits
	}
}
