// internal/model/delivery_record.go
package model

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryRecord tracks one send attempt to one recipient of one campaign.
// Records are append-only: a retry cycle inserts fresh rows for previously
// failed recipients instead of rewriting history, so the latest row per
// (campaign, voter) is the authoritative outcome.
type DeliveryRecord struct {
	ID         int            `db:"id" json:"id"`
	CampaignID int            `db:"campaign_id" json:"campaign_id"`
	VoterID    int            `db:"voter_id" json:"voter_id"`
	Address    string         `db:"address" json:"address"` // phone or email, per channel
	Status     DeliveryStatus `db:"status" json:"status"`
	LastError  string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// DeliveryCounts is the latest-record-per-voter aggregate for a campaign.
type DeliveryCounts struct {
	Total   int
	Sent    int
	Failed  int
	Pending int
}
