package repository

import (
	"database/sql"

	"github.com/lib/pq"

	"github.com/grassrootshq/outreach-backend/internal/model"
)

type DeliveryRepositoryInterface interface {
	// BulkCreate inserts one pending record per recipient for the campaign.
	BulkCreate(campaignID int, recipients []model.Recipient) error
	ListPending(campaignID, limit int) ([]*model.DeliveryRecord, error)
	MarkSent(id int) error
	MarkFailed(id int, lastError string) error

	// FailAllPending flips every pending record of the campaign to failed
	// and returns how many were flipped. Backs forceStop.
	FailAllPending(campaignID int, reason string) (int, error)

	// Counts aggregates the latest record per voter, so a retry row
	// supersedes the failed row it replaces.
	Counts(campaignID int) (model.DeliveryCounts, error)

	// FailedRecipients returns recipients whose latest record is failed.
	FailedRecipients(campaignID int) ([]model.Recipient, error)

	// VotersSentMessage returns voter ids with a sent record for any
	// campaign carrying exactly this message on this channel. Backs
	// duplicate suppression.
	VotersSentMessage(channel model.Channel, message string) (map[int]bool, error)
}

type DeliveryRepository struct {
	DB *sql.DB
}

func (r *DeliveryRepository) BulkCreate(campaignID int, recipients []model.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(pq.CopyIn("delivery_records", "campaign_id", "voter_id", "address", "status"))
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, rec := range recipients {
		if _, err := stmt.Exec(campaignID, rec.VoterID, rec.Address, model.DeliveryPending); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		tx.Rollback()
		return err
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *DeliveryRepository) ListPending(campaignID, limit int) ([]*model.DeliveryRecord, error) {
	query := `
        SELECT id, campaign_id, voter_id, address, status, last_error, created_at, updated_at
        FROM delivery_records
        WHERE campaign_id=$1 AND status=$2
        ORDER BY id ASC
        LIMIT $3
    `
	rows, err := r.DB.Query(query, campaignID, model.DeliveryPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.DeliveryRecord{}
	for rows.Next() {
		var rec model.DeliveryRecord
		if err := rows.Scan(&rec.ID, &rec.CampaignID, &rec.VoterID, &rec.Address,
			&rec.Status, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *DeliveryRepository) MarkSent(id int) error {
	query := `UPDATE delivery_records SET status=$1, last_error='', updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, model.DeliverySent, id)
	return err
}

func (r *DeliveryRepository) MarkFailed(id int, lastError string) error {
	query := `UPDATE delivery_records SET status=$1, last_error=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, model.DeliveryFailed, lastError, id)
	return err
}

func (r *DeliveryRepository) FailAllPending(campaignID int, reason string) (int, error) {
	query := `
        UPDATE delivery_records
        SET status=$1, last_error=$2, updated_at=NOW()
        WHERE campaign_id=$3 AND status=$4
    `
	res, err := r.DB.Exec(query, model.DeliveryFailed, reason, campaignID, model.DeliveryPending)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *DeliveryRepository) Counts(campaignID int) (model.DeliveryCounts, error) {
	// Latest record per voter wins: a retry row supersedes the failed row
	// for the same recipient while the audit trail keeps both.
	query := `
        SELECT status, COUNT(*)
        FROM (
            SELECT DISTINCT ON (voter_id) status
            FROM delivery_records
            WHERE campaign_id=$1
            ORDER BY voter_id, id DESC
        ) latest
        GROUP BY status
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return model.DeliveryCounts{}, err
	}
	defer rows.Close()

	var counts model.DeliveryCounts
	for rows.Next() {
		var status model.DeliveryStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.DeliveryCounts{}, err
		}
		switch status {
		case model.DeliverySent:
			counts.Sent = n
		case model.DeliveryFailed:
			counts.Failed = n
		case model.DeliveryPending:
			counts.Pending = n
		}
		counts.Total += n
	}
	return counts, rows.Err()
}

func (r *DeliveryRepository) FailedRecipients(campaignID int) ([]model.Recipient, error) {
	query := `
        SELECT voter_id, address
        FROM (
            SELECT DISTINCT ON (voter_id) voter_id, address, status
            FROM delivery_records
            WHERE campaign_id=$1
            ORDER BY voter_id, id DESC
        ) latest
        WHERE status=$2
        ORDER BY voter_id ASC
    `
	rows, err := r.DB.Query(query, campaignID, model.DeliveryFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rec model.Recipient
		if err := rows.Scan(&rec.VoterID, &rec.Address); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *DeliveryRepository) VotersSentMessage(channel model.Channel, message string) (map[int]bool, error) {
	query := `
        SELECT DISTINCT d.voter_id
        FROM delivery_records d
        JOIN campaigns c ON c.id = d.campaign_id
        WHERE d.status=$1 AND c.channel=$2 AND c.message=$3
    `
	rows, err := r.DB.Query(query, model.DeliverySent, channel, message)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	voters := map[int]bool{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		voters[id] = true
	}
	return voters, rows.Err()
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
