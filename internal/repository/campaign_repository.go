package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	Update(c *model.Campaign) error
	Delete(id int) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, channel, status string) ([]*model.Campaign, int, error)

	UpdateStatus(campaignID int, status model.Status) error
	SetSentAt(campaignID int, at time.Time) error
	SetCounters(campaignID int, counts model.DeliveryCounts) error

	// DueScheduled returns scheduled campaigns whose scheduled time has
	// arrived; ListByStatus backs the stuck-campaign sweep.
	DueScheduled(now time.Time) ([]*model.Campaign, error)
	ListByStatus(status model.Status) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, message, channel, status, created_by, created_at, sent_at,
	scheduled_at, zip_codes, tag_ids, voice_recording_id,
	email_subject, email_html_content, email_plain_text_content,
	enforce_calling_hours, start_hour, end_hour, include_weekends,
	prevent_duplicate_messages,
	total_recipients, successful_deliveries, failed_deliveries, pending_deliveries`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.Message, &c.Channel, &c.Status, &c.CreatedBy, &c.CreatedAt, &c.SentAt,
		&c.ScheduledAt, pq.Array(&c.ZipCodes), pq.Array(&c.TagIDs), &c.VoiceRecordingID,
		&c.EmailSubject, &c.EmailHTMLContent, &c.EmailPlainTextContent,
		&c.EnforceCallingHours, &c.StartHour, &c.EndHour, &c.IncludeWeekends,
		&c.PreventDuplicateMessages,
		&c.TotalRecipients, &c.SuccessfulDeliveries, &c.FailedDeliveries, &c.PendingDeliveries,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	query := `
        INSERT INTO campaigns (name, message, channel, status, created_by, created_at,
            scheduled_at, zip_codes, tag_ids, voice_recording_id,
            email_subject, email_html_content, email_plain_text_content,
            enforce_calling_hours, start_hour, end_hour, include_weekends,
            prevent_duplicate_messages)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.Name, c.Message, c.Channel, c.Status, c.CreatedBy, c.CreatedAt,
		c.ScheduledAt, pq.Array(c.ZipCodes), pq.Array(c.TagIDs), c.VoiceRecordingID,
		c.EmailSubject, c.EmailHTMLContent, c.EmailPlainTextContent,
		c.EnforceCallingHours, c.StartHour, c.EndHour, c.IncludeWeekends,
		c.PreventDuplicateMessages,
	).Scan(&c.ID)
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	query := `
        UPDATE campaigns
        SET name=$1, message=$2, channel=$3, scheduled_at=$4, zip_codes=$5, tag_ids=$6,
            voice_recording_id=$7, email_subject=$8, email_html_content=$9,
            email_plain_text_content=$10, enforce_calling_hours=$11, start_hour=$12,
            end_hour=$13, include_weekends=$14, prevent_duplicate_messages=$15
        WHERE id=$16
    `
	_, err := r.DB.Exec(query,
		c.Name, c.Message, c.Channel, c.ScheduledAt, pq.Array(c.ZipCodes), pq.Array(c.TagIDs),
		c.VoiceRecordingID, c.EmailSubject, c.EmailHTMLContent,
		c.EmailPlainTextContent, c.EnforceCallingHours, c.StartHour,
		c.EndHour, c.IncludeWeekends, c.PreventDuplicateMessages,
		c.ID,
	)
	return err
}

func (r *CampaignRepository) Delete(id int) error {
	_, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, id)
	return err
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status model.Status) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET status=$1 WHERE id=$2`, status, campaignID)
	return err
}

func (r *CampaignRepository) SetSentAt(campaignID int, at time.Time) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET sent_at=$1 WHERE id=$2`, at, campaignID)
	return err
}

func (r *CampaignRepository) SetCounters(campaignID int, counts model.DeliveryCounts) error {
	query := `
        UPDATE campaigns
        SET total_recipients=$1, successful_deliveries=$2, failed_deliveries=$3, pending_deliveries=$4
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, counts.Total, counts.Sent, counts.Failed, counts.Pending, campaignID)
	return err
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if channel != "" {
		query += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	argPosCount := 1
	if channel != "" {
		countQuery += fmt.Sprintf(" AND channel=$%d", argPosCount)
		argsCount = append(argsCount, channel)
		argPosCount++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPosCount)
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) DueScheduled(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status=$1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
        ORDER BY scheduled_at ASC`
	return r.queryCampaigns(query, model.StatusScheduled, now)
}

func (r *CampaignRepository) ListByStatus(status model.Status) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 ORDER BY id ASC`
	return r.queryCampaigns(query, status)
}

func (r *CampaignRepository) queryCampaigns(query string, args ...interface{}) ([]*model.Campaign, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
