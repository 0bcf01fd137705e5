package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/grassrootshq/outreach-backend/internal/errors"
	"github.com/grassrootshq/outreach-backend/internal/model"
)

type OptOutRepositoryInterface interface {
	// Create upserts: at most one active opt-out per (phone, type).
	Create(o *model.OptOut) error
	Delete(id int) error
	List(offset, limit int) ([]model.OptOut, int, error)
	All() ([]model.OptOut, error)
	Stats() (map[string]int, error)

	// ActivePhones returns the set of normalized phone numbers suppressed
	// on the given channel ("all" entries subsume channel-specific ones).
	ActivePhones(channel model.Channel) (map[string]bool, error)
}

type OptOutRepository struct {
	DB *sql.DB
}

func (r *OptOutRepository) Create(o *model.OptOut) error {
	if o.OptedOutAt.IsZero() {
		o.OptedOutAt = time.Now()
	}
	query := `
        INSERT INTO opt_outs (phone_number, type, method, reason, voter_id, opted_out_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (phone_number, type)
        DO UPDATE SET method=EXCLUDED.method, reason=EXCLUDED.reason, opted_out_at=EXCLUDED.opted_out_at
        RETURNING id
    `
	return r.DB.QueryRow(query, o.PhoneNumber, o.Type, o.Method, o.Reason, o.VoterID, o.OptedOutAt).Scan(&o.ID)
}

func (r *OptOutRepository) Delete(id int) error {
	res, err := r.DB.Exec(`DELETE FROM opt_outs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewOptOutNotFound(id)
	}
	return nil
}

const optOutColumns = `id, phone_number, type, method, reason, voter_id, opted_out_at`

func (r *OptOutRepository) List(offset, limit int) ([]model.OptOut, int, error) {
	query := `SELECT ` + optOutColumns + ` FROM opt_outs ORDER BY opted_out_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.DB.Query(query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	optOuts, err := scanOptOuts(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM opt_outs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return optOuts, total, nil
}

func (r *OptOutRepository) All() ([]model.OptOut, error) {
	rows, err := r.DB.Query(`SELECT ` + optOutColumns + ` FROM opt_outs ORDER BY opted_out_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanOptOuts(rows)
}

func (r *OptOutRepository) Stats() (map[string]int, error) {
	rows, err := r.DB.Query(`SELECT type, COUNT(*) FROM opt_outs GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"total":                       0,
		string(model.OptOutAll):       0,
		string(model.OptOutSMS):       0,
		string(model.OptOutRoboCalls): 0,
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		stats[t] = n
		stats["total"] += n
	}
	return stats, rows.Err()
}

func (r *OptOutRepository) ActivePhones(channel model.Channel) (map[string]bool, error) {
	if !channel.UsesPhone() {
		return map[string]bool{}, nil
	}
	channelType := model.OptOutSMS
	if channel == model.ChannelRoboCall {
		channelType = model.OptOutRoboCalls
	}
	query := `SELECT phone_number FROM opt_outs WHERE type=$1 OR type=$2`
	rows, err := r.DB.Query(query, model.OptOutAll, channelType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	phones := map[string]bool{}
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, err
		}
		phones[phone] = true
	}
	return phones, rows.Err()
}

func scanOptOuts(rows *sql.Rows) ([]model.OptOut, error) {
	defer rows.Close()
	optOuts := []model.OptOut{}
	for rows.Next() {
		var o model.OptOut
		if err := rows.Scan(&o.ID, &o.PhoneNumber, &o.Type, &o.Method, &o.Reason, &o.VoterID, &o.OptedOutAt); err != nil {
			return nil, err
		}
		optOuts = append(optOuts, o)
	}
	return optOuts, rows.Err()
}

var _ OptOutRepositoryInterface = (*OptOutRepository)(nil)
