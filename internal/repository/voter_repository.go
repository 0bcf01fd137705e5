package repository

import (
	"database/sql"

	"github.com/grassrootshq/outreach-backend/internal/model"
)

// VoterRepositoryInterface is the engine's read-only view of the voter
// directory. Voter CRUD, import and geocoding live elsewhere.
type VoterRepositoryInterface interface {
	GetByID(id int) (*model.Voter, error)
	FindByZip(zip string) ([]model.Voter, error)
	FindByTag(tagID int64) ([]model.Voter, error)
	TagExists(tagID int64) (bool, error)
}

type VoterRepository struct {
	DB *sql.DB
}

const voterColumns = `id, first_name, last_name, phone, email, zip`

func (r *VoterRepository) GetByID(id int) (*model.Voter, error) {
	query := `SELECT ` + voterColumns + ` FROM voters WHERE id=$1`
	var v model.Voter
	err := r.DB.QueryRow(query, id).Scan(&v.ID, &v.FirstName, &v.LastName, &v.Phone, &v.Email, &v.Zip)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *VoterRepository) FindByZip(zip string) ([]model.Voter, error) {
	query := `SELECT ` + voterColumns + ` FROM voters WHERE zip=$1 ORDER BY id ASC`
	return r.queryVoters(query, zip)
}

func (r *VoterRepository) FindByTag(tagID int64) ([]model.Voter, error) {
	query := `
        SELECT ` + voterColumns + `
        FROM voters v
        JOIN voter_tags vt ON vt.voter_id = v.id
        WHERE vt.tag_id=$1
        ORDER BY v.id ASC
    `
	return r.queryVoters(query, tagID)
}

func (r *VoterRepository) TagExists(tagID int64) (bool, error) {
	var one int
	err := r.DB.QueryRow(`SELECT 1 FROM tags WHERE id=$1`, tagID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *VoterRepository) queryVoters(query string, args ...interface{}) ([]model.Voter, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	voters := []model.Voter{}
	for rows.Next() {
		var v model.Voter
		if err := rows.Scan(&v.ID, &v.FirstName, &v.LastName, &v.Phone, &v.Email, &v.Zip); err != nil {
			return nil, err
		}
		voters = append(voters, v)
	}
	return voters, rows.Err()
}

var _ VoterRepositoryInterface = (*VoterRepository)(nil)
