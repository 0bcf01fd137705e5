package repository

import "database/sql"

// VoiceRecordingRepositoryInterface resolves robocall recording references.
// Recording upload/storage is outside the engine; it only needs existence.
type VoiceRecordingRepositoryInterface interface {
	Exists(id int) (bool, error)
}

type VoiceRecordingRepository struct {
	DB *sql.DB
}

func (r *VoiceRecordingRepository) Exists(id int) (bool, error) {
	var one int
	err := r.DB.QueryRow(`SELECT 1 FROM voice_recordings WHERE id=$1`, id).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ VoiceRecordingRepositoryInterface = (*VoiceRecordingRepository)(nil)
