// internal/model/voter.go
package model

// Voter is the recipient projection the engine needs from the voter
// directory. Full voter records (addresses, history, geocodes) live
// outside the engine.
type Voter struct {
	ID        int    `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Phone     string `db:"phone" json:"phone"`
	Email     string `db:"email" json:"email"`
	Zip       string `db:"zip" json:"zip"`
}

// Address returns the voter's deliverable address for a channel, or ""
// when the voter cannot be reached on it.
func (v *Voter) Address(ch Channel) string {
	if ch.UsesPhone() {
		return v.Phone
	}
	return v.Email
}

// Recipient is one resolved audience member: the voter identity plus the
// concrete address the campaign's channel will deliver to.
type Recipient struct {
	VoterID int    `json:"voter_id"`
	Address string `json:"address"`
}

type Tag struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Color       string `db:"color" json:"color"`
	Description string `db:"description" json:"description"`
}
