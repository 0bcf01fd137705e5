// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed campaign content or targeting before
// anything is persisted.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func NewValidation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AuthorizationError rejects a caller whose role or ownership does not
// permit the operation. No state changes before this is raised.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

func NewAuthorization(msg string) error {
	return &AuthorizationError{Msg: msg}
}

func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// NotFoundError covers unknown campaigns, recordings and tags.
type NotFoundError struct {
	Kind string
	ID   int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Kind, e.ID)
}

func NewCampaignNotFound(id int) error  { return &NotFoundError{Kind: "campaign", ID: id} }
func NewRecordingNotFound(id int) error { return &NotFoundError{Kind: "voice recording", ID: id} }
func NewOptOutNotFound(id int) error    { return &NotFoundError{Kind: "opt-out", ID: id} }

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// ErrCycleRunning signals a dispatch trigger for a campaign that already
// has an active cycle. Callers treat it as a no-op, never a failure.
var ErrCycleRunning = errors.New("a send cycle is already running for this campaign")
