// internal/service/clock.go
package service

import "time"

// Clock supplies the current local civic time for the calling-hours gate.
// The timezone is the organization's operating timezone, not the
// recipient's.
type Clock interface {
	Now() time.Time
}

type civicClock struct {
	loc *time.Location
}

func (c civicClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// NewCivicClock builds a Clock fixed to the named IANA timezone.
func NewCivicClock(tz string) (Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return civicClock{loc: loc}, nil
}
