package services

import "time"

// Clock returns the current time. A nil Clock means wall-clock UTC.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
