// Package system provides the wall clock used for run timing and artifact dates.
package system

import "time"

// Clock implements harvest.Clock using time.Now in UTC.
type Clock struct{}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
