// Package uuid generates run identifiers.
package uuid

import (
	"github.com/google/uuid"
)

// NewRunID returns a time-ordered UUIDv7 string so runs sort by start time in
// logs and the failure table. It falls back to a random v4 when the v7
// generator cannot read entropy.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
