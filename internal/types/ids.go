package types

import (
	"time"

	"github.com/google/uuid"
)

// PolicyID is a UUIDv7 policy identifier.
type PolicyID string

// NewPolicyID generates a UUIDv7 policy identifier.
// Panics on clock regression (uuid.Must).
func NewPolicyID() PolicyID {
	return PolicyID(uuid.Must(uuid.NewV7()).String())
}

// ParsePolicyID validates and converts a string to PolicyID.
func ParsePolicyID(s string) (PolicyID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", ErrInvalidPolicyID
	}
	return PolicyID(s), nil
}

// PolicyIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs.
func PolicyIDTime(id PolicyID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
