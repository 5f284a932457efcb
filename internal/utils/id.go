package utils

import "github.com/google/uuid"

// NewID returns a random (version 4) UUID string.
func NewID() string {
	return uuid.NewString()
}

// ParseID accepts any UUID form uuid.Parse does (uppercase, no dashes,
// braces, urn prefix) and returns it in the canonical lowercase form NewID uses.
func ParseID(s string) (string, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
