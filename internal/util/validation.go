package util

import (
	"unicode"

	"github.com/google/uuid"
)

const maxIDLength = 64

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsValidID accepts caller-supplied identifiers that fit the id columns.
func IsValidID(s string) bool {
	if s == "" || len(s) > maxIDLength {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
