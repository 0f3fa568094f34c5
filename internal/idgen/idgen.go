// Package idgen mints attendance record IDs.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RecordPrefix starts every attendance record ID.
const RecordPrefix = "ar-"

// alphabet leaves out 0, 1, i, l and o so IDs read back cleanly from a
// printed roll sheet.
const alphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const size = 12

// RecordID returns a fresh attendance record ID.
func RecordID() (string, error) {
	return New(RecordPrefix)
}

// New returns prefix followed by a random suffix.
func New(prefix string) (string, error) {
	suffix, err := nanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + suffix, nil
}
