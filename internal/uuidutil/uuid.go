// Package uuidutil generates and converts the time-ordered UUIDs used as
// the system's only external file handle. External identifiers are the
// canonical 36-character hyphenated form; storage is the raw 16-byte
// form (MySQL BINARY(16)).
package uuidutil

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a fresh v7 (time-ordered) UUID so that created_at
// ordering and primary-key ordering broadly agree, per spec.
func New() (uuid.UUID, error) {
	return uuid.NewV7()
}

// Parse accepts either the canonical 36-char hyphenated form or the bare
// 32-char hex form, matching the tolerance the original FilesRepository
// and UrlCacheRepository lookups gave callers.
func Parse(s string) (uuid.UUID, error) {
	switch len(s) {
	case 36, 32:
		u, err := uuid.Parse(s)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("invalid file_uuid %q: %w", s, err)
		}
		return u, nil
	default:
		return uuid.UUID{}, fmt.Errorf("invalid file_uuid %q: unexpected length %d", s, len(s))
	}
}

// Bytes returns the 16-byte big-endian encoding suitable for a
// BINARY(16) column.
func Bytes(u uuid.UUID) []byte {
	b := u[:]
	out := make([]byte, 16)
	copy(out, b)
	return out
}

// FromBytes decodes a 16-byte BINARY(16) column value back into a UUID.
func FromBytes(b []byte) (uuid.UUID, error) {
	return uuid.FromBytes(b)
}
