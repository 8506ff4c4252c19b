// Package oid validates and parses the object-id arguments accepted on the
// command line (--mapping, --default-mapping): 40-character lowercase hex
// strings naming a Git object.
package oid

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// ErrMalformed is returned when a string is not a 40-character lowercase hex
// object id.
var ErrMalformed = fmt.Errorf("malformed object id")

// Parse validates s as a 40-character lowercase hex SHA-1 and returns the
// corresponding hash. It deliberately rejects short hashes and uppercase hex:
// the command line contract requires full, canonical ids.
func Parse(s string) (plumbing.Hash, error) {
	if len(s) != 40 {
		return plumbing.ZeroHash, fmt.Errorf("%q: %w: want 40 hex characters, got %d", s, ErrMalformed, len(s))
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return plumbing.ZeroHash, fmt.Errorf("%q: %w: not lowercase hex", s, ErrMalformed)
		}
	}
	return plumbing.NewHash(s), nil
}
