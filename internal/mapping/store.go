// Package mapping implements the rewrite's object-id mapping store: the
// total function M from old object identity (commit or tree) to its
// rewritten counterpart, built incrementally as the Submodule and Host
// rewriters run.
package mapping

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// Store maps old object ids to their rewritten counterparts. The
// Submodule Rewriter and Host Rewriter each insert disjoint key sets (tree
// ids and commit ids never collide across passes, since they're distinct
// content-addressed objects), so an Insert collision indicates a logic
// error in the caller, not a recoverable condition.
type Store struct {
	m map[plumbing.Hash]plumbing.Hash
}

// New returns an empty Store.
func New() *Store {
	return &Store{m: make(map[plumbing.Hash]plumbing.Hash)}
}

// Contains reports whether old is a key of the store.
func (s *Store) Contains(old plumbing.Hash) bool {
	_, ok := s.m[old]
	return ok
}

// Get returns the rewritten id for old, if present.
func (s *Store) Get(old plumbing.Hash) (plumbing.Hash, bool) {
	v, ok := s.m[old]
	return v, ok
}

// MustGet returns the rewritten id for old, panicking if it is absent.
// Callers use this where a reverse-topological walk guarantees every
// parent is already rewritten by the time a child is reached; a panic
// here means that guarantee was violated.
func (s *Store) MustGet(old plumbing.Hash) plumbing.Hash {
	v, ok := s.m[old]
	if !ok {
		panic(fmt.Sprintf("mapping: MustGet(%s): not found, but caller expected it already rewritten", old))
	}
	return v
}

// Insert records old -> new. It panics if old is already present: the two
// rewriters that populate a Store insert disjoint key sets by construction,
// so a collision here is a programming error, not a user-facing one.
func (s *Store) Insert(old, new plumbing.Hash) {
	if existing, ok := s.m[old]; ok {
		panic(fmt.Sprintf("mapping: Insert(%s -> %s): already mapped to %s", old, new, existing))
	}
	s.m[old] = new
}

// Len returns the number of entries recorded so far.
func (s *Store) Len() int {
	return len(s.m)
}
