// Package walk provides the topological walker: a restartable traversal of
// a commit DAG in reverse-topological order (every parent emitted before
// any of its children), which is what lets both rewriters assume every
// parent is already rewritten by the time they reach a given commit.
package walk

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ReverseTopo returns every commit reachable from tip, in reverse-topological
// order: a commit never precedes any of its parents. Ties (commits that
// become eligible at the same time) are broken deterministically by hash,
// ascending, so the same tip always yields the same sequence -- required
// because the scanner and the host rewriter each walk the host DAG
// independently and must agree.
//
// The whole sequence is materialized up front rather than streamed, so the
// result can be consulted more than once without re-walking.
func ReverseTopo(repo *git.Repository, tip plumbing.Hash) ([]plumbing.Hash, error) {
	if tip.IsZero() {
		return nil, nil
	}

	// Discover the reachable set and each commit's parents within it.
	parentsOf := make(map[plumbing.Hash][]plumbing.Hash)
	pending := []plumbing.Hash{tip}
	for len(pending) > 0 {
		h := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, seen := parentsOf[h]; seen {
			continue
		}
		c, err := repo.CommitObject(h)
		if err != nil {
			return nil, fmt.Errorf("walk: commit %s: %w", h, err)
		}
		parentsOf[h] = append([]plumbing.Hash(nil), c.ParentHashes...)
		pending = append(pending, c.ParentHashes...)
	}

	// Kahn's algorithm over the edges parent -> child: a commit is ready
	// once every parent in the reachable set has already been emitted.
	children := make(map[plumbing.Hash][]plumbing.Hash)
	remaining := make(map[plumbing.Hash]int, len(parentsOf))
	for h, parents := range parentsOf {
		remaining[h] = len(parents)
		for _, p := range parents {
			children[p] = append(children[p], h)
		}
	}

	var ready []plumbing.Hash
	for h, n := range remaining {
		if n == 0 {
			ready = append(ready, h)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	order := make([]plumbing.Hash, 0, len(parentsOf))
	for len(ready) > 0 {
		h := ready[0]
		ready = ready[1:]
		order = append(order, h)

		var newlyReady []plumbing.Hash
		for _, child := range children[h] {
			remaining[child]--
			if remaining[child] == 0 {
				newlyReady = append(newlyReady, child)
			}
		}
		if len(newlyReady) == 0 {
			continue
		}
		sort.Slice(newlyReady, func(i, j int) bool { return less(newlyReady[i], newlyReady[j]) })
		ready = mergeSorted(ready, newlyReady)
	}

	if len(order) != len(parentsOf) {
		return nil, fmt.Errorf("walk: cycle detected reaching %s (emitted %d of %d reachable commits)", tip, len(order), len(parentsOf))
	}
	return order, nil
}

func less(a, b plumbing.Hash) bool {
	return a.String() < b.String()
}

// mergeSorted merges two already-sorted (by less) hash slices.
func mergeSorted(a, b []plumbing.Hash) []plumbing.Hash {
	out := make([]plumbing.Hash, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if less(a[i], b[j]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
