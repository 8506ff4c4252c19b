package rewrite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/apenwarr/git-submerge/internal/objects"
	"github.com/apenwarr/git-submerge/internal/walk"
)

// ScanDangling is the Dangling-Reference Scanner. It walks the
// host DAG from hostTip and reports, in first-seen order, every distinct
// submodule pointer that is neither in the (already-rewritten) submodule
// map, nor covered by a user mapping, nor rescuable by a default mapping.
// Must be run -- and must complete -- after RewriteSubmodule and before
// RewriteHost: it is what lets the Host Rewriter assume reference
// soundness unconditionally.
func (rw *Rewriter) ScanDangling(hostTip plumbing.Hash) ([]plumbing.Hash, error) {
	order, err := walk.ReverseTopo(rw.Host.Repo, hostTip)
	if err != nil {
		return nil, fmt.Errorf("scan dangling: %w", err)
	}

	path := strings.Join(rw.SubPath, "/")
	seen := make(map[plumbing.Hash]bool)
	var dangling []plumbing.Hash

	for _, h := range order {
		c, err := rw.Host.Commit(h)
		if err != nil {
			return nil, fmt.Errorf("scan dangling: %w", err)
		}
		tree, err := rw.Host.Tree(c.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("scan dangling: %w", err)
		}
		entry, err := rw.Host.EntryAtPath(tree, path)
		if errors.Is(err, objects.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan dangling: %w", err)
		}

		p := entry.Hash
		if seen[p] {
			continue
		}
		seen[p] = true

		_, inUserMap := rw.UserMap[p]
		if rw.M.Contains(p) || inUserMap || rw.DefaultMapping != nil {
			continue
		}
		dangling = append(dangling, p)
	}
	return dangling, nil
}
