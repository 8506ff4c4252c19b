package rewrite

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/apenwarr/git-submerge/internal/walk"
)

// RewriteSubmodule is the Submodule History Rewriter. For
// every commit reachable from subTip, it relocates the commit's tree
// under SubPath and re-parents the commit onto already-rewritten parents,
// preserving author, committer and message bit-for-bit. Root commits
// and merge commits need no special casing: NestUnderPath and the
// reverse-topological walk handle both uniformly.
func (rw *Rewriter) RewriteSubmodule(subTip plumbing.Hash) error {
	order, err := walk.ReverseTopo(rw.Sub.Repo, subTip)
	if err != nil {
		return fmt.Errorf("rewrite submodule: %w", err)
	}

	for _, h := range order {
		c, err := rw.Sub.Commit(h)
		if err != nil {
			return fmt.Errorf("rewrite submodule: %w", err)
		}

		relocated, ok := rw.M.Get(c.TreeHash)
		if !ok {
			if err := rw.Host.CopyReachable(rw.Sub, c.TreeHash); err != nil {
				return fmt.Errorf("rewrite submodule: deliver objects for %s: %w", h, err)
			}
			relocated, err = rw.Host.NestUnderPath(rw.SubPath, c.TreeHash)
			if err != nil {
				return fmt.Errorf("rewrite submodule: relocate tree for %s: %w", h, err)
			}
			rw.M.Insert(c.TreeHash, relocated)
		}

		parents := make([]plumbing.Hash, len(c.ParentHashes))
		for i, p := range c.ParentHashes {
			// p was visited earlier in this same reverse-topological
			// walk, so it is already a key of M.
			parents[i] = rw.M.MustGet(p)
		}

		newHash, err := rw.Host.WriteCommit(relocated, parents, c.Author, c.Committer, c.Message)
		if err != nil {
			return fmt.Errorf("rewrite submodule: write commit for %s: %w", h, err)
		}
		rw.Debugf("  sub %.10s -> %.10s\n", h, newHash)
		rw.M.Insert(h, newHash)
	}
	return nil
}
