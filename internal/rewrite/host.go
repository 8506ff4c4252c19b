package rewrite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/apenwarr/git-submerge/internal/objects"
	"github.com/apenwarr/git-submerge/internal/walk"
)

// ErrUnresolvableDefault is the internal-consistency failure that arises
// if the default mapping's target was supposed to have been validated by
// the Precondition Checker already: reaching this means that check was
// skipped or its result was stale.
var ErrUnresolvableDefault = errors.New("rewrite: default mapping has no rewritten submodule commit")

// RewriteHost is the Host History Rewriter. For every host
// commit reachable from hostTip it splices in the real submodule tree
// wherever a gitlink is present, and grafts an extra parent edge into the
// rewritten submodule DAG at every commit where the submodule pointer
// advanced. Must run after RewriteSubmodule and ScanDangling found no
// dangling references.
func (rw *Rewriter) RewriteHost(hostTip plumbing.Hash) error {
	order, err := walk.ReverseTopo(rw.Host.Repo, hostTip)
	if err != nil {
		return fmt.Errorf("rewrite host: %w", err)
	}

	path := strings.Join(rw.SubPath, "/")

	for _, h := range order {
		c, err := rw.Host.Commit(h)
		if err != nil {
			return fmt.Errorf("rewrite host: %w", err)
		}
		tree, err := rw.Host.Tree(c.TreeHash)
		if err != nil {
			return fmt.Errorf("rewrite host: %w", err)
		}

		entry, err := rw.Host.EntryAtPath(tree, path)
		if errors.Is(err, objects.ErrNotFound) {
			rw.M.Insert(h, h)
			continue
		}
		if err != nil {
			return fmt.Errorf("rewrite host: %w", err)
		}

		pOriginal := entry.Hash

		p := pOriginal
		if mapped, ok := rw.UserMap[p]; ok {
			p = mapped
		}
		var q plumbing.Hash
		if rewritten, ok := rw.M.Get(p); ok {
			q = rewritten
		} else {
			if rw.DefaultMapping == nil {
				return fmt.Errorf("rewrite host: commit %s: pointer %s unresolvable and no default mapping set", h, p)
			}
			rewritten, ok := rw.M.Get(*rw.DefaultMapping)
			if !ok {
				return fmt.Errorf("rewrite host: commit %s: %w", h, ErrUnresolvableDefault)
			}
			q = rewritten
		}

		R, err := rw.Host.Commit(q)
		if err != nil {
			return fmt.Errorf("rewrite host: rewritten submodule commit %s: %w", q, err)
		}
		subEntry, err := rw.subtreeEntry(R.TreeHash, path)
		if err != nil {
			return fmt.Errorf("rewrite host: subtree for rewritten submodule commit %s: %w", q, err)
		}

		newTreeID, err := rw.Host.ReplaceAtPath(c.TreeHash, rw.SubPath, object.TreeEntry{
			Name: rw.SubPath[len(rw.SubPath)-1],
			Mode: filemode.Dir,
			Hash: subEntry,
		})
		if err != nil {
			return fmt.Errorf("rewrite host: splice tree for %s: %w", h, err)
		}

		advanced, err := rw.advanced(c, pOriginal, path)
		if err != nil {
			return fmt.Errorf("rewrite host: %w", err)
		}

		parents := make([]plumbing.Hash, 0, len(c.ParentHashes)+1)
		for _, parent := range c.ParentHashes {
			parents = append(parents, rw.M.MustGet(parent))
		}
		if advanced {
			parents = append(parents, q)
		}

		newHash, err := rw.Host.WriteCommit(newTreeID, parents, c.Author, c.Committer, c.Message)
		if err != nil {
			return fmt.Errorf("rewrite host: write commit for %s: %w", h, err)
		}
		if advanced {
			rw.Infof("graft: %.10s -> submodule %.10s\n", newHash, q)
		}
		rw.M.Insert(h, newHash)
	}
	return nil
}

// subtreeEntry returns the id of the tree at path within root, i.e. the
// relocated submodule's own root tree, for splicing into a host tree.
func (rw *Rewriter) subtreeEntry(root plumbing.Hash, path string) (plumbing.Hash, error) {
	tree, err := rw.Host.Tree(root)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	e, err := rw.Host.EntryAtPath(tree, path)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return e.Hash, nil
}

// advanced determines whether c's original submodule pointer differs from
// the pointer held by every one of c's parents: the defining property of
// an "update", covering both a single-parent bump and a merge where two
// branches already agree on the new value. It must be computed against
// the pre-substitution pointer, since advancement is a fact about the
// input topology, not about the user/default mapping tables.
func (rw *Rewriter) advanced(c *object.Commit, pOriginal plumbing.Hash, path string) (bool, error) {
	for _, parentHash := range c.ParentHashes {
		parent, err := rw.Host.Commit(parentHash)
		if err != nil {
			return false, err
		}
		parentTree, err := rw.Host.Tree(parent.TreeHash)
		if err != nil {
			return false, err
		}
		entry, err := rw.Host.EntryAtPath(parentTree, path)
		if errors.Is(err, objects.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if entry.Hash == pOriginal {
			return false, nil
		}
	}
	return true, nil
}
