// Package precheck implements the Precondition Checker: the checks that
// must all pass, with zero mutation, before any rewrite pass begins.
package precheck

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/apenwarr/git-submerge/internal/objects"
	"github.com/apenwarr/git-submerge/internal/walk"
)

// ErrSubmoduleNameCollision reports that the submodule's own root tree
// already contains an entry with the same name as the path segment it
// would be nested under; rather than silently shadow one or the other,
// that case is rejected outright.
var ErrSubmoduleNameCollision = errors.New("precheck: submodule root tree already has an entry named like its own mount directory")

// DirtyWorktreeError reports that the repository's worktree is not clean.
type DirtyWorktreeError struct {
	Entries []string
}

func (e *DirtyWorktreeError) Error() string {
	return fmt.Sprintf("working tree is not clean (%d entries); commit or stash first", len(e.Entries))
}

// InvalidMappingError reports user-mapping targets absent from the
// submodule's own history.
type InvalidMappingError struct {
	Missing []plumbing.Hash
}

func (e *InvalidMappingError) Error() string {
	return fmt.Sprintf("%d user-mapping target(s) not found in submodule history", len(e.Missing))
}

// CheckCleanWorktree verifies the host worktree has no staged or unstaged
// modifications and no dirty submodule checkouts. Untracked and ignored
// files are excluded from consideration, matching `git status` with
// untracked files turned off; submodule dirtiness is explicitly NOT
// excluded, since a dirty submodule checkout would silently diverge from
// the commit this tool is about to absorb.
func CheckCleanWorktree(repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	var dirty []string
	for path, fs := range status {
		if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
			// Untracked, not ignored-or-not: excluded per contract.
			continue
		}
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		dirty = append(dirty, path)
	}

	subs, err := wt.Submodules()
	if err != nil {
		return fmt.Errorf("submodules: %w", err)
	}
	for _, sub := range subs {
		st, err := sub.Status()
		if err != nil {
			return fmt.Errorf("submodule %s: status: %w", sub.Config().Name, err)
		}
		if st.Current != st.Expected {
			dirty = append(dirty, sub.Config().Path)
		}
	}

	if len(dirty) > 0 {
		return &DirtyWorktreeError{Entries: dirty}
	}
	return nil
}

// CheckUserMappings walks the submodule's DAG from subTip and verifies
// that every value in userMappings, and defaultMapping if present,
// resolves to a commit that actually exists in that history. A mapping
// target that isn't reachable would later leave the Host Rewriter unable
// to graft a valid parent edge.
func CheckUserMappings(subRepo *git.Repository, subTip plumbing.Hash, userMappings map[plumbing.Hash]plumbing.Hash, defaultMapping *plumbing.Hash) error {
	order, err := walk.ReverseTopo(subRepo, subTip)
	if err != nil {
		return fmt.Errorf("walk submodule history: %w", err)
	}

	present := make(map[plumbing.Hash]bool, len(order))
	for _, h := range order {
		present[h] = true
	}

	need := make(map[plumbing.Hash]bool)
	for _, target := range userMappings {
		need[target] = true
	}
	if defaultMapping != nil {
		need[*defaultMapping] = true
	}

	var missing []plumbing.Hash
	for target := range need {
		if !present[target] {
			missing = append(missing, target)
		}
	}
	if len(missing) > 0 {
		return &InvalidMappingError{Missing: missing}
	}
	return nil
}

// CheckSubmoduleNameCollision rejects a submodule whose own root tree, at
// subTip, already contains a top-level entry literally named mountName
// (the last path segment of the submodule's mount directory). Nesting such
// a tree under a directory of the same name would make that entry
// indistinguishable from the directory doing the nesting, so it is
// rejected up front rather than discovered mid-rewrite.
func CheckSubmoduleNameCollision(subStore *objects.Store, subTip plumbing.Hash, mountName string) error {
	c, err := subStore.Commit(subTip)
	if err != nil {
		return fmt.Errorf("submodule tip: %w", err)
	}
	tree, err := c.Tree()
	if err != nil {
		return fmt.Errorf("submodule tree: %w", err)
	}
	if _, err := subStore.EntryAtPath(tree, mountName); err == nil {
		return ErrSubmoduleNameCollision
	} else if !errors.Is(err, objects.ErrNotFound) {
		return fmt.Errorf("submodule tree: %w", err)
	}
	return nil
}
