// Package objects is the Object Access Layer: a thin facade over a
// go-git repository's object store, through which every other package
// reads commits and trees, builds path-level tree edits, and writes new
// trees and commits. History walks (internal/walk), worktree checks
// (internal/precheck) and the command itself still use *git.Repository
// directly.
package objects

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotFound is the recoverable "entry absent" signal distinguished from
// every other object-store failure, which is fatal.
var ErrNotFound = errors.New("objects: not found")

// Store wraps a single repository's object database.
type Store struct {
	Repo *git.Repository
}

// New wraps repo.
func New(repo *git.Repository) *Store {
	return &Store{Repo: repo}
}

// Commit reads a commit by id.
func (s *Store) Commit(h plumbing.Hash) (*object.Commit, error) {
	c, err := s.Repo.CommitObject(h)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("commit %s: %w", h, ErrNotFound)
		}
		return nil, fmt.Errorf("commit %s: %v", h, err)
	}
	return c, nil
}

// Tree reads a tree by id.
func (s *Store) Tree(h plumbing.Hash) (*object.Tree, error) {
	t, err := s.Repo.TreeObject(h)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("tree %s: %w", h, ErrNotFound)
		}
		return nil, fmt.Errorf("tree %s: %v", h, err)
	}
	return t, nil
}

// EntryAtPath looks up the entry at path within tree. path may have
// multiple slash-separated segments. A missing entry (at any segment)
// returns ErrNotFound distinctly from any other failure, per the Object
// Access Layer's contract.
func (s *Store) EntryAtPath(tree *object.Tree, path string) (*object.TreeEntry, error) {
	e, err := tree.FindEntry(path)
	if err != nil {
		if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return e, nil
}

// WriteTree encodes and stores tree, returning its id. Tree writes are
// content-addressed and therefore idempotent: writing the same entry set
// twice yields the same id and is safe to repeat.
func (s *Store) WriteTree(tree *object.Tree) (plumbing.Hash, error) {
	obj := s.Repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	h, err := s.Repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store tree: %w", err)
	}
	return h, nil
}

// WriteCommit encodes and stores a new commit built from the given fields.
// It never touches any reference -- that is the Finalizer's job alone.
func (s *Store) WriteCommit(treeID plumbing.Hash, parents []plumbing.Hash, author, committer object.Signature, message string) (plumbing.Hash, error) {
	c := &object.Commit{
		Author:       author,
		Committer:    committer,
		TreeHash:     treeID,
		ParentHashes: parents,
		Message:      message,
	}
	obj := s.Repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode commit: %w", err)
	}
	h, err := s.Repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store commit: %w", err)
	}
	return h, nil
}

// HasObject reports whether h is already present in the store.
func (s *Store) HasObject(h plumbing.Hash) bool {
	_, err := s.Repo.Storer.EncodedObject(plumbing.AnyObject, h)
	return err == nil
}

// CopyReachable copies every tree and blob object reachable from the tree
// root in src into s, skipping any object s already has. Relocating a
// submodule's tree by id (NestUnderPath) reuses the submodule's original
// tree and blob objects verbatim rather than rewriting their contents, so
// those objects have to actually exist in the host's object store for the
// host to resolve a path through the spliced-in subtree; this is the
// delivery step that makes that true, grafting the submodule's commit
// content into the host database the way the teacher's own
// tryFetchFromSubmodules pulls submodule objects across repositories.
// Gitlink entries are skipped: the commit they point at lives in the
// submodule's own history, not as an object under this tree.
func (s *Store) CopyReachable(src *Store, root plumbing.Hash) error {
	if s.HasObject(root) {
		return nil
	}
	tree, err := src.Tree(root)
	if err != nil {
		return fmt.Errorf("copy reachable: read tree %s: %w", root, err)
	}
	if err := s.copyObject(src, root); err != nil {
		return fmt.Errorf("copy reachable: tree %s: %w", root, err)
	}
	for _, e := range tree.Entries {
		switch e.Mode {
		case filemode.Dir:
			if err := s.CopyReachable(src, e.Hash); err != nil {
				return err
			}
		case filemode.Submodule:
			continue
		default:
			if err := s.copyObject(src, e.Hash); err != nil {
				return fmt.Errorf("copy reachable: blob %s: %w", e.Hash, err)
			}
		}
	}
	return nil
}

// copyObject transfers a single encoded object by id from src into s,
// unless s already has it.
func (s *Store) copyObject(src *Store, h plumbing.Hash) error {
	if s.HasObject(h) {
		return nil
	}
	obj, err := src.Repo.Storer.EncodedObject(plumbing.AnyObject, h)
	if err != nil {
		return fmt.Errorf("read %s: %w", h, err)
	}
	if _, err := s.Repo.Storer.SetEncodedObject(obj); err != nil {
		return fmt.Errorf("write %s: %w", h, err)
	}
	return nil
}

// HardReset force-resets the repository's current branch to commit,
// updating the worktree to match. Safe only when the worktree was
// previously verified clean (the Precondition Checker's job).
func (s *Store) HardReset(commit plumbing.Hash) error {
	wt, err := s.Repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	err = wt.Reset(&git.ResetOptions{Commit: commit, Mode: git.HardReset})
	if err != nil {
		return fmt.Errorf("hard reset to %s: %w", commit, err)
	}
	return nil
}

// NestUnderPath wraps an existing tree id under the directory named by
// segments, without touching the wrapped tree's contents. Because trees
// are content-addressed, a tree containing path/to/file is bit-for-bit
// identical whether it was built by relocating every leaf entry under
// path/to/ or by nesting the original, untouched tree one directory at a
// time -- so this is the O(depth(segments)) equivalent of the "flat
// re-address of every leaf entry" the Submodule Rewriter conceptually
// performs.
func (s *Store) NestUnderPath(segments []string, leaf plumbing.Hash) (plumbing.Hash, error) {
	if len(segments) == 0 {
		return leaf, nil
	}
	inner, err := s.NestUnderPath(segments[1:], leaf)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	tree := &object.Tree{
		Entries: []object.TreeEntry{
			{Name: segments[0], Mode: filemode.Dir, Hash: inner},
		},
	}
	return s.WriteTree(tree)
}

// ReplaceAtPath rebuilds root (a tree id, or the zero hash for "no tree
// yet") with the entry at the slash-separated path replaced by entry.
// Only the spine of tree objects along path is rewritten; every sibling
// entry at every level keeps its original id, so this is an O(depth(path))
// edit regardless of how large the tree is overall.
func (s *Store) ReplaceAtPath(root plumbing.Hash, segments []string, entry object.TreeEntry) (plumbing.Hash, error) {
	if len(segments) == 0 {
		return plumbing.ZeroHash, fmt.Errorf("objects: ReplaceAtPath: empty path")
	}

	var current []object.TreeEntry
	if !root.IsZero() {
		tree, err := s.Tree(root)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return plumbing.ZeroHash, err
		}
		if tree != nil {
			current = tree.Entries
		}
	}

	name := segments[0]
	if len(segments) == 1 {
		return s.writeReplacedLevel(current, name, entry)
	}

	var childHash plumbing.Hash
	for _, e := range current {
		if e.Name == name && e.Mode == filemode.Dir {
			childHash = e.Hash
			break
		}
	}
	newChild, err := s.ReplaceAtPath(childHash, segments[1:], entry)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return s.writeReplacedLevel(current, name, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: newChild})
}

func (s *Store) writeReplacedLevel(current []object.TreeEntry, name string, entry object.TreeEntry) (plumbing.Hash, error) {
	out := make([]object.TreeEntry, 0, len(current)+1)
	replaced := false
	for _, e := range current {
		if e.Name == name {
			out = append(out, entry)
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry)
	}
	sortEntries(out)
	return s.WriteTree(&object.Tree{Entries: out})
}

// sortEntries orders tree entries the way Git requires on disk: byte order
// on the name, except that directory entries sort as if their name carried
// a trailing "/". Gitlink entries do not get that treatment -- S_ISDIR is
// false for mode 0160000, so Git's own base_name_compare sorts them as
// plain names.
func sortEntries(entries []object.TreeEntry) {
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool { return key(entries[i]) < key(entries[j]) })
}

// SplitPath splits a slash-separated repository path into segments,
// trimming any leading/trailing slashes.
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
