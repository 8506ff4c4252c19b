// Package gittest builds small, in-memory Git repositories for tests: no
// filesystem I/O, no shelling out to the git binary, objects created
// directly through go-git's plumbing the same way the rewriter itself
// does.
package gittest

import (
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// NewRepo returns a fresh, empty, in-memory, bare repository: no worktree,
// objects only. Used by tests that build commits directly through
// plumbing and never need a checkout.
func NewRepo() *git.Repository {
	r, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		panic(fmt.Sprintf("gittest: Init: %v", err))
	}
	return r
}

// NewWorktreeRepo returns a fresh, empty, in-memory repository with an
// in-memory worktree (memfs), for tests that need Add/Commit/Status.
func NewWorktreeRepo() *git.Repository {
	r, err := git.Init(memory.NewStorage(), memfs.New())
	if err != nil {
		panic(fmt.Sprintf("gittest: Init: %v", err))
	}
	return r
}

// Blob writes content as a blob and returns its id.
func Blob(repo *git.Repository, content string) plumbing.Hash {
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))
	w, err := obj.Writer()
	if err != nil {
		panic(fmt.Sprintf("gittest: blob writer: %v", err))
	}
	if _, err := w.Write([]byte(content)); err != nil {
		panic(fmt.Sprintf("gittest: blob write: %v", err))
	}
	if err := w.Close(); err != nil {
		panic(fmt.Sprintf("gittest: blob close: %v", err))
	}
	h, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		panic(fmt.Sprintf("gittest: store blob: %v", err))
	}
	return h
}

// File returns a regular-file tree entry for name, with a fresh blob
// holding content.
func File(repo *git.Repository, name, content string) object.TreeEntry {
	return object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: Blob(repo, content)}
}

// Gitlink returns a submodule (gitlink) tree entry pointing at commit.
func Gitlink(name string, commit plumbing.Hash) object.TreeEntry {
	return object.TreeEntry{Name: name, Mode: filemode.Submodule, Hash: commit}
}

// Tree writes a tree from entries and returns its id.
func Tree(repo *git.Repository, entries ...object.TreeEntry) plumbing.Hash {
	t := &object.Tree{Entries: entries}
	obj := repo.Storer.NewEncodedObject()
	if err := t.Encode(obj); err != nil {
		panic(fmt.Sprintf("gittest: encode tree: %v", err))
	}
	h, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		panic(fmt.Sprintf("gittest: store tree: %v", err))
	}
	return h
}

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Commit writes a commit with a deterministic, monotonically increasing
// author/committer timestamp (offset minutes after a fixed epoch, so
// repeated test runs are byte-for-byte reproducible) and returns its id.
func Commit(repo *git.Repository, tree plumbing.Hash, parents []plumbing.Hash, minutesAfterEpoch int, message string) plumbing.Hash {
	sig := object.Signature{
		Name:  "Test Author",
		Email: "author@example.com",
		When:  epoch.Add(time.Duration(minutesAfterEpoch) * time.Minute),
	}
	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		TreeHash:     tree,
		ParentHashes: parents,
		Message:      message,
	}
	obj := repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		panic(fmt.Sprintf("gittest: encode commit: %v", err))
	}
	h, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		panic(fmt.Sprintf("gittest: store commit: %v", err))
	}
	return h
}
