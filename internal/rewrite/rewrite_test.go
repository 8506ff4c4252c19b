package rewrite

import (
	"errors"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/apenwarr/git-submerge/internal/gittest"
	"github.com/apenwarr/git-submerge/internal/objects"
)

func hashes(hs ...plumbing.Hash) []plumbing.Hash { return hs }

func diffHashes(t *testing.T, label string, got, want []plumbing.Hash) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateComparable(plumbing.Hash{})); diff != "" {
		t.Fatalf("%s mismatch (-want +got):\n%s", label, diff)
	}
}

// scenario1 builds a linear-bump fixture: linear submodule, linear host,
// one bump (gitlink S1 then S2), with H1 carrying no gitlink at all.
func scenario1(t *testing.T) (rw *Rewriter, host, sub *objects.Store, h1, h2, h3, s1, s2 plumbing.Hash) {
	t.Helper()
	subRepo := gittest.NewRepo()
	s1 = gittest.Commit(subRepo, gittest.Tree(subRepo, gittest.File(subRepo, "lib.go", "v1")), nil, 0, "s1")
	s2 = gittest.Commit(subRepo, gittest.Tree(subRepo, gittest.File(subRepo, "lib.go", "v2")), []plumbing.Hash{s1}, 1, "s2")

	hostRepo := gittest.NewRepo()
	h1 = gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.File(hostRepo, "README", "v1")), nil, 0, "h1")
	h2 = gittest.Commit(hostRepo,
		gittest.Tree(hostRepo, gittest.File(hostRepo, "README", "v1"), gittest.Gitlink("vendor", s1)),
		[]plumbing.Hash{h1}, 1, "h2")
	h3 = gittest.Commit(hostRepo,
		gittest.Tree(hostRepo, gittest.File(hostRepo, "README", "v1"), gittest.Gitlink("vendor", s2)),
		[]plumbing.Hash{h2}, 2, "h3")

	host = objects.New(hostRepo)
	sub = objects.New(subRepo)
	rw = New(host, sub, "vendor", nil, nil, nil, nil)
	return
}

func TestScenario1LinearBump(t *testing.T) {
	rw, host, _, h1, h2, h3, s1, s2 := scenario1(t)

	if err := rw.RewriteSubmodule(s2); err != nil {
		t.Fatalf("RewriteSubmodule: %v", err)
	}
	dangling, err := rw.ScanDangling(h3)
	if err != nil {
		t.Fatalf("ScanDangling: %v", err)
	}
	if len(dangling) != 0 {
		t.Fatalf("dangling = %v, want none", dangling)
	}
	if err := rw.RewriteHost(h3); err != nil {
		t.Fatalf("RewriteHost: %v", err)
	}

	h1Rewritten := rw.M.MustGet(h1)
	if h1Rewritten != h1 {
		t.Fatalf("h1 rewritten = %v, want identity %v (no gitlink present)", h1Rewritten, h1)
	}

	s1Rewritten := rw.M.MustGet(s1)
	s2Rewritten := rw.M.MustGet(s2)

	h2Rewritten := rw.M.MustGet(h2)
	h2Commit, err := host.Commit(h2Rewritten)
	if err != nil {
		t.Fatalf("read rewritten h2: %v", err)
	}
	// H1 carries no gitlink, so H2's pointer (S1) isn't among its
	// parents' pointers: H2 is itself an advance and grafts S1'.
	diffHashes(t, "h2 parents", h2Commit.ParentHashes, hashes(h1Rewritten, s1Rewritten))

	h3Rewritten := rw.M.MustGet(h3)
	h3Commit, err := host.Commit(h3Rewritten)
	if err != nil {
		t.Fatalf("read rewritten h3: %v", err)
	}
	diffHashes(t, "h3 parents", h3Commit.ParentHashes, hashes(h2Rewritten, s2Rewritten))

	h3Tree, err := host.Tree(h3Commit.TreeHash)
	if err != nil {
		t.Fatalf("tree of rewritten h3: %v", err)
	}
	entry, err := host.EntryAtPath(h3Tree, "vendor/lib.go")
	if err != nil {
		t.Fatalf("EntryAtPath(vendor/lib.go): %v", err)
	}
	if entry.Mode == filemode.Submodule {
		t.Fatalf("vendor/lib.go still a gitlink after rewrite")
	}
}

func TestScenario2MergeSameSubmoduleBothSidesNoGraft(t *testing.T) {
	subRepo := gittest.NewRepo()
	s1 := gittest.Commit(subRepo, gittest.Tree(subRepo, gittest.File(subRepo, "lib.go", "v1")), nil, 0, "s1")

	hostRepo := gittest.NewRepo()
	h1 := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", s1)), nil, 0, "h1")
	h2 := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", s1)), nil, 1, "h2")
	m := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", s1)), []plumbing.Hash{h1, h2}, 2, "merge")

	host := objects.New(hostRepo)
	rw := New(host, objects.New(subRepo), "vendor", nil, nil, nil, nil)

	if err := rw.RewriteSubmodule(s1); err != nil {
		t.Fatalf("RewriteSubmodule: %v", err)
	}
	if dangling, err := rw.ScanDangling(m); err != nil || len(dangling) != 0 {
		t.Fatalf("ScanDangling: dangling=%v err=%v", dangling, err)
	}
	if err := rw.RewriteHost(m); err != nil {
		t.Fatalf("RewriteHost: %v", err)
	}

	mCommit, err := host.Commit(rw.M.MustGet(m))
	if err != nil {
		t.Fatalf("read rewritten merge: %v", err)
	}
	diffHashes(t, "merge parents", mCommit.ParentHashes, hashes(rw.M.MustGet(h1), rw.M.MustGet(h2)))
}

func TestScenario3MergeThatBumpsGrafts(t *testing.T) {
	subRepo := gittest.NewRepo()
	s1 := gittest.Commit(subRepo, gittest.Tree(subRepo, gittest.File(subRepo, "lib.go", "v1")), nil, 0, "s1")
	s2 := gittest.Commit(subRepo, gittest.Tree(subRepo, gittest.File(subRepo, "lib.go", "v2")), []plumbing.Hash{s1}, 1, "s2")

	hostRepo := gittest.NewRepo()
	h1 := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", s1)), nil, 0, "h1")
	h2 := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", s1)), nil, 1, "h2")
	m := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", s2)), []plumbing.Hash{h1, h2}, 2, "merge")

	host := objects.New(hostRepo)
	rw := New(host, objects.New(subRepo), "vendor", nil, nil, nil, nil)

	if err := rw.RewriteSubmodule(s2); err != nil {
		t.Fatalf("RewriteSubmodule: %v", err)
	}
	if dangling, err := rw.ScanDangling(m); err != nil || len(dangling) != 0 {
		t.Fatalf("ScanDangling: dangling=%v err=%v", dangling, err)
	}
	if err := rw.RewriteHost(m); err != nil {
		t.Fatalf("RewriteHost: %v", err)
	}

	mCommit, err := host.Commit(rw.M.MustGet(m))
	if err != nil {
		t.Fatalf("read rewritten merge: %v", err)
	}
	diffHashes(t, "merge parents", mCommit.ParentHashes,
		hashes(rw.M.MustGet(h1), rw.M.MustGet(h2), rw.M.MustGet(s2)))
}

func TestScenario4DanglingWithoutDefault(t *testing.T) {
	subRepo := gittest.NewRepo()
	s1 := gittest.Commit(subRepo, gittest.Tree(subRepo, gittest.File(subRepo, "lib.go", "v1")), nil, 0, "s1")

	unrelated := gittest.NewRepo()
	x := gittest.Commit(unrelated, gittest.Tree(unrelated), nil, 0, "elsewhere")

	hostRepo := gittest.NewRepo()
	h1 := gittest.Commit(hostRepo, gittest.Tree(hostRepo), nil, 0, "h1")
	h2 := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", x)), []plumbing.Hash{h1}, 1, "h2")

	host := objects.New(hostRepo)
	rw := New(host, objects.New(subRepo), "vendor", nil, nil, nil, nil)

	if err := rw.RewriteSubmodule(s1); err != nil {
		t.Fatalf("RewriteSubmodule: %v", err)
	}
	dangling, err := rw.ScanDangling(h2)
	if err != nil {
		t.Fatalf("ScanDangling: %v", err)
	}
	diffHashes(t, "dangling", dangling, hashes(x))

	// The Host Rewriter must not be run with unresolved dangling
	// references; it would fail because q cannot be resolved.
	err = rw.RewriteHost(h2)
	if err == nil {
		t.Fatalf("RewriteHost with an unresolved pointer and no default mapping: want error, got nil")
	}
}

func TestScenario5UserMappingRedirects(t *testing.T) {
	subRepo := gittest.NewRepo()
	s1 := gittest.Commit(subRepo, gittest.Tree(subRepo, gittest.File(subRepo, "lib.go", "v1")), nil, 0, "s1")
	s2 := gittest.Commit(subRepo, gittest.Tree(subRepo, gittest.File(subRepo, "lib.go", "v2")), []plumbing.Hash{s1}, 1, "s2")

	unrelated := gittest.NewRepo()
	x := gittest.Commit(unrelated, gittest.Tree(unrelated), nil, 0, "elsewhere")

	hostRepo := gittest.NewRepo()
	h1 := gittest.Commit(hostRepo, gittest.Tree(hostRepo), nil, 0, "h1")
	h2 := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", x)), []plumbing.Hash{h1}, 1, "h2")

	host := objects.New(hostRepo)
	userMap := map[plumbing.Hash]plumbing.Hash{x: s2}
	rw := New(host, objects.New(subRepo), "vendor", userMap, nil, nil, nil)

	if err := rw.RewriteSubmodule(s2); err != nil {
		t.Fatalf("RewriteSubmodule: %v", err)
	}
	dangling, err := rw.ScanDangling(h2)
	if err != nil {
		t.Fatalf("ScanDangling: %v", err)
	}
	if len(dangling) != 0 {
		t.Fatalf("dangling = %v, want none (x is covered by --mapping)", dangling)
	}
	if err := rw.RewriteHost(h2); err != nil {
		t.Fatalf("RewriteHost: %v", err)
	}

	h2Commit, err := host.Commit(rw.M.MustGet(h2))
	if err != nil {
		t.Fatalf("read rewritten h2: %v", err)
	}
	diffHashes(t, "h2 parents", h2Commit.ParentHashes, hashes(rw.M.MustGet(h1), rw.M.MustGet(s2)))

	tree, err := host.Tree(h2Commit.TreeHash)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	entry, err := host.EntryAtPath(tree, "vendor/lib.go")
	if err != nil {
		t.Fatalf("EntryAtPath(vendor/lib.go): %v", err)
	}
	if entry.Mode == filemode.Submodule {
		t.Fatalf("vendor/lib.go still a gitlink")
	}
}

func TestFidelityOfAuthorCommitterMessage(t *testing.T) {
	rw, host, sub, _, _, _, s1, s2 := scenario1(t)
	if err := rw.RewriteSubmodule(s2); err != nil {
		t.Fatalf("RewriteSubmodule: %v", err)
	}

	for _, orig := range []plumbing.Hash{s1, s2} {
		origCommit, err := sub.Commit(orig)
		if err != nil {
			t.Fatalf("read original %s: %v", orig, err)
		}
		newCommit, err := host.Commit(rw.M.MustGet(orig))
		if err != nil {
			t.Fatalf("read rewritten %s: %v", orig, err)
		}
		if origCommit.Author.Name != newCommit.Author.Name ||
			origCommit.Author.Email != newCommit.Author.Email ||
			!origCommit.Author.When.Equal(newCommit.Author.When) {
			t.Fatalf("author mismatch for %s: %+v vs %+v", orig, origCommit.Author, newCommit.Author)
		}
		if origCommit.Committer.Name != newCommit.Committer.Name ||
			origCommit.Committer.Email != newCommit.Committer.Email ||
			!origCommit.Committer.When.Equal(newCommit.Committer.When) {
			t.Fatalf("committer mismatch for %s: %+v vs %+v", orig, origCommit.Committer, newCommit.Committer)
		}
		if origCommit.Message != newCommit.Message {
			t.Fatalf("message mismatch for %s: %q vs %q", orig, origCommit.Message, newCommit.Message)
		}
	}
}

func TestNoUnresolvedDefaultMappingIsFatal(t *testing.T) {
	hostRepo := gittest.NewRepo()
	h1 := gittest.Commit(hostRepo, gittest.Tree(hostRepo), nil, 0, "h1")
	x := plumbing.NewHash("ffffffffffffffffffffffffffffffffffffff")
	h2 := gittest.Commit(hostRepo, gittest.Tree(hostRepo, gittest.Gitlink("vendor", x)), []plumbing.Hash{h1}, 1, "h2")

	subRepo := gittest.NewRepo()
	host := objects.New(hostRepo)
	def := x
	rw := New(host, objects.New(subRepo), "vendor", nil, &def, nil, nil)

	err := rw.RewriteHost(h2)
	if !errors.Is(err, ErrUnresolvableDefault) {
		t.Fatalf("RewriteHost with unmapped default: err = %v, want ErrUnresolvableDefault", err)
	}
}
