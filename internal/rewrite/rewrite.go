// Package rewrite implements the two rewrite passes (Submodule History
// Rewriter, Host History Rewriter) and the Dangling-Reference Scanner that
// runs between them. All three share a Rewriter: one mapping store
// shared across commit ids (both DAGs) and tree ids, a user-mapping
// table, and an optional default mapping.
package rewrite

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/apenwarr/git-submerge/internal/mapping"
	"github.com/apenwarr/git-submerge/internal/objects"
)

// Logf is the logging shape threaded through the rewriter, matching the
// teacher's debugf/infof closures rather than a package-level logger:
// callers can wire it to log.Printf, a no-op, or a test recorder.
type Logf func(format string, args ...interface{})

// Rewriter holds the state shared by both rewrite passes.
type Rewriter struct {
	// Host is where every new tree and commit is written, and where the
	// final, absorbed history is read back from. Its object store must
	// already contain the submodule's objects too once RewriteSubmodule
	// has run, because it writes the rewritten submodule commits here,
	// not into Sub.
	Host *objects.Store
	// Sub is the submodule's own repository, read-only: RewriteSubmodule
	// reads original submodule commits and trees from here.
	Sub *objects.Store

	// SubPath is SUBMODULE_DIR, split into path segments.
	SubPath []string

	// M is the shared mapping store: submodule commit -> rewritten
	// submodule commit, host commit -> rewritten host commit, and
	// (transiently) submodule tree -> relocated tree.
	M *mapping.Store

	// UserMap is U: submodule pointer (as seen in the host DAG) -> a
	// substitute pointer. It is applied to every pointer it covers,
	// whether or not the original is present in Sub.
	UserMap map[plumbing.Hash]plumbing.Hash
	// DefaultMapping is D: the fallback used when UserMap doesn't cover
	// an unresolvable pointer. Nil means "no default".
	DefaultMapping *plumbing.Hash

	Debugf Logf
	Infof  Logf
}

// New builds a Rewriter. A nil Logf is replaced with a no-op.
func New(host, sub *objects.Store, subPath string, userMap map[plumbing.Hash]plumbing.Hash, defaultMapping *plumbing.Hash, debugf, infof Logf) *Rewriter {
	if debugf == nil {
		debugf = func(string, ...interface{}) {}
	}
	if infof == nil {
		infof = func(string, ...interface{}) {}
	}
	if userMap == nil {
		userMap = make(map[plumbing.Hash]plumbing.Hash)
	}
	return &Rewriter{
		Host:           host,
		Sub:            sub,
		SubPath:        objects.SplitPath(subPath),
		M:              mapping.New(),
		UserMap:        userMap,
		DefaultMapping: defaultMapping,
		Debugf:         debugf,
		Infof:          infof,
	}
}
