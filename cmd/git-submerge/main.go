// Command git-submerge absorbs a Git submodule into its parent repository,
// replaying both histories into one rewritten DAG.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pborman/getopt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/apenwarr/git-submerge/internal/objects"
	"github.com/apenwarr/git-submerge/internal/oid"
	"github.com/apenwarr/git-submerge/internal/precheck"
	"github.com/apenwarr/git-submerge/internal/rewrite"
)

// Exit codes. exitUsage covers CLI-argument-shape errors (wrong argument
// count), reserved at 99 for "usage error" the way getopt-based CLIs
// commonly do, distinct from the malformed-OID exit code below.
const (
	exitOK             = 0
	exitNotARepo       = 1
	exitDangling       = 2
	exitMalformedOID   = 3
	exitInvalidMapping = 4
	exitDirtyWorktree  = 5
	exitUsage          = 99
)

func fatalf(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "git-submerge: "+format+"\n", args...)
	os.Exit(code)
}

var usageStr = `
Absorbs the submodule mounted at SUBMODULE_DIR into the current branch's
history, replacing every gitlink with the submodule's real tree and
grafting the submodule's own history in wherever the pointer advanced.

Arguments:
    SUBMODULE_DIR         path to the submodule, relative to the repo root
`

func usage() {
	fmt.Fprintf(os.Stderr, "\n")
	getopt.PrintUsage(os.Stderr)
	fmt.Fprintf(os.Stderr, usageStr)
}

func usagef(format string, args ...interface{}) {
	usage()
	fmt.Fprintf(os.Stderr, "\nfatal: "+format+"\n", args...)
	os.Exit(exitUsage)
}

func main() {
	log.SetFlags(0)
	infof := log.Printf

	getopt.SetUsage(usage)
	gitDir := getopt.StringLong("git-dir", 0, ".", "path to git repo", "GIT_DIR")
	mappingArgs := getopt.ListLong("mapping", 'm', "OLD:NEW pointer substitution (repeatable)", "old:new")
	defaultMappingArg := getopt.StringLong("default-mapping", 'd', "", "fallback pointer when no mapping applies", "OID")
	verbose := getopt.BoolLong("verbose", 'v', "verbose mode")
	version := getopt.BoolLong("version", 'V', "print version and exit")
	getopt.Parse()

	if *version {
		fmt.Println("git-submerge 0.1.0")
		os.Exit(exitOK)
	}

	args := getopt.Args()
	if len(args) != 1 {
		usagef("expected exactly one argument, SUBMODULE_DIR")
	}
	subDir := args[0]

	var debugf func(string, ...interface{})
	if *verbose {
		debugf = infof
	} else {
		debugf = func(string, ...interface{}) {}
	}

	userMap, err := parseMappings(*mappingArgs)
	if err != nil {
		fatalf(exitMalformedOID, "%v", err)
	}
	var defaultMapping *plumbing.Hash
	if *defaultMappingArg != "" {
		h, err := oid.Parse(*defaultMappingArg)
		if err != nil {
			fatalf(exitMalformedOID, "--default-mapping: %v", err)
		}
		defaultMapping = &h
	}

	hostRepo, err := git.PlainOpen(*gitDir)
	if err != nil {
		fatalf(exitNotARepo, "%s: not a git repository: %v", *gitDir, err)
	}

	if err := precheck.CheckCleanWorktree(hostRepo); err != nil {
		fatalf(exitDirtyWorktree, "%v", err)
	}

	wt, err := hostRepo.Worktree()
	if err != nil {
		fatalf(exitNotARepo, "worktree: %v", err)
	}
	sub, err := wt.Submodule(subDir)
	if err != nil {
		fatalf(exitNotARepo, "%s: not a submodule: %v", subDir, err)
	}
	subRepo, err := sub.Repository()
	if err != nil {
		fatalf(exitNotARepo, "%s: open submodule repository: %v", subDir, err)
	}
	subHead, err := subRepo.Head()
	if err != nil {
		fatalf(exitNotARepo, "%s: submodule has no HEAD: %v", subDir, err)
	}
	subTip := subHead.Hash()

	subStore := objects.New(subRepo)
	mountSegments := objects.SplitPath(subDir)
	if len(mountSegments) > 0 {
		if err := precheck.CheckSubmoduleNameCollision(subStore, subTip, mountSegments[len(mountSegments)-1]); err != nil {
			fatalf(exitInvalidMapping, "%v", err)
		}
	}

	if err := precheck.CheckUserMappings(subRepo, subTip, userMap, defaultMapping); err != nil {
		var invalid *precheck.InvalidMappingError
		if errors.As(err, &invalid) {
			for _, h := range invalid.Missing {
				fmt.Fprintf(os.Stderr, "not found in submodule history: %s\n", h)
			}
		}
		fatalf(exitInvalidMapping, "%v", err)
	}

	hostHead, err := hostRepo.Head()
	if err != nil {
		fatalf(exitNotARepo, "repo has no HEAD: %v", err)
	}
	hostTip := hostHead.Hash()

	rw := rewrite.New(objects.New(hostRepo), objects.New(subRepo), subDir, userMap, defaultMapping, debugf, infof)

	infof("Rewriting submodule history from %s\n", subTip)
	if err := rw.RewriteSubmodule(subTip); err != nil {
		log.Fatalf("git-submerge: %v", err)
	}

	infof("Scanning host history for dangling submodule references\n")
	dangling, err := rw.ScanDangling(hostTip)
	if err != nil {
		log.Fatalf("git-submerge: %v", err)
	}
	if len(dangling) > 0 {
		for _, h := range dangling {
			fmt.Fprintf(os.Stderr, "dangling submodule reference: %s\n", h)
		}
		fmt.Fprintf(os.Stderr, "hint: supply --mapping %s:<submodule-oid> or --default-mapping <oid>\n", dangling[0])
		os.Exit(exitDangling)
	}

	infof("Rewriting host history\n")
	if err := rw.RewriteHost(hostTip); err != nil {
		log.Fatalf("git-submerge: %v", err)
	}

	newHead, ok := rw.M.Get(hostTip)
	if !ok {
		log.Fatalf("git-submerge: internal error: current branch tip %s was never rewritten", hostTip)
	}

	infof("Resetting %s -> %s\n", hostHead.Name(), newHead)
	if err := objects.New(hostRepo).HardReset(newHead); err != nil {
		log.Fatalf("git-submerge: %v", err)
	}
}

// parseMappings parses repeatable "OLD:NEW" arguments into U.
func parseMappings(args []string) (map[plumbing.Hash]plumbing.Hash, error) {
	m := make(map[plumbing.Hash]plumbing.Hash, len(args))
	for _, a := range args {
		parts := strings.SplitN(a, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("--mapping %q: expected OLD:NEW", a)
		}
		old, err := oid.Parse(parts[0])
		if err != nil {
			return nil, fmt.Errorf("--mapping %q: %w", a, err)
		}
		target, err := oid.Parse(parts[1])
		if err != nil {
			return nil, fmt.Errorf("--mapping %q: %w", a, err)
		}
		m[old] = target
	}
	return m, nil
}
