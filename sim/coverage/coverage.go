// Package coverage accumulates per-run coverage databases and builds the acdb
// merge script combining them.
package coverage

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/solsjo/hdlsim/sim/ostools"
	"github.com/solsjo/hdlsim/sim/script"
)

// FileName is the coverage database written by each coverage-enabled run.
const FileName = "coverage.acdb"

// Set is an insert-only collection of coverage database paths. Safe for
// concurrent use.
type Set struct {
	mu    sync.Mutex
	files map[string]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{files: make(map[string]struct{})}
}

// Add records path.
func (s *Set) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = struct{}{}
}

// Files returns the recorded paths sorted, so merge scripts are reproducible.
func (s *Set) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for f := range s.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Len is the number of recorded paths.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// MergePlan is the result of checking the set against the filesystem.
type MergePlan struct {
	Script  script.Script
	Inputs  []string // databases passed with -i
	Missing []string // recorded databases that were not found
}

// PlanMerge builds the merge script. Databases that do not exist are logged
// and left out; extra args are passed through brace-quoted.
func PlanMerge(files []string, args []string, output string) MergePlan {
	plan := MergePlan{}
	merge := script.Cmd("acdb", script.Bare("merge"))
	for _, f := range files {
		if !ostools.FileExists(f) {
			logrus.Warnf("Missing coverage file: %s", f)
			plan.Missing = append(plan.Missing, f)
			continue
		}
		plan.Inputs = append(plan.Inputs, f)
		merge.Args = append(merge.Args, script.Bare("-i"), script.Braced(script.FixPath(f)))
	}
	for _, a := range args {
		merge.Args = append(merge.Args, script.Braced(a))
	}
	merge.Args = append(merge.Args, script.Bare("-o"), script.Braced(script.FixPath(output)))

	plan.Script.Add(
		script.Cmd("onerror", script.Braced("quit -code 1")),
		merge,
	)
	return plan
}
