// Package version probes the Active-HDL compiler version and compares releases.
package version

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/solsjo/hdlsim/sim/process"
)

var (
	// ErrNoVersion means the tool ran but printed nothing matching the version grammar.
	ErrNoVersion = errors.New("no version string in tool output")
	// ErrToolUnavailable means the tool could not be launched or failed.
	ErrToolUnavailable = errors.New("tool unavailable")
)

// Version is a simulator release: major, minor and an optional minor letter ("10.5a").
type Version struct {
	Major       int
	Minor       int
	MinorLetter string
}

// Compare returns -1, 0 or 1. Major dominates, then minor, then the letter
// compared lexicographically ("" sorts before "a").
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	case v.MinorLetter < o.MinorLetter:
		return -1
	case v.MinorLetter > o.MinorLetter:
		return 1
	}
	return 0
}

// Less reports v < o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// AtLeast reports v >= o.
func (v Version) AtLeast(o Version) bool { return v.Compare(o) >= 0 }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d%s", v.Major, v.Minor, v.MinorLetter)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

// Parse finds the first MAJOR.MINOR[LETTER].PATCH.PATCH token in line.
func Parse(line string) (Version, error) {
	for i := 0; i < len(line); i++ {
		if !isDigit(line[i]) {
			continue
		}
		if v, ok := parseAt(line, i); ok {
			return v, nil
		}
	}
	return Version{}, ErrNoVersion
}

// parseAt matches the grammar starting exactly at line[i].
func parseAt(line string, i int) (Version, bool) {
	major, i, ok := digits(line, i)
	if !ok || !expect(line, i, '.') {
		return Version{}, false
	}
	minor, i, ok := digits(line, i+1)
	if !ok {
		return Version{}, false
	}
	letter := ""
	if i < len(line) && isLetter(line[i]) {
		letter = line[i : i+1]
		i++
	}
	for n := 0; n < 2; n++ {
		if !expect(line, i, '.') {
			return Version{}, false
		}
		if _, i, ok = digits(line, i+1); !ok {
			return Version{}, false
		}
	}
	maj, err := strconv.Atoi(major)
	if err != nil {
		return Version{}, false
	}
	mnr, err := strconv.Atoi(minor)
	if err != nil {
		return Version{}, false
	}
	return Version{Major: maj, Minor: mnr, MinorLetter: letter}, true
}

func digits(s string, i int) (string, int, bool) {
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[start:i], i, i > start
}

func expect(s string, i int, c byte) bool { return i < len(s) && s[i] == c }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// Consumer collects the version from streamed tool output. The first matching
// line wins; it reports itself done afterwards so later lines are only drained.
type Consumer struct {
	version *Version
}

// Consume implements process.LineConsumer.
func (c *Consumer) Consume(line string) bool {
	if c.version != nil {
		return false
	}
	if v, err := Parse(line); err == nil {
		c.version = &v
		return false
	}
	return true
}

// Version returns the parsed version, or ErrNoVersion if no line matched.
func (c *Consumer) Version() (Version, error) {
	if c.version == nil {
		return Version{}, ErrNoVersion
	}
	return *c.version, nil
}

type probeResult struct {
	version Version
	err     error
}

// Prober runs "vcom -version" and caches the result per toolchain prefix.
type Prober struct {
	runner process.Runner
	env    []string

	mu    sync.Mutex
	cache map[string]probeResult
}

// NewProber creates a prober using runner to launch the compiler.
func NewProber(runner process.Runner, env []string) *Prober {
	return &Prober{runner: runner, env: env, cache: make(map[string]probeResult)}
}

// Probe returns the compiler version found under prefix.
// Errors wrap ErrToolUnavailable or ErrNoVersion; both are cached.
func (p *Prober) Probe(ctx context.Context, prefix string) (Version, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.cache[prefix]; ok {
		return r.version, r.err
	}

	consumer := &Consumer{}
	cmd := process.Command{Args: []string{filepath.Join(prefix, "vcom"), "-version"}, Env: p.env}
	var r probeResult
	if err := p.runner.Run(ctx, cmd, consumer.Consume); err != nil {
		r.err = fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	} else {
		r.version, r.err = consumer.Version()
	}
	if r.err != nil {
		logrus.Debugf("Version probe of %s failed: %v", prefix, r.err)
	} else {
		logrus.Debugf("Detected compiler version %s under %s", r.version, prefix)
	}
	p.cache[prefix] = r
	return r.version, r.err
}
