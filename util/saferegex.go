// Package util provides shared helpers for the Argus logtest service.
package util

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRegexTimeout bounds a single pattern evaluation. Decoder and
// rule patterns may come from untrusted session rule patches, so every
// match runs with a backtracking timeout.
const DefaultRegexTimeout = 500 * time.Millisecond

// ErrRegexTimeout is returned when a pattern evaluation exceeds its
// match timeout.
var ErrRegexTimeout = fmt.Errorf("regex evaluation timeout")

// patternCacheSize bounds the compiled-pattern cache. Session rule
// patches compile arbitrary expressions; without a bound the cache
// would grow with every patched session.
const patternCacheSize = 4096

var patternCache, _ = lru.New[string, *regexp2.Regexp](patternCacheSize)

// Pattern is a compiled, timeout-bounded regular expression.
type Pattern struct {
	expr string
	re   *regexp2.Regexp
}

// CompilePattern compiles expr with the given match timeout, reusing a
// previously compiled instance when possible. Identical expressions
// with different timeouts are cached separately.
func CompilePattern(expr string, timeout time.Duration) (*Pattern, error) {
	if expr == "" {
		return nil, fmt.Errorf("regex pattern cannot be empty")
	}
	if timeout <= 0 {
		timeout = DefaultRegexTimeout
	}

	cacheKey := fmt.Sprintf("%s:%d", expr, timeout.Milliseconds())
	if re, ok := patternCache.Get(cacheKey); ok {
		return &Pattern{expr: expr, re: re}, nil
	}

	re, err := regexp2.Compile(expr, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regex pattern %q: %w", expr, err)
	}
	re.MatchTimeout = timeout
	patternCache.Add(cacheKey, re)

	return &Pattern{expr: expr, re: re}, nil
}

// MustCompilePattern is CompilePattern for static expressions; it
// panics on error.
func MustCompilePattern(expr string) *Pattern {
	p, err := CompilePattern(expr, DefaultRegexTimeout)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source expression.
func (p *Pattern) String() string {
	return p.expr
}

// NumCaptures returns the number of capturing groups in the pattern.
func (p *Pattern) NumCaptures() int {
	n := len(p.re.GetGroupNumbers())
	if n == 0 {
		return 0
	}
	return n - 1 // group 0 is the whole match
}

// MatchString reports whether the pattern matches s. A timeout is
// reported as ErrRegexTimeout, not a match.
func (p *Pattern) MatchString(s string) (bool, error) {
	ok, err := p.re.MatchString(s)
	if err != nil {
		return false, fmt.Errorf("%w: pattern %q", ErrRegexTimeout, p.expr)
	}
	return ok, nil
}

// FindIndex returns the byte offsets of the first match, or ok=false
// when the pattern does not match. regexp2 reports match positions in
// runes; they are converted here so callers can slice s directly.
func (p *Pattern) FindIndex(s string) (start, end int, ok bool, err error) {
	m, err := p.re.FindStringMatch(s)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: pattern %q", ErrRegexTimeout, p.expr)
	}
	if m == nil {
		return 0, 0, false, nil
	}
	return byteOffset(s, m.Index), byteOffset(s, m.Index+m.Length), true, nil
}

// Extract returns the capture-group values of the first match plus
// the byte offset just past the match, for callers that hand the
// remainder of the input to child patterns. ok=false means no match.
func (p *Pattern) Extract(s string) (caps []string, end int, ok bool, err error) {
	m, err := p.re.FindStringMatch(s)
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: pattern %q", ErrRegexTimeout, p.expr)
	}
	if m == nil {
		return nil, 0, false, nil
	}
	groups := m.Groups()
	caps = make([]string, 0, len(groups)-1)
	for _, g := range groups[1:] {
		caps = append(caps, g.String())
	}
	return caps, byteOffset(s, m.Index+m.Length), true, nil
}

// byteOffset converts a rune index into s to the corresponding byte
// offset. An index past the last rune maps to len(s).
func byteOffset(s string, runeIdx int) int {
	if runeIdx <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == runeIdx {
			return i
		}
		n++
	}
	return len(s)
}

// Captures returns the capture-group values of the first match, in
// group order. ok=false means the pattern did not match at all.
func (p *Pattern) Captures(s string) (caps []string, ok bool, err error) {
	m, err := p.re.FindStringMatch(s)
	if err != nil {
		return nil, false, fmt.Errorf("%w: pattern %q", ErrRegexTimeout, p.expr)
	}
	if m == nil {
		return nil, false, nil
	}
	groups := m.Groups()
	caps = make([]string, 0, len(groups)-1)
	for _, g := range groups[1:] {
		caps = append(caps, g.String())
	}
	return caps, true, nil
}
