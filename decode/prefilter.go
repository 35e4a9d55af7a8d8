package decode

import (
	"strings"
	"unicode/utf8"

	ac "github.com/petar-dambovaliev/aho-corasick"
)

// minLiteralLen is the shortest literal fragment worth indexing. Root
// decoders whose patterns yield nothing this long stay candidates for
// every line.
const minLiteralLen = 3

// prefilter narrows the set of root decoders tried per line by
// scanning for literal fragments of their prematch patterns with an
// Aho-Corasick automaton. It is an optimization only: candidates(line)
// always includes every root that could match the line.
type prefilter struct {
	automaton *ac.AhoCorasick
	// patternRoot maps automaton pattern index -> root slot.
	patternRoot []int
	// always holds root slots with no usable literal.
	always []int
	// rootCount is the number of roots in the tree.
	rootCount int
	// roots mirrors Tree.roots so candidate slots map back to arena
	// indices in declaration order.
	roots []int
}

func newPrefilter(t *Tree) *prefilter {
	pf := &prefilter{rootCount: len(t.roots), roots: t.roots}

	var patterns []string
	for slot, ri := range t.roots {
		n := &t.nodes[ri]
		expr := n.spec.Prematch
		if expr == "" {
			expr = n.spec.Regex
		}
		lit := longestLiteral(expr)
		if len(lit) < minLiteralLen {
			pf.always = append(pf.always, slot)
			continue
		}
		patterns = append(patterns, lit)
		pf.patternRoot = append(pf.patternRoot, slot)
	}

	if len(patterns) > 0 {
		builder := ac.NewAhoCorasickBuilder(ac.Opts{
			AsciiCaseInsensitive: false,
			MatchKind:            ac.LeftMostLongestMatch,
			DFA:                  true,
		})
		automaton := builder.Build(patterns)
		pf.automaton = &automaton
	}
	return pf
}

// candidates returns the root slots whose literal fragment occurs in
// line, merged with the always-candidate roots, in declaration order.
func (pf *prefilter) candidates(line string) []int {
	if pf.automaton == nil {
		return pf.roots
	}

	hit := make([]bool, pf.rootCount)
	for _, slot := range pf.always {
		hit[slot] = true
	}
	for _, m := range pf.automaton.FindAll(line) {
		hit[pf.patternRoot[m.Pattern()]] = true
	}

	out := make([]int, 0, len(pf.roots))
	for slot, ri := range pf.roots {
		if hit[slot] {
			out = append(out, ri)
		}
	}
	return out
}

// longestLiteral extracts the longest run of characters in expr that
// must appear verbatim in any matching input. The extraction is
// deliberately conservative: alternation disables it entirely, runs
// inside groups are ignored (the group may be optional), and a
// character followed by a quantifier is dropped from its run. A too
// short or empty result just means the decoder is tried on every line.
func longestLiteral(expr string) string {
	if strings.ContainsRune(expr, '|') {
		return ""
	}

	var best, cur strings.Builder
	depth := 0
	inClass := false
	inBrace := false

	flush := func() {
		if cur.Len() > best.Len() {
			best.Reset()
			best.WriteString(cur.String())
		}
		cur.Reset()
	}

	runes := []rune(expr)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			// Class escapes (\d, \s, \w...) are not literal; skip the
			// escaped char entirely.
			i++
			flush()
		case '(':
			depth++
			flush()
		case ')':
			depth--
			flush()
		case '[':
			inClass = true
			flush()
		case ']':
			inClass = false
			flush()
		case '.', '*', '+', '?', '{', '}', '^', '$':
			if r == '?' || r == '*' || r == '{' {
				// The preceding literal was optional; drop it.
				s := cur.String()
				if s != "" {
					_, size := utf8.DecodeLastRuneInString(s)
					cur.Reset()
					cur.WriteString(s[:len(s)-size])
				}
			}
			if r == '{' {
				inBrace = true
			}
			if r == '}' {
				inBrace = false
			}
			flush()
		default:
			if depth == 0 && !inClass && !inBrace {
				cur.WriteRune(r)
			}
		}
	}
	flush()
	return best.String()
}
