package decode

import (
	"fmt"
	"time"

	"argus/core"
	"argus/util"
)

// node is one compiled decoder in the arena. Children hold arena
// indices, never pointers, so a Tree can be shared or copied freely.
type node struct {
	spec     Spec
	prematch *util.Pattern
	regex    *util.Pattern
	children []int
}

// Tree is a compiled decoder forest. It is immutable after Compile and
// safe for concurrent use by any number of sessions.
type Tree struct {
	nodes  []node
	roots  []int
	byName map[string]int
	pf     *prefilter
}

// Options controls decoder compilation.
type Options struct {
	// RegexTimeout bounds each pattern evaluation. Zero selects
	// util.DefaultRegexTimeout.
	RegexTimeout time.Duration
	// DisablePrefilter turns the literal prefilter off; every root is
	// then a candidate for every line. Decoding results are identical
	// either way.
	DisablePrefilter bool
}

// Compile builds the decoder tree from specs. Specs are validated
// structurally here: unknown parents, duplicate names, patterns that
// fail to compile and capture counts that disagree with the field
// order list all reject the load.
func Compile(specs []Spec, opts Options) (*Tree, error) {
	t := &Tree{byName: make(map[string]int, len(specs))}

	for _, spec := range specs {
		if spec.Prematch == "" && spec.Regex == "" {
			return nil, fmt.Errorf("decoder %q: needs a prematch or a regex", spec.Name)
		}
		if _, dup := t.byName[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate decoder %q", spec.Name)
		}
		if spec.Offset == "" {
			spec.Offset = OffsetWholeLine
		}

		n := node{spec: spec}
		var err error
		if spec.Prematch != "" {
			if n.prematch, err = util.CompilePattern(spec.Prematch, opts.RegexTimeout); err != nil {
				return nil, fmt.Errorf("decoder %q: prematch: %w", spec.Name, err)
			}
		}
		if spec.Regex != "" {
			if n.regex, err = util.CompilePattern(spec.Regex, opts.RegexTimeout); err != nil {
				return nil, fmt.Errorf("decoder %q: regex: %w", spec.Name, err)
			}
			if len(spec.Order) > 0 && n.regex.NumCaptures() != len(spec.Order) {
				return nil, fmt.Errorf("decoder %q: regex has %d capture groups but order names %d fields",
					spec.Name, n.regex.NumCaptures(), len(spec.Order))
			}
		}
		if spec.Offset == OffsetAfterParent && spec.Parent == "" {
			return nil, fmt.Errorf("decoder %q: offset after_parent requires a parent", spec.Name)
		}

		idx := len(t.nodes)
		t.nodes = append(t.nodes, n)
		t.byName[spec.Name] = idx

		if spec.Parent == "" {
			t.roots = append(t.roots, idx)
			continue
		}
		parent, ok := t.byName[spec.Parent]
		if !ok {
			return nil, fmt.Errorf("decoder %q: unknown parent %q (parents must be declared first)", spec.Name, spec.Parent)
		}
		t.nodes[parent].children = append(t.nodes[parent].children, idx)
	}

	if !opts.DisablePrefilter {
		t.pf = newPrefilter(t)
	}
	return t, nil
}

// Len returns the number of decoders in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Decode runs the decoder forest over the event's raw line, filling
// Fields and DecoderPath in place. A line no decoder matches is left
// untouched; that is a normal outcome, not an error.
func (t *Tree) Decode(ev *core.Event) {
	line := ev.RawLog
	for _, ri := range t.candidates(line) {
		if t.tryNode(ri, ev, line) {
			return
		}
	}
}

// candidates returns the root indices worth trying for line, in
// declaration order.
func (t *Tree) candidates(line string) []int {
	if t.pf == nil {
		return t.roots
	}
	return t.pf.candidates(line)
}

// tryNode attempts one decoder against text. On success it applies the
// field extractors, records the decoder in the event path and gives
// each child one attempt (first matching child wins).
func (t *Tree) tryNode(idx int, ev *core.Event, text string) bool {
	n := &t.nodes[idx]

	// afterMatch tracks the remainder handed to after_parent children.
	afterMatch := text

	if n.prematch != nil {
		_, end, ok, err := n.prematch.FindIndex(text)
		if err != nil || !ok {
			return false
		}
		afterMatch = text[end:]
	}

	if n.regex != nil {
		regexText := text
		if n.spec.Offset == OffsetAfterPrematch {
			regexText = afterMatch
		}
		caps, end, ok, err := n.regex.Extract(regexText)
		if err != nil || !ok {
			return false
		}
		afterMatch = regexText[end:]
		for i, field := range n.spec.Order {
			if i >= len(caps) {
				break
			}
			if caps[i] != "" {
				ev.Fields[field] = caps[i]
			}
		}
	}

	ev.DecoderPath = append(ev.DecoderPath, n.spec.Name)

	for _, ci := range n.children {
		childText := ev.RawLog
		if t.nodes[ci].spec.Offset == OffsetAfterParent {
			childText = afterMatch
		}
		if t.tryNode(ci, ev, childText) {
			break
		}
	}
	return true
}
