package detect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"argus/cdb"
	"argus/core"
	"argus/util"
)

// compiledPred is a FieldPredicate with its pattern compiled.
type compiledPred struct {
	field   string
	pattern *util.Pattern
	negate  bool
}

// rnode is one compiled rule in the arena. Children hold arena indices
// of the rules whose if_sid references this rule, in declaration
// order.
type rnode struct {
	spec     Spec
	regex    *util.Pattern
	fields   []compiledPred
	anyOf    []compiledPred
	window   time.Duration
	children []int
	decl     int
}

// Tree is a compiled rule forest plus the lookup-list store its
// predicates consult. It is immutable after Compile; all mutable
// correlation state lives in the per-session State passed to Match.
type Tree struct {
	nodes []rnode
	roots []int
	byID  map[int]int
	lists *cdb.Store
}

// Options controls rule compilation.
type Options struct {
	// RegexTimeout bounds each pattern evaluation. Zero selects
	// util.DefaultRegexTimeout.
	RegexTimeout time.Duration
}

// Compile builds the rule tree from specs. Structural problems reject
// the load: duplicate ids, dangling if_sid or if_matched_sid
// references, frequency without a timeframe, and references to unknown
// lookup lists. An already-published ruleset generation is never
// affected.
func Compile(specs []Spec, lists *cdb.Store, opts Options) (*Tree, error) {
	if lists == nil {
		lists = cdb.Empty()
	}
	t := &Tree{byID: make(map[int]int, len(specs)), lists: lists}

	for decl, spec := range specs {
		if _, dup := t.byID[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %d", spec.ID)
		}
		if spec.Frequency > 0 && spec.Timeframe <= 0 {
			return nil, fmt.Errorf("rule %d: frequency requires a timeframe", spec.ID)
		}
		if spec.IfMatchedSID > 0 && spec.Timeframe <= 0 {
			return nil, fmt.Errorf("rule %d: if_matched_sid requires a timeframe", spec.ID)
		}
		if spec.IfSID == spec.ID {
			return nil, fmt.Errorf("rule %d: if_sid references itself", spec.ID)
		}

		n := rnode{spec: spec, decl: decl, window: time.Duration(spec.Timeframe) * time.Second}
		var err error
		if spec.Regex != "" {
			if n.regex, err = util.CompilePattern(spec.Regex, opts.RegexTimeout); err != nil {
				return nil, fmt.Errorf("rule %d: regex: %w", spec.ID, err)
			}
		}
		if n.fields, err = compilePreds(spec.Fields, opts.RegexTimeout); err != nil {
			return nil, fmt.Errorf("rule %d: %w", spec.ID, err)
		}
		if n.anyOf, err = compilePreds(spec.AnyOf, opts.RegexTimeout); err != nil {
			return nil, fmt.Errorf("rule %d: any_of: %w", spec.ID, err)
		}
		for _, lp := range spec.Lists {
			if !lists.Has(lp.List) {
				return nil, fmt.Errorf("rule %d: unknown lookup list %q", spec.ID, lp.List)
			}
		}

		idx := len(t.nodes)
		t.nodes = append(t.nodes, n)
		t.byID[spec.ID] = idx

		if spec.IfSID == 0 {
			t.roots = append(t.roots, idx)
			continue
		}
		parent, ok := t.byID[spec.IfSID]
		if !ok {
			return nil, fmt.Errorf("rule %d: if_sid %d not declared (parents must be declared first)", spec.ID, spec.IfSID)
		}
		t.nodes[parent].children = append(t.nodes[parent].children, idx)
	}

	// Correlation references may point forward, so resolve them after
	// the whole arena exists.
	for _, n := range t.nodes {
		if n.spec.IfMatchedSID > 0 {
			if _, ok := t.byID[n.spec.IfMatchedSID]; !ok {
				return nil, fmt.Errorf("rule %d: if_matched_sid %d does not exist", n.spec.ID, n.spec.IfMatchedSID)
			}
		}
	}

	// Top-level evaluation order: level ascending, then declaration
	// order. Children stay in declaration order.
	sort.SliceStable(t.roots, func(i, j int) bool {
		a, b := &t.nodes[t.roots[i]], &t.nodes[t.roots[j]]
		if a.spec.Level != b.spec.Level {
			return a.spec.Level < b.spec.Level
		}
		return a.decl < b.decl
	})

	return t, nil
}

func compilePreds(preds []FieldPredicate, timeout time.Duration) ([]compiledPred, error) {
	out := make([]compiledPred, 0, len(preds))
	for _, p := range preds {
		pat, err := util.CompilePattern(p.Pattern, timeout)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", p.Field, err)
		}
		out = append(out, compiledPred{field: p.Field, pattern: pat, negate: p.Negate})
	}
	return out, nil
}

// Len returns the number of rules in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Match evaluates the event against the rule forest. The first
// satisfying top-level rule is the primary match; its if_sid children
// are then attempted and the deepest satisfying descendant supersedes
// it. The final match is recorded into st so later if_matched_sid
// predicates can see it. A nil result is the normal no-match outcome.
func (t *Tree) Match(ev *core.Event, st *State) *core.MatchResult {
	for _, ri := range t.roots {
		if !t.satisfies(ri, ev, st) {
			continue
		}
		idx := t.descend(ri, ev, st)
		n := &t.nodes[idx]
		st.RecordMatch(n.spec.ID, ev.Timestamp)
		res := &core.MatchResult{
			RuleID:      n.spec.ID,
			Level:       n.spec.Level,
			Description: n.spec.Description,
		}
		if len(n.spec.AddFields) > 0 {
			res.AddedFields = make(map[string]string, len(n.spec.AddFields))
			for k, v := range n.spec.AddFields {
				res.AddedFields[k] = v
			}
		}
		return res
	}
	return nil
}

// descend walks if_sid children depth-first; the first satisfying
// child at each level wins and the walk continues beneath it.
func (t *Tree) descend(idx int, ev *core.Event, st *State) int {
	for _, ci := range t.nodes[idx].children {
		if t.satisfies(ci, ev, st) {
			return t.descend(ci, ev, st)
		}
	}
	return idx
}

// satisfies checks every predicate on one rule. The frequency check
// runs last: the event's timestamp is recorded only once all other
// predicates hold, then pass/fail is re-derived from the updated
// window.
func (t *Tree) satisfies(idx int, ev *core.Event, st *State) bool {
	n := &t.nodes[idx]

	if n.spec.DecodedAs != "" && !ev.DecodedBy(n.spec.DecodedAs) {
		return false
	}
	if n.spec.Match != "" && !strings.Contains(ev.RawLog, n.spec.Match) {
		return false
	}
	if n.regex != nil {
		ok, err := n.regex.MatchString(ev.RawLog)
		if err != nil || !ok {
			return false
		}
	}

	for _, p := range n.fields {
		if !evalPred(p, ev) {
			return false
		}
	}
	if len(n.anyOf) > 0 {
		any := false
		for _, p := range n.anyOf {
			if evalPred(p, ev) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}

	for _, lp := range n.spec.Lists {
		key := ev.Field(lp.Field)
		if key == "" {
			return false
		}
		_, found := t.lists.Lookup(lp.List, key)
		if lp.Lookup == LookupNotMatch {
			if found {
				return false
			}
		} else if !found {
			return false
		}
	}

	if n.spec.IfMatchedSID > 0 {
		if !st.HasMatchWithinWindow(n.spec.IfMatchedSID, n.window, ev.Timestamp) {
			return false
		}
	}

	if n.spec.Frequency > 0 {
		group := GroupKey(ev, n.spec.SameFields)
		st.Record(n.spec.ID, group, ev.Timestamp)
		return st.CountWithinWindow(n.spec.ID, group, n.window, ev.Timestamp) >= n.spec.Frequency
	}

	return true
}

// evalPred applies one field predicate. An absent field never matches
// the pattern, so a negated predicate holds for absent fields.
func evalPred(p compiledPred, ev *core.Event) bool {
	value, present := ev.Fields[p.field]
	matched := false
	if present {
		ok, err := p.pattern.MatchString(value)
		matched = err == nil && ok
	}
	return matched != p.negate
}
