package ruleset

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"argus/cdb"
	"argus/decode"
	"argus/detect"
)

// Paths names the ruleset files a generation is built from.
type Paths struct {
	Decoders string
	Rules    string
	Lists    string
}

// Options controls compilation of a generation.
type Options struct {
	RegexTimeout     time.Duration
	DisablePrefilter bool
}

// Generation is one immutable, fully compiled ruleset snapshot. Every
// field is read-only after Build; sessions share a generation without
// locking and keep it alive for as long as they exist.
type Generation struct {
	Version   int
	Decoders  *decode.Tree
	Rules     *detect.Tree
	Lists     *cdb.Store
	ruleSpecs []detect.Spec
	opts      Options
}

// Build compiles a generation from already-loaded specs.
func Build(version int, decoders []decode.Spec, rules []detect.Spec, lists []cdb.List, opts Options) (*Generation, error) {
	store, err := cdb.Build(lists)
	if err != nil {
		return nil, fmt.Errorf("lookup lists: %w", err)
	}
	dtree, err := decode.Compile(decoders, decode.Options{
		RegexTimeout:     opts.RegexTimeout,
		DisablePrefilter: opts.DisablePrefilter,
	})
	if err != nil {
		return nil, fmt.Errorf("decoder tree: %w", err)
	}
	rtree, err := detect.Compile(rules, store, detect.Options{RegexTimeout: opts.RegexTimeout})
	if err != nil {
		return nil, fmt.Errorf("rule tree: %w", err)
	}
	specs := make([]detect.Spec, len(rules))
	copy(specs, rules)
	return &Generation{
		Version:   version,
		Decoders:  dtree,
		Rules:     rtree,
		Lists:     store,
		ruleSpecs: specs,
		opts:      opts,
	}, nil
}

// PatchRules compiles a session-private rule tree from this
// generation's specs overlaid with patch. Patched ids replace the base
// spec in place; new ids are appended in patch order. The generation
// itself is not modified.
func (g *Generation) PatchRules(patch []detect.Spec) (*detect.Tree, error) {
	if err := ValidatePatch(patch); err != nil {
		return nil, err
	}

	byID := make(map[int]int, len(g.ruleSpecs))
	merged := make([]detect.Spec, len(g.ruleSpecs))
	copy(merged, g.ruleSpecs)
	for i, spec := range merged {
		byID[spec.ID] = i
	}
	for _, spec := range patch {
		if i, ok := byID[spec.ID]; ok {
			merged[i] = spec
			continue
		}
		byID[spec.ID] = len(merged)
		merged = append(merged, spec)
	}

	return detect.Compile(merged, g.Lists, detect.Options{RegexTimeout: g.opts.RegexTimeout})
}

// Provider owns the currently published generation. Current is
// lock-free; Reload loads, validates and compiles a new generation and
// publishes it atomically only when the whole load succeeded, so a bad
// edit on disk can never take down running sessions.
type Provider struct {
	paths   Paths
	opts    Options
	logger  *zap.SugaredLogger
	current atomic.Pointer[Generation]
	version atomic.Int64
}

// NewProvider loads the initial generation; a failure here is fatal to
// startup, matching the rule that configuration errors are resolved
// before any session exists.
func NewProvider(paths Paths, opts Options, logger *zap.SugaredLogger) (*Provider, error) {
	p := &Provider{paths: paths, opts: opts, logger: logger}
	if _, err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Current returns the published generation.
func (p *Provider) Current() *Generation {
	return p.current.Load()
}

// Reload builds and publishes a new generation from the configured
// paths. On error the previous generation stays published.
func (p *Provider) Reload() (*Generation, error) {
	decoders, err := LoadDecoders(p.paths.Decoders)
	if err != nil {
		return nil, err
	}
	rules, err := LoadRules(p.paths.Rules)
	if err != nil {
		return nil, err
	}
	lists, err := LoadLists(p.paths.Lists)
	if err != nil {
		return nil, err
	}

	version := int(p.version.Add(1))
	gen, err := Build(version, decoders, rules, lists, p.opts)
	if err != nil {
		p.version.Add(-1)
		return nil, err
	}

	p.current.Store(gen)
	if p.logger != nil {
		p.logger.Infow("Ruleset generation published",
			"version", gen.Version,
			"decoders", gen.Decoders.Len(),
			"rules", gen.Rules.Len(),
			"lists", len(gen.Lists.Names()))
	}
	return gen, nil
}
