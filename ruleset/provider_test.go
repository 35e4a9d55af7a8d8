package ruleset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/detect"
)

func testPaths() Paths {
	return Paths{
		Decoders: "testdata/decoders.yaml",
		Rules:    "testdata/rules.yaml",
		Lists:    "testdata/lists.yaml",
	}
}

func newTestProvider(t *testing.T, paths Paths) *Provider {
	t.Helper()
	p, err := NewProvider(paths, Options{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	return p
}

func TestProviderInitialLoad(t *testing.T) {
	p := newTestProvider(t, testPaths())

	gen := p.Current()
	require.NotNil(t, gen)
	assert.Equal(t, 1, gen.Version)
	assert.Equal(t, 3, gen.Decoders.Len())
	assert.Equal(t, 3, gen.Rules.Len())
	assert.Equal(t, []string{"bad_ips"}, gen.Lists.Names())
}

func TestProviderInitialLoadFailureIsFatal(t *testing.T) {
	_, err := NewProvider(Paths{
		Decoders: "testdata/decoders.yaml",
		Rules:    "testdata/bad_rules.yaml",
	}, Options{}, zap.NewNop().Sugar())
	assert.ErrorContains(t, err, "duplicate rule id")
}

func TestProviderReloadPublishesNewGeneration(t *testing.T) {
	dir := t.TempDir()
	paths := copyRuleset(t, dir)
	p := newTestProvider(t, paths)

	before := p.Current()

	// Grow the rule file and reload.
	extra := `
  - id: 900
    level: 4
    match: 'sudo'
`
	appendFile(t, paths.Rules, extra)
	gen, err := p.Reload()
	require.NoError(t, err)

	assert.Equal(t, before.Version+1, gen.Version)
	assert.Equal(t, before.Rules.Len()+1, gen.Rules.Len())
	assert.Same(t, gen, p.Current())

	// The generation handed out before the reload is untouched.
	assert.Equal(t, 3, before.Rules.Len())
}

func TestProviderReloadFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	paths := copyRuleset(t, dir)
	p := newTestProvider(t, paths)

	before := p.Current()

	require.NoError(t, os.WriteFile(paths.Rules, []byte("rules: [\n"), 0o644))
	_, err := p.Reload()
	require.Error(t, err)

	assert.Same(t, before, p.Current())
}

func TestGenerationPatchRulesReplacesInPlace(t *testing.T) {
	p := newTestProvider(t, testPaths())
	gen := p.Current()

	tree, err := gen.PatchRules([]detect.Spec{
		{ID: 100, Level: 8, DecodedAs: "sshd", Match: "Failed password",
			Fields: []detect.FieldPredicate{{Field: "srcip", Pattern: `.+`}}},
	})
	require.NoError(t, err)

	// Same rule count: id 100 was replaced, not appended.
	assert.Equal(t, gen.Rules.Len(), tree.Len())
	// The shared generation tree is untouched.
	assert.NotSame(t, gen.Rules, tree)
}

func TestGenerationPatchRulesAppendsNewIDs(t *testing.T) {
	p := newTestProvider(t, testPaths())
	gen := p.Current()

	tree, err := gen.PatchRules([]detect.Spec{
		{ID: 500, Level: 7, Match: "segfault"},
	})
	require.NoError(t, err)
	assert.Equal(t, gen.Rules.Len()+1, tree.Len())
}

func TestGenerationPatchRulesRejectsInvalid(t *testing.T) {
	p := newTestProvider(t, testPaths())
	gen := p.Current()

	_, err := gen.PatchRules([]detect.Spec{
		{ID: 500, Level: 7, Regex: "(unclosed"},
	})
	assert.Error(t, err)

	_, err = gen.PatchRules(nil)
	assert.Error(t, err)
}

func copyRuleset(t *testing.T, dir string) Paths {
	t.Helper()
	paths := Paths{
		Decoders: filepath.Join(dir, "decoders.yaml"),
		Rules:    filepath.Join(dir, "rules.yaml"),
		Lists:    filepath.Join(dir, "lists.yaml"),
	}
	copyFile(t, "testdata/decoders.yaml", paths.Decoders)
	copyFile(t, "testdata/rules.yaml", paths.Rules)
	copyFile(t, "testdata/lists.yaml", paths.Lists)
	return paths
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o644))
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}
