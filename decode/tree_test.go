package decode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/core"
)

func sshdSpecs() []Spec {
	return []Spec{
		{
			Name:     "sshd",
			Prematch: `sshd\[\d+\]: `,
		},
		{
			Name:   "sshd-fail",
			Parent: "sshd",
			Offset: OffsetAfterParent,
			Regex:  `^Failed password for (\S+) from (\S+)`,
			Order:  []string{"user", "srcip"},
		},
		{
			Name:   "sshd-accept",
			Parent: "sshd",
			Offset: OffsetAfterParent,
			Regex:  `^Accepted password for (\S+) from (\S+)`,
			Order:  []string{"user", "srcip"},
		},
	}
}

func decodeLine(t *testing.T, tree *Tree, line string) *core.Event {
	t.Helper()
	ev := core.NewEvent(line, time.Now())
	tree.Decode(ev)
	return ev
}

func TestDecodeParentChild(t *testing.T) {
	tree, err := Compile(sshdSpecs(), Options{})
	require.NoError(t, err)

	ev := decodeLine(t, tree,
		"Oct 11 12:00:00 host sshd[123]: Failed password for root from 1.2.3.4 port 22")

	assert.True(t, ev.Decoded())
	assert.Equal(t, []string{"sshd", "sshd-fail"}, ev.DecoderPath)
	assert.Equal(t, "root", ev.Field("user"))
	assert.Equal(t, "1.2.3.4", ev.Field("srcip"))
}

func TestDecodeMultibytePrefix(t *testing.T) {
	tree, err := Compile(sshdSpecs(), Options{})
	require.NoError(t, err)

	ev := decodeLine(t, tree,
		"10月11日 日本語ホスト sshd[123]: Failed password for root from 1.2.3.4 port 22")

	assert.True(t, ev.Decoded())
	assert.Equal(t, []string{"sshd", "sshd-fail"}, ev.DecoderPath)
	assert.Equal(t, "root", ev.Field("user"))
	assert.Equal(t, "1.2.3.4", ev.Field("srcip"))
}

func TestDecodeFirstMatchingChildWins(t *testing.T) {
	tree, err := Compile(sshdSpecs(), Options{})
	require.NoError(t, err)

	ev := decodeLine(t, tree,
		"Oct 11 12:00:00 host sshd[99]: Accepted password for alice from 10.0.0.5 port 22")

	assert.Equal(t, []string{"sshd", "sshd-accept"}, ev.DecoderPath)
	assert.Equal(t, "alice", ev.Field("user"))
}

func TestDecodeParentOnlyWhenNoChildMatches(t *testing.T) {
	tree, err := Compile(sshdSpecs(), Options{})
	require.NoError(t, err)

	ev := decodeLine(t, tree,
		"Oct 11 12:00:00 host sshd[7]: Connection closed by 10.0.0.5")

	assert.Equal(t, []string{"sshd"}, ev.DecoderPath)
	assert.Empty(t, ev.Fields)
}

func TestDecodeUnknownLine(t *testing.T) {
	tree, err := Compile(sshdSpecs(), Options{})
	require.NoError(t, err)

	ev := decodeLine(t, tree, "kernel: usb 1-1: new high-speed USB device")

	assert.False(t, ev.Decoded())
	assert.Empty(t, ev.Fields)
	assert.Empty(t, ev.DecoderPath)
}

func TestDecodeFirstRootWins(t *testing.T) {
	specs := []Spec{
		{Name: "generic-auth", Prematch: `password for`},
		{Name: "sshd", Prematch: `sshd\[\d+\]: `},
	}
	tree, err := Compile(specs, Options{})
	require.NoError(t, err)

	ev := decodeLine(t, tree, "host sshd[1]: Failed password for root")

	// Both roots match; only the first declared one fires.
	assert.Equal(t, []string{"generic-auth"}, ev.DecoderPath)
}

func TestDecodeDeterministic(t *testing.T) {
	tree, err := Compile(sshdSpecs(), Options{})
	require.NoError(t, err)

	line := "host sshd[5]: Failed password for bob from 192.168.1.50 port 2200"
	first := decodeLine(t, tree, line)
	for i := 0; i < 10; i++ {
		ev := decodeLine(t, tree, line)
		assert.Equal(t, first.DecoderPath, ev.DecoderPath)
		assert.Equal(t, first.Fields, ev.Fields)
	}
}

func TestDecodePrefilterEquivalence(t *testing.T) {
	specs := append(sshdSpecs(),
		Spec{Name: "su", Prematch: `su: `},
		Spec{Name: "short", Regex: `^ab(c)`, Order: []string{"x"}},
	)
	withPf, err := Compile(specs, Options{})
	require.NoError(t, err)
	withoutPf, err := Compile(specs, Options{DisablePrefilter: true})
	require.NoError(t, err)

	lines := []string{
		"host sshd[1]: Failed password for root from 1.2.3.4 port 22",
		"host su: pam_unix session opened",
		"abc",
		"completely unrelated line",
		"",
	}
	for _, line := range lines {
		a := decodeLine(t, withPf, line)
		b := decodeLine(t, withoutPf, line)
		assert.Equal(t, b.DecoderPath, a.DecoderPath, "line %q", line)
		assert.Equal(t, b.Fields, a.Fields, "line %q", line)
	}
}

func TestCompileRejectsCaptureCountMismatch(t *testing.T) {
	_, err := Compile([]Spec{{
		Name:  "bad",
		Regex: `(\S+) (\S+)`,
		Order: []string{"only_one"},
	}}, Options{})
	assert.ErrorContains(t, err, "capture groups")
}

func TestCompileRejectsUnknownParent(t *testing.T) {
	_, err := Compile([]Spec{{
		Name:     "orphan",
		Parent:   "never-declared",
		Prematch: "x",
	}}, Options{})
	assert.ErrorContains(t, err, "unknown parent")
}

func TestCompileRejectsDuplicateName(t *testing.T) {
	_, err := Compile([]Spec{
		{Name: "dup", Prematch: "a"},
		{Name: "dup", Prematch: "b"},
	}, Options{})
	assert.ErrorContains(t, err, "duplicate decoder")
}

func TestCompileRejectsEmptyDecoder(t *testing.T) {
	_, err := Compile([]Spec{{Name: "empty"}}, Options{})
	assert.ErrorContains(t, err, "needs a prematch or a regex")
}

func TestCompileRejectsAfterParentWithoutParent(t *testing.T) {
	_, err := Compile([]Spec{{
		Name:     "floating",
		Prematch: "x",
		Offset:   OffsetAfterParent,
	}}, Options{})
	assert.ErrorContains(t, err, "requires a parent")
}

func TestCompileRejectsBadPattern(t *testing.T) {
	_, err := Compile([]Spec{{Name: "bad", Regex: "(unclosed"}}, Options{})
	assert.Error(t, err)
}
