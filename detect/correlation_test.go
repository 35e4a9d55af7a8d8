package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/core"
)

var t0 = time.Date(2025, 10, 11, 12, 0, 0, 0, time.UTC)

func TestCountWithinWindow(t *testing.T) {
	st := NewState()
	window := 60 * time.Second

	st.Record(100, "1.2.3.4", t0)
	st.Record(100, "1.2.3.4", t0.Add(10*time.Second))
	st.Record(100, "1.2.3.4", t0.Add(20*time.Second))

	assert.Equal(t, 3, st.CountWithinWindow(100, "1.2.3.4", window, t0.Add(20*time.Second)))

	// 70s after the first event only the later two remain in window.
	assert.Equal(t, 2, st.CountWithinWindow(100, "1.2.3.4", window, t0.Add(70*time.Second)))
}

func TestCountWithinWindowSeparatesGroups(t *testing.T) {
	st := NewState()
	window := 60 * time.Second

	st.Record(100, "1.2.3.4", t0)
	st.Record(100, "5.6.7.8", t0)

	assert.Equal(t, 1, st.CountWithinWindow(100, "1.2.3.4", window, t0))
	assert.Equal(t, 1, st.CountWithinWindow(100, "5.6.7.8", window, t0))
	assert.Equal(t, 0, st.CountWithinWindow(100, "9.9.9.9", window, t0))
}

func TestPruningIsMonotonic(t *testing.T) {
	st := NewState()
	window := 60 * time.Second

	st.Record(100, "", t0)
	st.Record(100, "", t0.Add(5*time.Second))

	// A read far in the future prunes everything.
	assert.Equal(t, 0, st.CountWithinWindow(100, "", window, t0.Add(time.Hour)))

	// Reading with an earlier "now" must not resurrect pruned entries.
	assert.Equal(t, 0, st.CountWithinWindow(100, "", window, t0.Add(10*time.Second)))
	assert.Equal(t, 0, st.Len())
}

func TestRecordCapsHistory(t *testing.T) {
	st := NewState()
	for i := 0; i < core.MaxCorrelationEventsPerKey+100; i++ {
		st.Record(100, "", t0.Add(time.Duration(i)*time.Millisecond))
	}
	assert.Equal(t, core.MaxCorrelationEventsPerKey, st.Len())
}

func TestHasMatchWithinWindow(t *testing.T) {
	st := NewState()
	window := 60 * time.Second

	assert.False(t, st.HasMatchWithinWindow(200, window, t0))

	st.RecordMatch(200, t0)
	assert.True(t, st.HasMatchWithinWindow(200, window, t0.Add(59*time.Second)))
	assert.False(t, st.HasMatchWithinWindow(200, window, t0.Add(2*time.Minute)))

	// The expiry read pruned the entry for good.
	assert.False(t, st.HasMatchWithinWindow(200, window, t0.Add(30*time.Second)))
}

func TestGroupKey(t *testing.T) {
	ev := core.NewEvent("line", t0)
	ev.Fields["srcip"] = "1.2.3.4"
	ev.Fields["user"] = "root"

	assert.Equal(t, "", GroupKey(ev, nil))
	assert.Equal(t, "1.2.3.4", GroupKey(ev, []string{"srcip"}))
	assert.Equal(t, "1.2.3.4\x00root", GroupKey(ev, []string{"srcip", "user"}))

	// Absent fields contribute an empty segment.
	assert.Equal(t, "1.2.3.4\x00", GroupKey(ev, []string{"srcip", "dstip"}))

	other := core.NewEvent("other", t0)
	other.Fields["srcip"] = "1.2.3.4"
	require.Equal(t, GroupKey(ev, []string{"srcip"}), GroupKey(other, []string{"srcip"}))
}
