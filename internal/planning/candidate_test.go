package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testObjective() Objective {
	return NewObjective([]float64{2, 2}, []float64{1, 1})
}

func TestCandidateMergeIdentity(t *testing.T) {
	obj := testObjective()
	c := NewCandidate("a0", Schedule{1, 1}, 0, obj)

	assert.Same(t, c, MergeCandidates(c, c, "a0", obj))
}

func TestCandidateMergeSubsetPrefersLarger(t *testing.T) {
	obj := testObjective()
	small := NewCandidate("a0", Schedule{1, 1}, 0, obj)
	big := MergeCandidates(small, NewCandidate("a1", Schedule{0, 0}, 0, obj), "a1", obj)
	require.Equal(t, 2, big.Size())

	assert.Same(t, big, MergeCandidates(small, big, "a0", obj))
}

func TestCandidateMergeEqualKeysPerfWins(t *testing.T) {
	obj := testObjective()
	worse := NewCandidate("a0", Schedule{0, 0}, 0, obj)  // perf -4
	better := NewCandidate("a0", Schedule{2, 2}, 1, obj) // perf 0

	assert.Same(t, better, MergeCandidates(worse, better, "me", obj))
	assert.Same(t, better, MergeCandidates(better, worse, "me", obj))
}

func TestCandidateMergeTieBreakByName(t *testing.T) {
	obj := testObjective()
	ci := NewCandidate("b", Schedule{1, 1}, 0, obj)
	cj := NewCandidate("a", Schedule{1, 1}, 0, obj)
	require.Equal(t, ci.Perf(), cj.Perf())

	// idx keysets must match for the tie-break branch.
	ci = &Candidate{agent: "b", idx: map[string]int{"x": 0}, cs: []Schedule{{1, 1}}, sids: []int{0}, perf: -2}
	cj = &Candidate{agent: "a", idx: map[string]int{"x": 0}, cs: []Schedule{{1, 1}}, sids: []int{0}, perf: -2}

	assert.Equal(t, "a", MergeCandidates(ci, cj, "me", obj).Agent())
	assert.Equal(t, "a", MergeCandidates(cj, ci, "me", obj).Agent())
}

func TestCandidateMergeOverlappingUnionAuthoredByMe(t *testing.T) {
	obj := testObjective()
	ci := NewCandidate("a0", Schedule{2, 0}, 1, obj)
	cj := &Candidate{
		agent: "a1",
		idx:   map[string]int{"a0": 0, "a1": 1},
		cs:    []Schedule{{0, 0}, {0, 2}},
		sids:  []int{0, 1},
		perf:  obj([]Schedule{{0, 0}, {0, 2}}),
	}
	// Make the keysets overlap without subset relation.
	ci = &Candidate{
		agent: "a0",
		idx:   map[string]int{"a0": 0, "a2": 1},
		cs:    []Schedule{{2, 0}, {0, 0}},
		sids:  []int{1, 0},
		perf:  obj([]Schedule{{2, 0}, {0, 0}}),
	}

	merged := MergeCandidates(ci, cj, "a0", obj)
	require.NotSame(t, ci, merged)
	assert.Equal(t, "a0", merged.Agent())
	assert.Equal(t, []string{"a0", "a1", "a2"}, merged.Agents())

	// Rows come from ci where present, cj otherwise.
	d, ok := merged.Data("a0")
	require.True(t, ok)
	assert.Equal(t, Schedule{2, 0}, d.Sched)
	d, ok = merged.Data("a1")
	require.True(t, ok)
	assert.Equal(t, Schedule{0, 2}, d.Sched)

	// perf recomputed over the union: sums are [2,2] -> 0.
	assert.InDelta(t, 0.0, merged.Perf(), 1e-12)
}

func TestCandidateUpdateRecomputesPerf(t *testing.T) {
	obj := testObjective()
	c := NewCandidate("a0", Schedule{0, 0}, 0, obj)
	require.InDelta(t, -4.0, c.Perf(), 1e-12)

	updated := c.Update("a0", Schedule{2, 2}, 1, obj)
	require.NotSame(t, c, updated)
	assert.InDelta(t, 0.0, updated.Perf(), 1e-12)
	d, _ := updated.Data("a0")
	assert.Equal(t, 1, d.SID)
}
