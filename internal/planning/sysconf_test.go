package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemConfigMergeIdentity(t *testing.T) {
	sc := NewSystemConfig("a0", Schedule{1, 2}, 0)

	merged := MergeSystemConfigs(sc, sc)
	assert.Same(t, sc, merged, "no-op merge must return the original instance")
}

func TestSystemConfigMergeUnion(t *testing.T) {
	a := NewSystemConfig("a0", Schedule{1, 2}, 0)
	b := NewSystemConfig("a1", Schedule{3, 4}, 7)

	merged := MergeSystemConfigs(a, b)
	require.NotSame(t, a, merged)
	assert.Equal(t, []string{"a0", "a1"}, merged.Agents())
	assert.Equal(t, []int{0, 7}, merged.SIDs())

	d, ok := merged.Data("a1")
	require.True(t, ok)
	assert.Equal(t, Schedule{3, 4}, d.Sched)
}

func TestSystemConfigMergeCounterWins(t *testing.T) {
	a := NewSystemConfig("a0", Schedule{0, 0}, 0)
	b := a.Update("a0", Schedule{5, 5}, 1) // cnt 1

	merged := MergeSystemConfigs(a, b)
	require.NotSame(t, a, merged)
	d, ok := merged.Data("a0")
	require.True(t, ok)
	assert.Equal(t, 1, d.SID)
	assert.Equal(t, Schedule{5, 5}, d.Sched)

	// The other direction keeps the newer side untouched.
	assert.Same(t, b, MergeSystemConfigs(b, a))
}

func TestSystemConfigMergeCounterMonotonic(t *testing.T) {
	a := NewSystemConfig("a0", Schedule{0}, 0).Update("a0", Schedule{1}, 1)
	b := MergeSystemConfigs(NewSystemConfig("a1", Schedule{2}, 0), a)

	merged := MergeSystemConfigs(a, b)
	for _, name := range merged.Agents() {
		got, ok := merged.Data(name)
		require.True(t, ok)
		if d, ok := a.Data(name); ok {
			assert.GreaterOrEqual(t, got.Count, d.Count)
		}
		if d, ok := b.Data(name); ok {
			assert.GreaterOrEqual(t, got.Count, d.Count)
		}
	}
}

func TestSystemConfigUpdate(t *testing.T) {
	sc := NewSystemConfig("a0", Schedule{0, 0}, 0)
	updated := sc.Update("a0", Schedule{9, 9}, 3)

	require.NotSame(t, sc, updated)
	d, ok := updated.Data("a0")
	require.True(t, ok)
	assert.Equal(t, 3, d.SID)
	assert.Equal(t, 1, d.Count)

	// The original is untouched.
	orig, _ := sc.Data("a0")
	assert.Equal(t, 0, orig.Count)
	assert.Equal(t, Schedule{0, 0}, orig.Sched)
}

func TestSystemConfigEqualImpliesIdentity(t *testing.T) {
	a := NewSystemConfig("a0", Schedule{1}, 0)
	b := NewSystemConfig("a0", Schedule{1}, 0)

	merged := MergeSystemConfigs(a, b)
	assert.True(t, merged.Equal(a))
	assert.Same(t, a, merged)
}
