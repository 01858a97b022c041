package planning

import (
	"fmt"
	"maps"
	"slices"
)

// SystemConfig is an immutable snapshot of "who chose what, and when":
// for every agent this agent has heard of, the operation schedule the
// agent is believed to have selected, its schedule id and a selection
// counter that increments whenever the agent updates its own row.
//
// All mutating operations return a new instance. Merge returns the
// receiver-side instance unchanged (pointer-identical) when the merge is
// a no-op; callers use pointer identity as the "did anything change?"
// signal.
type SystemConfig struct {
	idx  map[string]int
	cs   []Schedule
	sids []int
	cnt  []int
}

// AgentData is one agent's row of a SystemConfig.
type AgentData struct {
	Sched Schedule
	SID   int
	Count int
}

// NewSystemConfig creates the initial single-agent configuration with a
// zero selection counter.
func NewSystemConfig(agent string, sched Schedule, sid int) *SystemConfig {
	return &SystemConfig{
		idx:  map[string]int{agent: 0},
		cs:   []Schedule{sched},
		sids: []int{sid},
		cnt:  []int{0},
	}
}

// Agents returns the agent names ordered by their index.
func (sc *SystemConfig) Agents() []string {
	names := make([]string, len(sc.idx))
	for name, i := range sc.idx {
		names[i] = name
	}
	return names
}

// Size returns the number of agents in the configuration.
func (sc *SystemConfig) Size() int {
	return len(sc.idx)
}

// ClusterSchedule returns the k x intervals schedule matrix in index
// order. The returned rows are shared and must not be modified.
func (sc *SystemConfig) ClusterSchedule() []Schedule {
	return sc.cs
}

// SIDs returns the schedule ids in index order.
func (sc *SystemConfig) SIDs() []int {
	return sc.sids
}

// Counters returns the selection counters in index order.
func (sc *SystemConfig) Counters() []int {
	return sc.cnt
}

// Data returns the row stored for agent, or ok == false if the agent is
// unknown to this configuration.
func (sc *SystemConfig) Data(agent string) (AgentData, bool) {
	i, ok := sc.idx[agent]
	if !ok {
		return AgentData{}, false
	}
	return AgentData{Sched: sc.cs[i], SID: sc.sids[i], Count: sc.cnt[i]}, true
}

func (sc *SystemConfig) mustData(agent string) AgentData {
	d, ok := sc.Data(agent)
	if !ok {
		panic(fmt.Sprintf("planning: agent %q not in system config", agent))
	}
	return d
}

// Equal reports semantic equality of two configurations.
func (sc *SystemConfig) Equal(other *SystemConfig) bool {
	if sc == other {
		return true
	}
	if !maps.Equal(sc.idx, other.idx) ||
		!slices.Equal(sc.sids, other.sids) ||
		!slices.Equal(sc.cnt, other.cnt) {
		return false
	}
	for i := range sc.cs {
		if !sc.cs[i].Equal(other.cs[i]) {
			return false
		}
	}
	return true
}

// MergeSystemConfigs merges two configurations: for every agent in
// either keyset the row with the higher selection counter wins, with the
// receiver side (a) winning ties. If b contributes nothing, a is
// returned unchanged, so merge(a, b) == a implies merge(a, b) is a.
func MergeSystemConfigs(a, b *SystemConfig) *SystemConfig {
	modified := false

	names := unionSorted(a.idx, b.idx)
	idx := make(map[string]int, len(names))
	cs := make([]Schedule, 0, len(names))
	sids := make([]int, 0, len(names))
	cnt := make([]int, 0, len(names))

	// Keep agents sorted so that all agents build the same index map.
	for i, name := range names {
		var sched Schedule
		sid := 0
		count := -1

		if d, ok := a.Data(name); ok {
			sched, sid, count = d.Sched, d.SID, d.Count
		}
		if d, ok := b.Data(name); ok && d.Count > count {
			modified = true
			sched, sid, count = d.Sched, d.SID, d.Count
		}

		idx[name] = i
		cs = append(cs, sched)
		sids = append(sids, sid)
		cnt = append(cnt, count)
	}

	if !modified {
		return a
	}
	return &SystemConfig{idx: idx, cs: cs, sids: sids, cnt: cnt}
}

// Update clones the configuration with a new schedule and schedule id
// for agent, incrementing the agent's selection counter. The agent must
// already be part of the configuration.
func (sc *SystemConfig) Update(agent string, sched Schedule, sid int) *SystemConfig {
	i, ok := sc.idx[agent]
	if !ok {
		panic(fmt.Sprintf("planning: cannot update unknown agent %q", agent))
	}
	cs := slices.Clone(sc.cs)
	cs[i] = sched.Clone()
	sids := slices.Clone(sc.sids)
	sids[i] = sid
	cnt := slices.Clone(sc.cnt)
	cnt[i]++
	return &SystemConfig{idx: maps.Clone(sc.idx), cs: cs, sids: sids, cnt: cnt}
}

func unionSorted(a, b map[string]int) []string {
	names := make([]string, 0, len(a)+len(b))
	for name := range a {
		names = append(names, name)
	}
	for name := range b {
		if _, ok := a[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
