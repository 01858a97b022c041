package planning

import (
	"fmt"
	"maps"
	"slices"
)

// Candidate is an immutable proposed joint solution: a cluster schedule
// over the agents its author has heard of, plus the performance score of
// that schedule against the negotiation target.
//
// As with SystemConfig, mutating operations return new instances and
// Merge preserves pointer identity on no-ops.
type Candidate struct {
	agent string
	idx   map[string]int
	cs    []Schedule
	sids  []int
	perf  float64
}

// CandidateData is one agent's row of a candidate.
type CandidateData struct {
	Sched Schedule
	SID   int
}

// NewCandidate creates a single-agent candidate scored by obj.
func NewCandidate(agent string, sched Schedule, sid int, obj Objective) *Candidate {
	cs := []Schedule{sched}
	return &Candidate{
		agent: agent,
		idx:   map[string]int{agent: 0},
		cs:    cs,
		sids:  []int{sid},
		perf:  obj(cs),
	}
}

// candidateFromConfig builds an unscored candidate over the rows of sc,
// authored by agent. The caller must follow up with Update to assign the
// performance.
func candidateFromConfig(agent string, sc *SystemConfig) *Candidate {
	return &Candidate{
		agent: agent,
		idx:   maps.Clone(sc.idx),
		cs:    slices.Clone(sc.cs),
		sids:  slices.Clone(sc.sids),
	}
}

// Agent returns the name of the agent that authored this candidate.
func (c *Candidate) Agent() string { return c.agent }

// Perf returns the candidate's performance score. Higher is better.
func (c *Candidate) Perf() float64 { return c.perf }

// Size returns the number of agents covered by the candidate.
func (c *Candidate) Size() int { return len(c.idx) }

// Agents returns the agent names ordered by their index.
func (c *Candidate) Agents() []string {
	names := make([]string, len(c.idx))
	for name, i := range c.idx {
		names[i] = name
	}
	return names
}

// ClusterSchedule returns the schedule matrix in index order. The rows
// are shared and must not be modified.
func (c *Candidate) ClusterSchedule() []Schedule { return c.cs }

// SIDs returns the schedule ids in index order.
func (c *Candidate) SIDs() []int { return c.sids }

// Data returns the row stored for agent, or ok == false if the agent is
// not part of the candidate.
func (c *Candidate) Data(agent string) (CandidateData, bool) {
	i, ok := c.idx[agent]
	if !ok {
		return CandidateData{}, false
	}
	return CandidateData{Sched: c.cs[i], SID: c.sids[i]}, true
}

func (c *Candidate) mustData(agent string) CandidateData {
	d, ok := c.Data(agent)
	if !ok {
		panic(fmt.Sprintf("planning: agent %q not in candidate", agent))
	}
	return d
}

// Equal reports semantic equality of two candidates.
func (c *Candidate) Equal(other *Candidate) bool {
	if c == other {
		return true
	}
	if c.agent != other.agent || c.perf != other.perf ||
		!maps.Equal(c.idx, other.idx) || !slices.Equal(c.sids, other.sids) {
		return false
	}
	for i := range c.cs {
		if !c.cs[i].Equal(other.cs[i]) {
			return false
		}
	}
	return true
}

// MergeCandidates decides between the receiver-side candidate a and the
// incoming candidate b:
//
//   - if a's keyset is a strict subset of b's, b wins;
//   - if the keysets are equal, the better perf wins, with exact ties
//     broken towards the lexicographically smaller author name;
//   - if b knows agents a does not (and vice versa), a new candidate
//     authored by me is built over the union, preferring a's rows, and
//     scored with obj;
//   - otherwise a is kept.
//
// A no-op returns a itself, preserving the pointer-identity contract.
func MergeCandidates(a, b *Candidate, me string, obj Objective) *Candidate {
	subset, equal := compareKeysets(a.idx, b.idx)

	switch {
	case subset:
		return b
	case equal:
		if b.perf > a.perf {
			return b
		}
		if b.perf == a.perf && b.agent < a.agent {
			return b
		}
		return a
	case hasExtraKeys(b.idx, a.idx):
		names := unionSorted(a.idx, b.idx)
		idx := make(map[string]int, len(names))
		cs := make([]Schedule, 0, len(names))
		sids := make([]int, 0, len(names))
		for i, name := range names {
			idx[name] = i
			d, ok := a.Data(name)
			if !ok {
				d = b.mustData(name)
			}
			cs = append(cs, d.Sched)
			sids = append(sids, d.SID)
		}
		return &Candidate{agent: me, idx: idx, cs: cs, sids: sids, perf: obj(cs)}
	default:
		return a
	}
}

// Update clones the candidate with a new schedule row for agent and
// recomputes the performance with obj.
func (c *Candidate) Update(agent string, sched Schedule, sid int, obj Objective) *Candidate {
	i, ok := c.idx[agent]
	if !ok {
		panic(fmt.Sprintf("planning: cannot update unknown agent %q", agent))
	}
	cs := slices.Clone(c.cs)
	cs[i] = sched.Clone()
	sids := slices.Clone(c.sids)
	sids[i] = sid
	return &Candidate{
		agent: agent,
		idx:   maps.Clone(c.idx),
		cs:    cs,
		sids:  sids,
		perf:  obj(cs),
	}
}

// compareKeysets reports whether the keys of a form a strict subset of
// the keys of b, and whether the keysets are equal.
func compareKeysets(a, b map[string]int) (subset, equal bool) {
	missing := false
	for name := range a {
		if _, ok := b[name]; !ok {
			missing = true
			break
		}
	}
	if missing {
		return false, false
	}
	if len(a) == len(b) {
		return false, true
	}
	return true, false
}

// hasExtraKeys reports whether a contains at least one key not in b.
func hasExtraKeys(a, b map[string]int) bool {
	for name := range a {
		if _, ok := b[name]; !ok {
			return true
		}
	}
	return false
}
