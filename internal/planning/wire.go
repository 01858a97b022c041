package planning

import (
	"encoding/json"
	"fmt"
)

// Wire representations of the two shared structures. Agents are listed
// in index order so that the dense index map can be rebuilt on receipt.

type sysConfWire struct {
	Agents []string    `json:"agents"`
	CS     [][]float64 `json:"cs"`
	SIDs   []int       `json:"sids"`
	Cnt    []int       `json:"cnt"`
}

type candidateWire struct {
	Agent  string      `json:"agent"`
	Agents []string    `json:"agents"`
	CS     [][]float64 `json:"cs"`
	SIDs   []int       `json:"sids"`
	Perf   float64     `json:"perf"`
}

// MarshalJSON implements json.Marshaler.
func (sc *SystemConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(sysConfWire{
		Agents: sc.Agents(),
		CS:     rowsOf(sc.cs),
		SIDs:   sc.sids,
		Cnt:    sc.cnt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (sc *SystemConfig) UnmarshalJSON(data []byte) error {
	var w sysConfWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Agents) != len(w.CS) || len(w.Agents) != len(w.SIDs) || len(w.Agents) != len(w.Cnt) {
		return fmt.Errorf("planning: inconsistent system config shapes: %d agents, %d rows, %d sids, %d counters",
			len(w.Agents), len(w.CS), len(w.SIDs), len(w.Cnt))
	}
	sc.idx = indexOf(w.Agents)
	sc.cs = schedulesOf(w.CS)
	sc.sids = w.SIDs
	sc.cnt = w.Cnt
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c *Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(candidateWire{
		Agent:  c.agent,
		Agents: c.Agents(),
		CS:     rowsOf(c.cs),
		SIDs:   c.sids,
		Perf:   c.perf,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var w candidateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Agents) != len(w.CS) || len(w.Agents) != len(w.SIDs) {
		return fmt.Errorf("planning: inconsistent candidate shapes: %d agents, %d rows, %d sids",
			len(w.Agents), len(w.CS), len(w.SIDs))
	}
	c.agent = w.Agent
	c.idx = indexOf(w.Agents)
	c.cs = schedulesOf(w.CS)
	c.sids = w.SIDs
	c.perf = w.Perf
	return nil
}

func rowsOf(cs []Schedule) [][]float64 {
	rows := make([][]float64, len(cs))
	for i, row := range cs {
		rows[i] = row
	}
	return rows
}

func schedulesOf(rows [][]float64) []Schedule {
	cs := make([]Schedule, len(rows))
	for i, row := range rows {
		cs[i] = Schedule(row)
	}
	return cs
}

func indexOf(agents []string) map[string]int {
	idx := make(map[string]int, len(agents))
	for i, name := range agents {
		idx[name] = i
	}
	return idx
}
