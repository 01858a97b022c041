// Package monitoring persists negotiation results and per-cycle agent
// statistics: one hierarchical group per negotiation, keyed by its start
// date.
package monitoring

import (
	"sync"
	"time"

	"github.com/gridmind/swarmplan/internal/planning"
)

// StatsRow is one per-cycle statistics record of one agent.
type StatsRow struct {
	T        float64 `json:"t"`
	Agent    string  `json:"agent"`
	Perf     float64 `json:"perf"`
	Complete bool    `json:"complete"`
	MsgsOut  int     `json:"msgs_out"`
	MsgsIn   int     `json:"msgs_in"`
	MsgSent  bool    `json:"msg_sent"`
}

// AgentDetail records one agent's place in the final solution.
type AgentDetail struct {
	Name  string `json:"name"`
	Addr  string `json:"addr"`
	Index int    `json:"index"`
	SID   int    `json:"sid"`
}

// Store is the result sink of the observer.
type Store interface {
	// Setup opens the group for a negotiation starting at start.
	// names maps agent addresses to unit names.
	Setup(start time.Time, names map[string]string) error

	// StoreTopology writes the topology edge list into the open group.
	StoreTopology(edges [][2]string) error

	// Append buffers one statistics row.
	Append(row StatsRow) error

	// Flush writes target, weights, solution and the buffered rows.
	Flush(target, weights []float64, solution *planning.Candidate) error

	// Close releases the store.
	Close() error
}

// GroupKey formats the group name for a negotiation start date.
func GroupKey(start time.Time) string {
	return start.UTC().Format("20060102")
}

// agentDetails extracts the per-agent rows of a solution in index order.
func agentDetails(solution *planning.Candidate, names map[string]string) []AgentDetail {
	agents := solution.Agents()
	sids := solution.SIDs()
	details := make([]AgentDetail, len(agents))
	for i, addr := range agents {
		name := names[addr]
		if name == "" {
			name = addr
		}
		details[i] = AgentDetail{Name: name, Addr: addr, Index: i, SID: sids[i]}
	}
	return details
}

// Group holds the recorded data of one negotiation.
type Group struct {
	Start    time.Time     `json:"start"`
	Topology [][2]string   `json:"topology"`
	Target   []float64     `json:"target"`
	Weights  []float64     `json:"weights"`
	CS       [][]float64   `json:"cs"`
	Perf     float64       `json:"perf"`
	Stats    []StatsRow    `json:"stats"`
	Agents   []AgentDetail `json:"agents"`
}

// MemoryStore keeps all groups in memory. It is the default sink for
// standalone runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	groups  map[string]*Group
	current *Group
	names   map[string]string
	pending []StatsRow
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]*Group)}
}

// Setup opens a new group for start.
func (s *MemoryStore) Setup(start time.Time, names map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &Group{Start: start}
	s.groups[GroupKey(start)] = g
	s.current = g
	s.names = names
	s.pending = nil
	return nil
}

// StoreTopology records the topology edge list.
func (s *MemoryStore) StoreTopology(edges [][2]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Topology = edges
	}
	return nil
}

// Append buffers one statistics row.
func (s *MemoryStore) Append(row StatsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, row)
	return nil
}

// Flush finalizes the open group with the negotiation solution.
func (s *MemoryStore) Flush(target, weights []float64, solution *planning.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	s.current.Target = target
	s.current.Weights = weights
	cs := solution.ClusterSchedule()
	rows := make([][]float64, len(cs))
	for i, row := range cs {
		rows[i] = row
	}
	s.current.CS = rows
	s.current.Perf = solution.Perf()
	s.current.Stats = s.pending
	s.current.Agents = agentDetails(solution, s.names)
	s.pending = nil
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Group returns the recorded group for a start date.
func (s *MemoryStore) Group(start time.Time) (*Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[GroupKey(start)]
	return g, ok
}

// Latest returns the group opened most recently.
func (s *MemoryStore) Latest() *Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
