// Package observer implements the passive monitor of a negotiation: it
// collects per-cycle statistics from every unit agent, detects
// quiescence, merges the final candidates and exposes the solution.
package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridmind/swarmplan/internal/monitoring"
	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/sirupsen/logrus"
)

// Controller is the observer's callback surface on the controller.
type Controller interface {
	NegotiationFinished() error
}

// Observer monitors one negotiation at a time.
type Observer struct {
	nAgents int
	log     *logrus.Entry
	ctrl    Controller
	store   monitoring.Store // optional

	mu         sync.Mutex
	names      map[string]string // addr -> unit name
	target     []float64
	weights    []float64
	detector   *MessageCounter
	terminated bool
	candidates []*planning.Candidate
	solution   *planning.Candidate
	solved     chan struct{}
	watchStop  chan struct{}
}

// New creates an observer expecting nAgents unit agents. store may be
// nil to disable persistence.
func New(nAgents int, ctrl Controller, store monitoring.Store, log *logrus.Logger) *Observer {
	return &Observer{
		nAgents: nAgents,
		log:     log.WithField("component", "observer"),
		ctrl:    ctrl,
		store:   store,
		names:   make(map[string]string),
	}
}

// RegisterUnitAgent records a unit agent. Called by all unit agents
// during startup.
func (o *Observer) RegisterUnitAgent(addr, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if name == "" {
		name = addr
	}
	o.names[addr] = name
	o.log.WithFields(logrus.Fields{"addr": addr, "unit": name}).Debug("Unit agent registered")
}

// StartObservation resets the observer for a new negotiation and
// records the topology.
func (o *Observer) StartObservation(edges [][2]string, start time.Time, target, weights []float64) error {
	if len(target) != len(weights) {
		return fmt.Errorf("observer: target and weights lengths differ (%d != %d)", len(target), len(weights))
	}

	o.mu.Lock()
	if o.watchStop != nil {
		close(o.watchStop)
	}
	o.target = target
	o.weights = weights
	o.detector = NewMessageCounter()
	o.terminated = false
	o.candidates = nil
	o.solution = nil
	o.solved = make(chan struct{})
	o.watchStop = make(chan struct{})
	detector, watchStop := o.detector, o.watchStop
	names := make(map[string]string, len(o.names))
	for addr, name := range o.names {
		names[addr] = name
	}
	o.mu.Unlock()

	go o.watchTermination(detector, watchStop)

	if o.store != nil {
		if err := o.store.Setup(start, names); err != nil {
			return fmt.Errorf("observer: setup store: %w", err)
		}
		if err := o.store.StoreTopology(edges); err != nil {
			return fmt.Errorf("observer: store topology: %w", err)
		}
	}
	o.log.WithField("start", start.Format(time.RFC3339)).Info("Observation started")
	return nil
}

// UpdateStats records one agent statistics tuple and feeds the
// termination detector.
func (o *Observer) UpdateStats(s planning.Stats) error {
	o.mu.Lock()
	detector := o.detector
	complete := s.NumOS == o.nAgents
	o.mu.Unlock()
	if detector == nil {
		return fmt.Errorf("observer: no observation running")
	}

	if o.store != nil {
		if err := o.store.Append(monitoring.StatsRow{
			T:        s.T,
			Agent:    s.Agent,
			Perf:     s.Perf,
			Complete: complete,
			MsgsOut:  s.MsgsOut,
			MsgsIn:   s.MsgsIn,
			MsgSent:  s.MsgSent,
		}); err != nil {
			o.log.WithError(err).Warn("Failed to append stats row")
		}
	}

	detector.Update(s.Agent, s.MsgsIn, s.MsgsOut)
	return nil
}

// UpdateFinalCandidate buffers an agent's final candidate. Once all
// agents have reported, the solution is computed and flushed.
func (o *Observer) UpdateFinalCandidate(c *planning.Candidate) error {
	o.mu.Lock()
	o.candidates = append(o.candidates, c)
	ready := len(o.candidates) == o.nAgents
	var candidates []*planning.Candidate
	var terminated bool
	target, weights := o.target, o.weights
	if ready {
		candidates = o.candidates
		terminated = o.terminated
	}
	o.mu.Unlock()

	if !ready {
		return nil
	}
	o.log.Debug("Received all final candidates")

	solution := o.computeSolution(candidates, terminated, target, weights)

	o.mu.Lock()
	o.solution = solution
	solved := o.solved
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.Flush(target, weights, solution); err != nil {
			o.log.WithError(err).Error("Failed to flush negotiation results")
		}
	}
	close(solved)
	return nil
}

// computeSolution picks the final solution. After detected termination
// all candidates are equal and any one will do; after a timeout the
// partial candidates are merged left to right.
func (o *Observer) computeSolution(candidates []*planning.Candidate, terminated bool,
	target, weights []float64) *planning.Candidate {
	if terminated {
		solution := candidates[0]
		for _, c := range candidates[1:] {
			if !c.Equal(solution) {
				o.log.WithField("agent", c.Agent()).Warn("Final candidates diverge after termination")
			}
		}
		return solution
	}
	obj := planning.NewObjective(target, weights)
	solution := candidates[0]
	for _, c := range candidates[1:] {
		solution = planning.MergeCandidates(solution, c, "controller", obj)
	}
	return solution
}

// PassSolution returns the solution of the last negotiation, waiting
// for the candidate merge to complete.
func (o *Observer) PassSolution(ctx context.Context) (*planning.Candidate, error) {
	o.mu.Lock()
	solved := o.solved
	o.mu.Unlock()
	if solved == nil {
		return nil, fmt.Errorf("observer: no observation running")
	}

	select {
	case <-solved:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.solution, nil
}

// Stop cancels the termination watcher and closes the store.
func (o *Observer) Stop() error {
	o.mu.Lock()
	if o.watchStop != nil {
		close(o.watchStop)
		o.watchStop = nil
	}
	o.mu.Unlock()
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// watchTermination waits for the detector to fire, then informs the
// controller.
func (o *Observer) watchTermination(detector *MessageCounter, stop chan struct{}) {
	select {
	case <-detector.Done():
	case <-stop:
		return
	}

	o.mu.Lock()
	o.terminated = true
	o.mu.Unlock()

	o.log.Info("Negotiation terminated")
	if err := o.ctrl.NegotiationFinished(); err != nil {
		o.log.WithError(err).Warn("Failed to report termination to controller")
	}
}
