// Package controller implements the negotiation session orchestrator:
// it registers unit agents and the observer, builds the topology,
// distributes the target curve, seeds the protocol, enforces the
// session timeout and broadcasts the final assignment.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/sirupsen/logrus"
)

// UnitAgent is the controller's view of one unit agent.
type UnitAgent interface {
	Addr() string
	NewNegotiation() error
	StoreTopology(ctrlAddr string, neighbors []string, params planning.SessionParams) error
	InitNegotiation() error
	StopNegotiation() error
	SetSchedule(sid int) error
	Stop() error
}

// Observer is the controller's view of the observer.
type Observer interface {
	StartObservation(edges [][2]string, start time.Time, target, weights []float64) error
	PassSolution(ctx context.Context) (*planning.Candidate, error)
}

// Config holds the controller's session parameters.
type Config struct {
	NAgents            int
	SingleStart        bool
	NegotiationTimeout time.Duration
	Resolution         int // seconds per interval
	Period             int // seconds per negotiation horizon
}

// Status is a point-in-time snapshot for the operator surface.
type Status struct {
	AgentsRegistered int     `json:"agents_registered"`
	AgentsExpected   int     `json:"agents_expected"`
	ObserverReady    bool    `json:"observer_ready"`
	Running          bool    `json:"running"`
	Negotiations     int     `json:"negotiations"`
	LastStart        string  `json:"last_start,omitempty"`
	LastPerf         float64 `json:"last_perf"`
}

// Controller orchestrates negotiations over a fixed set of unit agents.
type Controller struct {
	cfg  Config
	addr string
	log  *logrus.Entry
	topo *TopologyManager

	mu            sync.Mutex
	agents        []UnitAgent
	names         map[string]string // addr -> unit name
	observer      Observer
	agentsReady   chan struct{}
	observerReady chan struct{}
	negDone       chan struct{}
	running       bool
	negotiations  int
	lastStart     time.Time
	lastSolution  *planning.Candidate
}

// New creates a controller listening at addr for registrations.
func New(cfg Config, addr string, topo *TopologyManager, log *logrus.Logger) *Controller {
	c := &Controller{
		cfg:           cfg,
		addr:          addr,
		log:           log.WithField("component", "controller"),
		topo:          topo,
		names:         make(map[string]string),
		agentsReady:   make(chan struct{}),
		observerReady: make(chan struct{}),
	}
	if cfg.NAgents <= 0 {
		close(c.agentsReady)
	}
	return c
}

// Intervals returns the number of intervals per negotiation horizon.
func (c *Controller) Intervals() int {
	return c.cfg.Period / c.cfg.Resolution
}

// RegisterUnitAgent records a unit agent proxy. Once the expected
// number of agents has registered, waiting negotiations may start.
func (c *Controller) RegisterUnitAgent(agent UnitAgent, addr, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" {
		name = addr
	}
	c.agents = append(c.agents, agent)
	c.names[addr] = name
	c.log.WithFields(logrus.Fields{"addr": addr, "unit": name}).Debug("Unit agent registered")
	if c.cfg.NAgents > 0 && len(c.agents) == c.cfg.NAgents {
		close(c.agentsReady)
	}
}

// RegisterObserver attaches the observer.
func (c *Controller) RegisterObserver(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = obs
	close(c.observerReady)
	c.log.Debug("Observer registered")
}

// WaitReady blocks until all agents and the observer have registered.
func (c *Controller) WaitReady(ctx context.Context) error {
	select {
	case <-c.agentsReady:
	case <-ctx.Done():
		return fmt.Errorf("waiting for unit agents: %w", ctx.Err())
	}
	select {
	case <-c.observerReady:
	case <-ctx.Done():
		return fmt.Errorf("waiting for observer: %w", ctx.Err())
	}
	return nil
}

// NegotiationFinished resolves the running negotiation. Called by the
// observer once termination has been detected.
func (c *Controller) NegotiationFinished() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.negDone != nil {
		select {
		case <-c.negDone:
		default:
			close(c.negDone)
		}
		c.log.Debug("Negotiation finished, reported by observer")
	}
	return nil
}

// RunNegotiation runs one complete negotiation: topology build,
// observation start, protocol seed, timeout-bounded wait, stop and
// solution broadcast.
func (c *Controller) RunNegotiation(ctx context.Context, start time.Time, target, weights []float64) error {
	if err := c.WaitReady(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("controller: negotiation already running")
	}
	c.running = true
	c.negDone = make(chan struct{})
	negDone := c.negDone
	agents := append([]UnitAgent(nil), c.agents...)
	names := make(map[string]string, len(c.names))
	for addr, name := range c.names {
		names[addr] = name
	}
	observer := c.observer
	c.lastStart = start
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if err := c.initNegotiation(agents, names, observer, start, target, weights); err != nil {
		c.stopAgents(agents)
		return err
	}

	// Wait until the observer reports termination or the session
	// timeout fires; a timeout is not an error.
	select {
	case <-negDone:
	case <-time.After(c.cfg.NegotiationTimeout):
		c.log.Info("Negotiation finished due to timeout")
	case <-ctx.Done():
		c.stopAgents(agents)
		return ctx.Err()
	}

	c.stopAgents(agents)

	// Bounded wait: if an agent died before reporting its final
	// candidate the observer can never finish merging.
	solCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	solution, err := observer.PassSolution(solCtx)
	if err != nil {
		return fmt.Errorf("controller: retrieve solution: %w", err)
	}

	if err := c.broadcastSolution(agents, solution); err != nil {
		return err
	}

	c.mu.Lock()
	c.negotiations++
	c.lastSolution = solution
	c.mu.Unlock()
	return nil
}

// initNegotiation builds the topology, starts the observation and arms
// all agents, then seeds the protocol.
func (c *Controller) initNegotiation(agents []UnitAgent, names map[string]string, observer Observer,
	start time.Time, target, weights []float64) error {
	c.log.WithField("start", start.Format(time.RFC3339)).Debug("Building topology for new negotiation")

	addrs := make([]string, len(agents))
	for i, a := range agents {
		addrs[i] = a.Addr()
	}
	topology := c.topo.Build(addrs)

	if err := observer.StartObservation(topology.Edges(names), start, target, weights); err != nil {
		return fmt.Errorf("controller: start observation: %w", err)
	}

	params := planning.SessionParams{
		Start:      start,
		Resolution: c.cfg.Resolution,
		Intervals:  c.Intervals(),
		Target:     target,
		Weights:    weights,
	}
	for _, a := range agents {
		if err := a.NewNegotiation(); err != nil {
			return fmt.Errorf("controller: new negotiation at %s: %w", a.Addr(), err)
		}
		if err := a.StoreTopology(c.addr, topology[a.Addr()], params); err != nil {
			return fmt.Errorf("controller: store topology at %s: %w", a.Addr(), err)
		}
	}

	c.log.WithField("start", start.Format(time.RFC3339)).Info("Initializing negotiation")
	for _, a := range agents {
		if err := a.InitNegotiation(); err != nil {
			return fmt.Errorf("controller: init negotiation at %s: %w", a.Addr(), err)
		}
		if c.cfg.SingleStart {
			break
		}
	}
	return nil
}

// stopAgents sends stop_negotiation to every agent, fail-soft.
func (c *Controller) stopAgents(agents []UnitAgent) {
	c.log.Debug("Sending stop to all agents")
	for _, a := range agents {
		if err := a.StopNegotiation(); err != nil {
			c.log.WithError(err).WithField("addr", a.Addr()).Warn("Failed to stop agent")
		}
	}
}

// broadcastSolution informs every agent of its negotiated schedule id.
func (c *Controller) broadcastSolution(agents []UnitAgent, solution *planning.Candidate) error {
	c.log.WithFields(logrus.Fields{
		"sids": solution.SIDs(),
		"perf": solution.Perf(),
	}).Info("Broadcasting solution")

	for _, a := range agents {
		d, ok := solution.Data(a.Addr())
		if !ok {
			return fmt.Errorf("controller: solution misses agent %s", a.Addr())
		}
		if err := a.SetSchedule(d.SID); err != nil {
			c.log.WithError(err).WithField("addr", a.Addr()).Warn("Failed to set schedule")
		}
	}
	return nil
}

// Stop cancels a running negotiation task on every agent.
func (c *Controller) Stop() {
	c.mu.Lock()
	agents := append([]UnitAgent(nil), c.agents...)
	c.mu.Unlock()
	for _, a := range agents {
		if err := a.Stop(); err != nil {
			c.log.WithError(err).WithField("addr", a.Addr()).Warn("Failed to stop agent task")
		}
	}
}

// Status returns an operator snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		AgentsRegistered: len(c.agents),
		AgentsExpected:   c.cfg.NAgents,
		Running:          c.running,
		Negotiations:     c.negotiations,
	}
	select {
	case <-c.observerReady:
		s.ObserverReady = true
	default:
	}
	if !c.lastStart.IsZero() {
		s.LastStart = c.lastStart.UTC().Format(time.RFC3339)
	}
	if c.lastSolution != nil {
		s.LastPerf = c.lastSolution.Perf()
	}
	return s
}

// LastSolution returns the solution of the most recent negotiation.
func (c *Controller) LastSolution() *planning.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSolution
}

// AgentNames returns the registered addr -> unit name mapping.
func (c *Controller) AgentNames() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make(map[string]string, len(c.names))
	for addr, name := range c.names {
		names[addr] = name
	}
	return names
}
