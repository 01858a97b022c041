// Package unit implements the unit agent: the owner of one flexible
// unit's schedule catalogue and of the planner that negotiates on its
// behalf.
package unit

import (
	"fmt"
	"sync"
	"time"

	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/sirupsen/logrus"
)

// Interface talks to the actual unit: it accepts the negotiated
// schedule at the end of a negotiation.
type Interface interface {
	NewNegotiation()
	SetSchedule(sid int) error
	CurrentSchedule() (planning.Schedule, bool)
}

// Agent is one unit agent. It composes a schedule model, a negotiation
// planner and an optional unit interface.
type Agent struct {
	name    string
	addr    string
	log     *logrus.Entry
	model   Model
	planner *planning.Planner
	unitIf  Interface
}

// Options configures a new unit agent.
type Options struct {
	Name          string // defaults to the address
	Addr          string
	Model         Model
	Connector     planning.Connector
	Observer      planning.ObserverNotifier
	Unit          Interface // optional
	CheckInterval time.Duration
}

// NewAgent creates a unit agent and its planner.
func NewAgent(opts Options, log *logrus.Logger) (*Agent, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("unit agent needs an address")
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("unit agent %s needs a model", opts.Addr)
	}
	name := opts.Name
	if name == "" {
		name = opts.Addr
	}
	a := &Agent{
		name:   name,
		addr:   opts.Addr,
		log:    log.WithFields(logrus.Fields{"component": "unit", "agent": name}),
		model:  opts.Model,
		unitIf: opts.Unit,
	}
	a.planner = planning.NewPlanner(opts.Addr, opts.Connector, opts.Model, opts.Observer,
		opts.CheckInterval, log)
	return a, nil
}

// Name returns the agent's unit name.
func (a *Agent) Name() string { return a.name }

// Addr returns the agent's address.
func (a *Agent) Addr() string { return a.addr }

// Model returns the agent's unit model.
func (a *Agent) Model() Model { return a.model }

// StoreTopology forwards the negotiation setup to the planner.
func (a *Agent) StoreTopology(ctrlAddr string, neighbors []string, params planning.SessionParams) error {
	return a.planner.StoreTopology(ctrlAddr, neighbors, params)
}

// InitNegotiation seeds the negotiation from this agent.
func (a *Agent) InitNegotiation() error { return a.planner.InitNegotiation() }

// StopNegotiation stops the planner and reports the final candidate.
func (a *Agent) StopNegotiation() error { return a.planner.StopNegotiation() }

// Update receives a gossip message from a neighboring agent.
func (a *Agent) Update(sc *planning.SystemConfig, cand *planning.Candidate) {
	a.planner.Update(sc, cand)
}

// NewNegotiation tells the unit a new negotiation is about to start.
func (a *Agent) NewNegotiation() error {
	if a.unitIf != nil {
		a.unitIf.NewNegotiation()
	}
	return nil
}

// SetSchedule informs the unit of its negotiated schedule id.
func (a *Agent) SetSchedule(sid int) error {
	a.log.WithField("sid", sid).Info("Schedule assigned")
	if a.unitIf == nil {
		return nil
	}
	return a.unitIf.SetSchedule(sid)
}

// CurrentSchedule returns the unit's negotiated schedule, if any.
func (a *Agent) CurrentSchedule() (planning.Schedule, bool) {
	if a.unitIf == nil {
		return nil, false
	}
	return a.unitIf.CurrentSchedule()
}

// Stop cancels a live negotiation task.
func (a *Agent) Stop() error {
	a.planner.Stop()
	return nil
}

// ModelInterface is the default unit interface: it resolves schedule ids
// against the agent's model and remembers the current assignment.
type ModelInterface struct {
	mu      sync.Mutex
	model   Model
	current planning.Schedule
	set     bool
}

// NewModelInterface creates a unit interface backed by model.
func NewModelInterface(model Model) *ModelInterface {
	return &ModelInterface{model: model}
}

// NewNegotiation clears the current assignment.
func (u *ModelInterface) NewNegotiation() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.current = nil
	u.set = false
}

// SetSchedule records the negotiated schedule.
func (u *ModelInterface) SetSchedule(sid int) error {
	sched, ok := u.model.Schedule(sid)
	if !ok {
		return fmt.Errorf("unknown schedule id %d", sid)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.current = sched
	u.set = true
	return nil
}

// CurrentSchedule returns the negotiated schedule, if one has been set.
func (u *ModelInterface) CurrentSchedule() (planning.Schedule, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current, u.set
}
