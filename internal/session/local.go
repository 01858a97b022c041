// Package session assembles complete negotiation systems: the
// controller/observer pair, the unit agents and the wiring between
// them, either in-process or across websocket containers.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridmind/swarmplan/internal/controller"
	"github.com/gridmind/swarmplan/internal/monitoring"
	"github.com/gridmind/swarmplan/internal/observer"
	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/gridmind/swarmplan/internal/unit"
	"github.com/sirupsen/logrus"
)

// LocalAgent describes one unit agent of an in-process cluster.
type LocalAgent struct {
	Name      string
	Schedules []planning.Schedule
}

// LocalOptions configures an in-process cluster.
type LocalOptions struct {
	Agents             []LocalAgent
	SingleStart        bool
	NegotiationTimeout time.Duration
	TopologyPhi        float64
	TopologySeed       *int64
	Resolution         int
	Period             int
	CheckInterval      time.Duration
	Store              monitoring.Store // optional
}

// Cluster is a fully wired in-process negotiation system.
type Cluster struct {
	Ctrl   *controller.Controller
	Obs    *observer.Observer
	Agents []*unit.Agent
}

// localRegistry resolves agent addresses to in-process agents.
type localRegistry struct {
	mu     sync.Mutex
	agents map[string]*unit.Agent
}

func (r *localRegistry) add(addr string, a *unit.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[addr] = a
}

// Connect implements planning.Connector.
func (r *localRegistry) Connect(addr string) (planning.Neighbor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[addr]
	if !ok {
		return nil, fmt.Errorf("session: unknown agent address %q", addr)
	}
	return &localNeighbor{addr: addr, agent: a}, nil
}

type localNeighbor struct {
	addr  string
	agent *unit.Agent
}

func (n *localNeighbor) Addr() string { return n.addr }

func (n *localNeighbor) Update(sc *planning.SystemConfig, cand *planning.Candidate) error {
	n.agent.Update(sc, cand)
	return nil
}

// NewLocalCluster builds an in-process cluster with static catalogues.
func NewLocalCluster(opts LocalOptions, log *logrus.Logger) (*Cluster, error) {
	if len(opts.Agents) == 0 {
		return nil, fmt.Errorf("session: cluster needs at least one agent")
	}

	topo := controller.NewTopologyManager(opts.TopologyPhi, opts.TopologySeed)
	ctrl := controller.New(controller.Config{
		NAgents:            len(opts.Agents),
		SingleStart:        opts.SingleStart,
		NegotiationTimeout: opts.NegotiationTimeout,
		Resolution:         opts.Resolution,
		Period:             opts.Period,
	}, "local/controller", topo, log)
	obs := observer.New(len(opts.Agents), ctrl, opts.Store, log)
	ctrl.RegisterObserver(obs)

	registry := &localRegistry{agents: make(map[string]*unit.Agent)}
	cluster := &Cluster{Ctrl: ctrl, Obs: obs}
	for i, spec := range opts.Agents {
		addr := fmt.Sprintf("local/%d", i)
		model := unit.NewStaticModel(spec.Schedules)
		agent, err := unit.NewAgent(unit.Options{
			Name:          spec.Name,
			Addr:          addr,
			Model:         model,
			Connector:     registry,
			Observer:      obs,
			Unit:          unit.NewModelInterface(model),
			CheckInterval: opts.CheckInterval,
		}, log)
		if err != nil {
			return nil, err
		}
		registry.add(addr, agent)
		ctrl.RegisterUnitAgent(&localUnitAgent{agent}, addr, spec.Name)
		obs.RegisterUnitAgent(addr, spec.Name)
		cluster.Agents = append(cluster.Agents, agent)
	}
	return cluster, nil
}

// localUnitAgent adapts a unit.Agent to the controller's proxy surface.
type localUnitAgent struct {
	agent *unit.Agent
}

func (l *localUnitAgent) Addr() string          { return l.agent.Addr() }
func (l *localUnitAgent) NewNegotiation() error { return l.agent.NewNegotiation() }

func (l *localUnitAgent) StoreTopology(ctrlAddr string, neighbors []string, params planning.SessionParams) error {
	return l.agent.StoreTopology(ctrlAddr, neighbors, params)
}

func (l *localUnitAgent) InitNegotiation() error { return l.agent.InitNegotiation() }
func (l *localUnitAgent) StopNegotiation() error { return l.agent.StopNegotiation() }
func (l *localUnitAgent) SetSchedule(sid int) error {
	return l.agent.SetSchedule(sid)
}
func (l *localUnitAgent) Stop() error { return l.agent.Stop() }

// Run executes one negotiation against the cluster.
func (c *Cluster) Run(ctx context.Context, start time.Time, target, weights []float64) error {
	return c.Ctrl.RunNegotiation(ctx, start, target, weights)
}
