package transport

import (
	"context"
	"time"

	"github.com/gridmind/swarmplan/internal/planning"
)

// Method parameter shapes shared by proxies and handlers.

type registerParams struct {
	Addr string `json:"addr"`
	Name string `json:"name"`
}

type storeTopologyParams struct {
	CtrlAddr   string    `json:"ctrl_addr"`
	Neighbors  []string  `json:"neighbors"`
	Start      time.Time `json:"start"`
	Resolution int       `json:"resolution"`
	Intervals  int       `json:"intervals"`
	Target     []float64 `json:"target"`
	Weights    []float64 `json:"weights"`
}

type updateParams struct {
	SysConf   *planning.SystemConfig `json:"sysconf"`
	Candidate *planning.Candidate    `json:"candidate"`
}

type setScheduleParams struct {
	SID int `json:"sid"`
}

type setSchedulesParams struct {
	Schedules [][]float64 `json:"schedules"`
}

type finalCandidateParams struct {
	Candidate *planning.Candidate `json:"candidate"`
}

// connector adapts a container to the planner's Connector interface.
type connector struct {
	c *Container
}

// Connect implements planning.Connector.
func (cn connector) Connect(addr string) (planning.Neighbor, error) {
	proxy, err := cn.c.Connect(addr)
	if err != nil {
		return nil, err
	}
	return proxy, nil
}

// Connector returns the container's planner-facing connector.
func (c *Container) Connector() planning.Connector {
	return connector{c: c}
}

// Proxy is the typed remote handle of one agent. Depending on the
// remote agent it serves as a gossip neighbor, a unit-agent control
// handle or an observer/controller endpoint.
type Proxy struct {
	client *Client
	target string
}

// Addr returns the remote agent's address.
func (p *Proxy) Addr() string { return p.target }

func (p *Proxy) call(method string, params, result any) error {
	return p.client.Call(context.Background(), p.target, method, params, result)
}

// Update implements planning.Neighbor. Gossip sends use a short
// deadline so a dead neighbor cannot stall the planner's tick for long.
func (p *Proxy) Update(sc *planning.SystemConfig, cand *planning.Candidate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.client.Call(ctx, p.target, "update", updateParams{SysConf: sc, Candidate: cand}, nil)
}

// RegisterUnitAgent registers a unit agent at a controller or observer.
func (p *Proxy) RegisterUnitAgent(addr, name string) error {
	return p.call("register_unit_agent", registerParams{Addr: addr, Name: name}, nil)
}

// NegotiationFinished implements observer.Controller.
func (p *Proxy) NegotiationFinished() error {
	return p.call("negotiation_finished", nil, nil)
}

// NewNegotiation implements controller.UnitAgent.
func (p *Proxy) NewNegotiation() error {
	return p.call("new_negotiation", nil, nil)
}

// StoreTopology implements controller.UnitAgent.
func (p *Proxy) StoreTopology(ctrlAddr string, neighbors []string, params planning.SessionParams) error {
	return p.call("store_topology", storeTopologyParams{
		CtrlAddr:   ctrlAddr,
		Neighbors:  neighbors,
		Start:      params.Start,
		Resolution: params.Resolution,
		Intervals:  params.Intervals,
		Target:     params.Target,
		Weights:    params.Weights,
	}, nil)
}

// InitNegotiation implements controller.UnitAgent.
func (p *Proxy) InitNegotiation() error {
	return p.call("init_negotiation", nil, nil)
}

// StopNegotiation implements controller.UnitAgent.
func (p *Proxy) StopNegotiation() error {
	return p.call("stop_negotiation", nil, nil)
}

// SetSchedule implements controller.UnitAgent.
func (p *Proxy) SetSchedule(sid int) error {
	return p.call("set_schedule", setScheduleParams{SID: sid}, nil)
}

// Stop implements controller.UnitAgent.
func (p *Proxy) Stop() error {
	return p.call("stop", nil, nil)
}

// UpdateStats implements planning.ObserverNotifier.
func (p *Proxy) UpdateStats(s planning.Stats) error {
	return p.call("update_stats", s, nil)
}

// UpdateFinalCandidate implements planning.ObserverNotifier.
func (p *Proxy) UpdateFinalCandidate(c *planning.Candidate) error {
	return p.call("update_final_cand", finalCandidateParams{Candidate: c}, nil)
}
