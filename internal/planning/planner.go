package planning

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Neighbor is the send-side of another unit agent's planner.
type Neighbor interface {
	Addr() string
	Update(sc *SystemConfig, cand *Candidate) error
}

// Connector resolves a neighbor address to a proxy with an established
// bidirectional channel.
type Connector interface {
	Connect(addr string) (Neighbor, error)
}

// ObserverNotifier receives per-cycle statistics and the final candidate
// of one agent.
type ObserverNotifier interface {
	UpdateStats(s Stats) error
	UpdateFinalCandidate(c *Candidate) error
}

// ScheduleSource produces the unit's possible operation schedules for a
// negotiation window.
type ScheduleSource interface {
	GenerateSchedules(start time.Time, resolution, intervals int) ([]PossibleSchedule, error)
}

// Stats is one per-cycle statistics tuple reported to the observer.
type Stats struct {
	Agent   string  `json:"agent"`
	T       float64 `json:"t"`
	Perf    float64 `json:"perf"`
	NumOS   int     `json:"n_os"`
	MsgsIn  int     `json:"msgs_in"`
	MsgsOut int     `json:"msgs_out"`
	MsgSent bool    `json:"msg_sent"`
}

// SessionParams carries the per-negotiation parameters distributed by
// the controller.
type SessionParams struct {
	Start      time.Time
	Resolution int // seconds per interval
	Intervals  int
	Target     []float64
	Weights    []float64
}

// WorkingMemory holds all negotiation-related state of one agent. It
// exists only for the lifetime of one negotiation.
type WorkingMemory struct {
	Neighbors []Neighbor
	Params    SessionParams
	Possible  []PossibleSchedule
	Objective Objective

	SysConf   *SystemConfig
	Candidate *Candidate
	MsgsIn    int
	MsgsOut   int
}

// State of the planner's negotiation lifecycle.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type inboxMessage struct {
	sysConf   *SystemConfig
	candidate *Candidate
}

// Planner executes the negotiation protocol on behalf of one unit agent:
// it keeps the agent's working memory, processes the message inbox in
// perceive/decide/act cycles and reports statistics to the observer.
type Planner struct {
	name          string
	log           *logrus.Entry
	checkInterval time.Duration
	connector     Connector
	source        ScheduleSource
	observer      ObserverNotifier
	created       time.Time

	mu    sync.Mutex
	state State
	inbox []inboxMessage
	wm    *WorkingMemory
	stop  chan struct{}
	done  chan struct{}
}

// NewPlanner creates a planner for the agent identified by name.
func NewPlanner(name string, connector Connector, source ScheduleSource,
	observer ObserverNotifier, checkInterval time.Duration, log *logrus.Logger) *Planner {
	if checkInterval <= 0 {
		checkInterval = 10 * time.Millisecond
	}
	return &Planner{
		name:          name,
		log:           log.WithFields(logrus.Fields{"component": "planner", "agent": name}),
		checkInterval: checkInterval,
		connector:     connector,
		source:        source,
		observer:      observer,
		created:       time.Now(),
	}
}

// State returns the planner's current lifecycle state.
func (p *Planner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// StoreTopology arms the planner for a new negotiation: it connects to
// the given neighbors, fetches the unit's possible schedules for the
// window and seeds working memory with the first catalogue entry.
func (p *Planner) StoreTopology(ctrlAddr string, neighborAddrs []string, params SessionParams) error {
	if params.Intervals != len(params.Target) {
		return fmt.Errorf("planner %s: %d intervals but target has %d values", p.name, params.Intervals, len(params.Target))
	}
	if len(params.Target) != len(params.Weights) {
		return fmt.Errorf("planner %s: target and weights lengths differ (%d != %d)", p.name, len(params.Target), len(params.Weights))
	}

	neighbors := make([]Neighbor, 0, len(neighborAddrs))
	for _, addr := range neighborAddrs {
		n, err := p.connector.Connect(addr)
		if err != nil {
			return fmt.Errorf("planner %s: connect %s: %w", p.name, addr, err)
		}
		neighbors = append(neighbors, n)
	}

	possible, err := p.source.GenerateSchedules(params.Start, params.Resolution, params.Intervals)
	if err != nil {
		return fmt.Errorf("planner %s: %w", p.name, err)
	}
	if len(possible) == 0 {
		return fmt.Errorf("planner %s: schedule source returned an empty catalogue", p.name)
	}
	p.log.WithField("schedules", len(possible)).Debug("Possible schedules generated")

	// Seed with the first possible schedule; its quality does not
	// matter, the utility is ignored.
	seed := possible[0]
	objective := NewObjective(params.Target, params.Weights)
	sysConf := NewSystemConfig(p.name, seed.Sched, seed.SID)
	candidate := NewCandidate(p.name, seed.Sched, seed.SID, objective)

	p.mu.Lock()
	p.wm = &WorkingMemory{
		Neighbors: neighbors,
		Params:    params,
		Possible:  possible,
		Objective: objective,
		SysConf:   sysConf,
		Candidate: candidate,
	}
	p.inbox = nil
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.state = StateArmed
	stop, done := p.stop, p.done
	p.mu.Unlock()

	go p.processInbox(stop, done)
	return nil
}

// InitNegotiation runs one decide pass on the seed row and sends the
// resulting system configuration and candidate to every neighbor. With
// single start only the controller-chosen seed agent receives this call;
// agents that are not called join implicitly on the first received
// message.
func (p *Planner) InitNegotiation() error {
	p.mu.Lock()
	if p.state != StateArmed {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("planner %s: init in state %s", p.name, state)
	}
	wm := p.wm
	p.state = StateRunning
	// Optimize the local seed row before the opening broadcast; for an
	// isolated agent this is the only decide pass that will ever run.
	wm.SysConf, wm.Candidate = p.decide(wm, wm.SysConf, wm.Candidate)
	wm.MsgsOut += len(wm.Neighbors)
	sysConf, candidate := wm.SysConf, wm.Candidate
	neighbors := wm.Neighbors
	stats := p.statsLocked(wm, true)
	p.mu.Unlock()

	for _, n := range neighbors {
		p.send(n, sysConf, candidate)
	}
	if err := p.observer.UpdateStats(stats); err != nil {
		p.log.WithError(err).Warn("Failed to update observer")
	}
	return nil
}

// Update appends an incoming (sysconf, candidate) pair to the inbox. It
// never blocks on processing; the batch is handled on the next tick.
func (p *Planner) Update(sysConf *SystemConfig, candidate *Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateArmed && p.state != StateRunning {
		p.log.Debug("Dropping message outside negotiation")
		return
	}
	p.inbox = append(p.inbox, inboxMessage{sysConf: sysConf, candidate: candidate})
}

// StopNegotiation signals the inbox task to stop, waits for its clean
// exit, reports the final candidate to the observer and clears working
// memory.
func (p *Planner) StopNegotiation() error {
	p.mu.Lock()
	if p.state == StateIdle || p.state == StateStopping {
		p.mu.Unlock()
		return nil
	}
	p.state = StateStopping
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done

	p.mu.Lock()
	candidate := p.wm.Candidate
	p.inbox = nil
	p.wm = nil
	p.state = StateIdle
	p.mu.Unlock()

	if err := p.observer.UpdateFinalCandidate(candidate); err != nil {
		return fmt.Errorf("planner %s: report final candidate: %w", p.name, err)
	}
	p.log.Debug("Finished negotiation")
	return nil
}

// Stop cancels a live negotiation task without the final-candidate
// handshake. Used on process shutdown.
func (p *Planner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateArmed || p.state == StateRunning {
		close(p.stop)
		p.state = StateIdle
		p.wm = nil
		p.inbox = nil
	}
}

// processInbox runs the perceive/decide/act cycle until stopped. Each
// tick drains the inbox atomically; messages arriving during processing
// wait for the next tick.
func (p *Planner) processInbox(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-time.After(p.checkInterval):
		}

		p.mu.Lock()
		batch := p.inbox
		p.inbox = nil
		wm := p.wm
		if wm == nil || len(batch) == 0 {
			p.mu.Unlock()
			continue
		}
		if p.state == StateArmed {
			p.state = StateRunning
		}
		oldSysConf, oldCandidate := wm.SysConf, wm.Candidate
		p.mu.Unlock()

		p.log.WithField("messages", len(batch)).Debug("Checking inbox")

		// Perceive: merge all drained messages into local copies; the
		// working memory keeps the originals until we know whether
		// anything changed.
		sysConf, candidate := oldSysConf, oldCandidate
		for _, msg := range batch {
			sysConf = MergeSystemConfigs(sysConf, msg.sysConf)
			candidate = MergeCandidates(candidate, msg.candidate, p.name, wm.Objective)
		}

		stateChanged := sysConf != oldSysConf || candidate != oldCandidate

		if stateChanged {
			// Decide: can we do better by switching our own schedule?
			sysConf, candidate = p.decide(wm, sysConf, candidate)
		}

		p.mu.Lock()
		wm.MsgsIn += len(batch)
		var neighbors []Neighbor
		if stateChanged {
			wm.SysConf = sysConf
			wm.Candidate = candidate
			wm.MsgsOut += len(wm.Neighbors)
			neighbors = wm.Neighbors
		}
		stats := p.statsLocked(wm, stateChanged)
		p.mu.Unlock()

		// Act: broadcast the new state to every neighbor. Sends are
		// sequential per tick, which keeps delivery FIFO per pair.
		for _, n := range neighbors {
			p.send(n, sysConf, candidate)
		}

		if err := p.observer.UpdateStats(stats); err != nil {
			p.log.WithError(err).Warn("Failed to update observer")
		}
	}
}

// decide scans the possible schedules for one that improves the current
// candidate. The scan uses strict improvement, so on exact ties the
// first-found schedule wins; the scan order is the stable catalogue
// order.
func (p *Planner) decide(wm *WorkingMemory, sysConf *SystemConfig, candidate *Candidate) (*SystemConfig, *Candidate) {
	currentSID := sysConf.mustData(p.name).SID
	best := candidate.mustData(p.name)
	bestSched, bestSID := best.Sched, best.SID
	bestPerf := candidate.Perf()

	var newSched Schedule
	newSID := 0
	found := false
	for _, ps := range wm.Possible {
		hypothetical := sysConf.Update(p.name, ps.Sched, ps.SID)
		if perf := wm.Objective(hypothetical.ClusterSchedule()); perf > bestPerf {
			found = true
			bestPerf = perf
			newSched = ps.Sched
			newSID = ps.SID
		}
	}

	if found {
		// The switch is locally better; check that it also beats the
		// shared candidate before adopting it.
		updated := sysConf.Update(p.name, newSched, newSID)
		newCandidate := candidateFromConfig(p.name, updated).
			Update(p.name, newSched, newSID, wm.Objective)
		if newCandidate.Perf() > candidate.Perf() {
			candidate = newCandidate
			bestSched, bestSID = newSched, newSID
		}
	}

	// A new counter value is only needed if the candidate's schedule for
	// this agent differs from the one recorded in the sysconf.
	if currentSID != bestSID {
		sysConf = sysConf.Update(p.name, bestSched, bestSID)
	}
	return sysConf, candidate
}

func (p *Planner) send(n Neighbor, sysConf *SystemConfig, candidate *Candidate) {
	if err := n.Update(sysConf, candidate); err != nil {
		// Missing neighbors are no-ops for the remaining ticks.
		p.log.WithError(err).WithField("neighbor", n.Addr()).Warn("Failed to send update")
	}
}

func (p *Planner) statsLocked(wm *WorkingMemory, msgSent bool) Stats {
	return Stats{
		Agent:   p.name,
		T:       time.Since(p.created).Seconds(),
		Perf:    wm.Candidate.Perf(),
		NumOS:   wm.Candidate.Size(),
		MsgsIn:  wm.MsgsIn,
		MsgsOut: wm.MsgsOut,
		MsgSent: msgSent,
	}
}
