package observer

import "sync"

// TerminationDetector watches per-agent message counters and signals
// when the negotiation has quiesced.
type TerminationDetector interface {
	// Update reports an agent's cumulative message counters.
	Update(agent string, msgsIn, msgsOut int)

	// Done is closed once termination has been detected.
	Done() <-chan struct{}
}

// MessageCounter detects termination when the system-wide sum of
// incoming message counts equals the sum of outgoing counts at a
// report. Counters are cumulative and reported only after a complete
// perceive/decide/act cycle, so equality means every sent message has
// been consumed without producing new ones.
type MessageCounter struct {
	mu    sync.Mutex
	in    map[string]int
	out   map[string]int
	fired bool
	done  chan struct{}
}

// NewMessageCounter creates a fresh detector. A new instance is needed
// for every negotiation.
func NewMessageCounter() *MessageCounter {
	return &MessageCounter{
		in:   make(map[string]int),
		out:  make(map[string]int),
		done: make(chan struct{}),
	}
}

// Update records an agent's counters and checks for quiescence.
func (m *MessageCounter) Update(agent string, msgsIn, msgsOut int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fired {
		return
	}
	m.in[agent] = msgsIn
	m.out[agent] = msgsOut

	sumIn, sumOut := 0, 0
	for _, v := range m.in {
		sumIn += v
	}
	for _, v := range m.out {
		sumOut += v
	}
	if sumIn == sumOut {
		m.fired = true
		close(m.done)
	}
}

// Done is closed once termination has been detected.
func (m *MessageCounter) Done() <-chan struct{} { return m.done }
