package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	mu        sync.Mutex
	addr      string
	neighbors []string
	inits     int
	stops     int
	sid       *int
	storeErr  error
}

func (a *fakeAgent) Addr() string          { return a.addr }
func (a *fakeAgent) NewNegotiation() error { return nil }

func (a *fakeAgent) StoreTopology(_ string, neighbors []string, _ planning.SessionParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.neighbors = neighbors
	return a.storeErr
}

func (a *fakeAgent) InitNegotiation() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inits++
	return nil
}

func (a *fakeAgent) StopNegotiation() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return nil
}

func (a *fakeAgent) SetSchedule(sid int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sid = &sid
	return nil
}

func (a *fakeAgent) Stop() error { return nil }

type fakeObserver struct {
	mu       sync.Mutex
	edges    [][2]string
	solution *planning.Candidate
}

func (o *fakeObserver) StartObservation(edges [][2]string, _ time.Time, _, _ []float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.edges = edges
	return nil
}

func (o *fakeObserver) PassSolution(context.Context) (*planning.Candidate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.solution, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

func testController(nAgents int, timeout time.Duration) *Controller {
	return New(Config{
		NAgents:            nAgents,
		SingleStart:        true,
		NegotiationTimeout: timeout,
		Resolution:         900,
		Period:             2 * 900,
	}, "localhost:5555/ctrl", NewTopologyManager(0, seedPtr(1)), testLogger())
}

func TestControllerRegistrationBarrier(t *testing.T) {
	c := testController(2, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, c.WaitReady(ctx), "must block until agents and observer register")

	a0 := &fakeAgent{addr: "h:1/0"}
	a1 := &fakeAgent{addr: "h:2/0"}
	c.RegisterUnitAgent(a0, a0.addr, "u0")
	c.RegisterUnitAgent(a1, a1.addr, "u1")
	c.RegisterObserver(&fakeObserver{})

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, c.WaitReady(ctx2))
}

func TestControllerTimeoutBroadcastsMergedSolution(t *testing.T) {
	// The observer never reports termination; the tiny timeout drives
	// the negotiation to the merge-from-partial path.
	c := testController(2, 20*time.Millisecond)

	obj := planning.NewObjective([]float64{2, 2}, []float64{1, 1})
	solution := planning.MergeCandidates(
		planning.NewCandidate("h:1/0", planning.Schedule{2, 0}, 1, obj),
		planning.NewCandidate("h:2/0", planning.Schedule{0, 2}, 1, obj),
		"controller", obj)

	a0 := &fakeAgent{addr: "h:1/0"}
	a1 := &fakeAgent{addr: "h:2/0"}
	obs := &fakeObserver{solution: solution}
	c.RegisterUnitAgent(a0, a0.addr, "u0")
	c.RegisterUnitAgent(a1, a1.addr, "u1")
	c.RegisterObserver(obs)

	start := time.Date(2017, 7, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.RunNegotiation(context.Background(), start, []float64{2, 2}, []float64{1, 1}))

	// Every agent is stopped and receives exactly one schedule id.
	for _, a := range []*fakeAgent{a0, a1} {
		a.mu.Lock()
		assert.Equal(t, 1, a.stops)
		require.NotNil(t, a.sid)
		assert.Equal(t, 1, *a.sid)
		a.mu.Unlock()
	}

	// Single start: only the first registered agent seeds.
	a0.mu.Lock()
	assert.Equal(t, 1, a0.inits)
	a0.mu.Unlock()
	a1.mu.Lock()
	assert.Equal(t, 0, a1.inits)
	a1.mu.Unlock()

	assert.Equal(t, 1, c.Status().Negotiations)
}

func TestControllerFinishedByObserver(t *testing.T) {
	c := testController(1, time.Minute)

	obj := planning.NewObjective([]float64{1, 1}, []float64{1, 1})
	solution := planning.NewCandidate("h:1/0", planning.Schedule{1, 1}, 0, obj)

	a0 := &fakeAgent{addr: "h:1/0"}
	obs := &fakeObserver{solution: solution}
	c.RegisterUnitAgent(a0, a0.addr, "u0")
	c.RegisterObserver(obs)

	done := make(chan error, 1)
	start := time.Date(2017, 7, 5, 0, 0, 0, 0, time.UTC)
	go func() {
		done <- c.RunNegotiation(context.Background(), start, []float64{1, 1}, []float64{1, 1})
	}()

	// Simulate the observer's termination report; the run must return
	// well before its one-minute timeout.
	require.Eventually(t, func() bool {
		a0.mu.Lock()
		defer a0.mu.Unlock()
		return a0.inits == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, c.NegotiationFinished())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("negotiation did not finish after observer report")
	}
}

func TestControllerScheduleUnavailableAborts(t *testing.T) {
	c := testController(1, time.Minute)

	a0 := &fakeAgent{addr: "h:1/0", storeErr: assert.AnError}
	c.RegisterUnitAgent(a0, a0.addr, "u0")
	c.RegisterObserver(&fakeObserver{})

	start := time.Date(2017, 7, 5, 0, 0, 0, 0, time.UTC)
	err := c.RunNegotiation(context.Background(), start, []float64{1, 1}, []float64{1, 1})
	require.Error(t, err)

	// The negotiation is aborted and agents are stopped.
	a0.mu.Lock()
	assert.Equal(t, 0, a0.inits)
	assert.Equal(t, 1, a0.stops)
	a0.mu.Unlock()
}
