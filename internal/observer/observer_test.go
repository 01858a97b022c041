package observer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gridmind/swarmplan/internal/monitoring"
	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	finished int
}

func (c *fakeController) NegotiationFinished() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished++
	return nil
}

func (c *fakeController) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

func startObservation(t *testing.T, o *Observer, target, weights []float64) {
	t.Helper()
	start := time.Date(2017, 7, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, o.StartObservation([][2]string{{"a0", "a1"}}, start, target, weights))
}

func TestObserverTerminationReportedToController(t *testing.T) {
	ctrl := &fakeController{}
	o := New(2, ctrl, nil, testLogger())
	startObservation(t, o, []float64{2, 2}, []float64{1, 1})

	require.NoError(t, o.UpdateStats(planning.Stats{Agent: "a0", MsgsIn: 0, MsgsOut: 1}))
	assert.Equal(t, 0, ctrl.count())

	// The receiver consumed the message without answering: quiescent.
	require.NoError(t, o.UpdateStats(planning.Stats{Agent: "a1", MsgsIn: 1, MsgsOut: 0}))
	assert.Eventually(t, func() bool { return ctrl.count() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestObserverSolutionAfterTermination(t *testing.T) {
	ctrl := &fakeController{}
	store := monitoring.NewMemoryStore()
	o := New(2, ctrl, store, testLogger())
	target := []float64{2, 2}
	weights := []float64{1, 1}
	startObservation(t, o, target, weights)

	// Drive the detector to quiescence and wait for the watcher to
	// record the termination.
	require.NoError(t, o.UpdateStats(planning.Stats{Agent: "a0", MsgsIn: 1, MsgsOut: 1}))
	require.Eventually(t, func() bool { return ctrl.count() == 1 },
		time.Second, 5*time.Millisecond)

	obj := planning.NewObjective(target, weights)
	shared := planning.MergeCandidates(
		planning.NewCandidate("a0", planning.Schedule{2, 0}, 1, obj),
		planning.NewCandidate("a1", planning.Schedule{0, 2}, 1, obj),
		"a0", obj)

	require.NoError(t, o.UpdateFinalCandidate(shared))
	require.NoError(t, o.UpdateFinalCandidate(shared))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	solution, err := o.PassSolution(ctx)
	require.NoError(t, err)
	assert.Same(t, shared, solution)

	group := store.Latest()
	require.NotNil(t, group)
	assert.InDelta(t, 0.0, group.Perf, 1e-12)
	assert.Len(t, group.Agents, 2)
}

func TestObserverMergesPartialCandidatesOnTimeout(t *testing.T) {
	ctrl := &fakeController{}
	o := New(2, ctrl, nil, testLogger())
	target := []float64{2, 2}
	weights := []float64{1, 1}
	startObservation(t, o, target, weights)

	// No termination: candidates diverge and must be merged.
	obj := planning.NewObjective(target, weights)
	ca := planning.NewCandidate("a0", planning.Schedule{2, 0}, 1, obj)
	cb := planning.NewCandidate("a1", planning.Schedule{0, 2}, 1, obj)

	require.NoError(t, o.UpdateFinalCandidate(ca))
	require.NoError(t, o.UpdateFinalCandidate(cb))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	solution, err := o.PassSolution(ctx)
	require.NoError(t, err)

	// Merged over both agents, authored by the controller.
	assert.Equal(t, 2, solution.Size())
	assert.Equal(t, "controller", solution.Agent())
	da, ok := solution.Data("a0")
	require.True(t, ok)
	assert.Equal(t, 1, da.SID)
	db, ok := solution.Data("a1")
	require.True(t, ok)
	assert.Equal(t, 1, db.SID)
}

func TestObserverResetBetweenNegotiations(t *testing.T) {
	ctrl := &fakeController{}
	o := New(1, ctrl, nil, testLogger())
	startObservation(t, o, []float64{1}, []float64{1})

	obj := planning.NewObjective([]float64{1}, []float64{1})
	require.NoError(t, o.UpdateFinalCandidate(planning.NewCandidate("a0", planning.Schedule{1}, 0, obj)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := o.PassSolution(ctx)
	require.NoError(t, err)

	// A second observation starts from a clean slate.
	startObservation(t, o, []float64{1}, []float64{1})
	require.NoError(t, o.UpdateFinalCandidate(planning.NewCandidate("a0", planning.Schedule{0}, 1, obj)))

	solution, err := o.PassSolution(ctx)
	require.NoError(t, err)
	d, ok := solution.Data("a0")
	require.True(t, ok)
	assert.Equal(t, 1, d.SID)
}
