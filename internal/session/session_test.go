package session

import (
	"context"
	"testing"
	"time"

	"github.com/gridmind/swarmplan/internal/monitoring"
	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

func localOptions(agents []LocalAgent, timeout time.Duration) LocalOptions {
	var seed int64 = 1
	return LocalOptions{
		Agents:             agents,
		SingleStart:        true,
		NegotiationTimeout: timeout,
		TopologyPhi:        1,
		TopologySeed:       &seed,
		Resolution:         900,
		Period:             0, // set per test via intervals
		CheckInterval:      time.Millisecond,
	}
}

func runCluster(t *testing.T, opts LocalOptions, target, weights []float64) *Cluster {
	t.Helper()
	opts.Period = opts.Resolution * len(target)
	opts.Store = monitoring.NewMemoryStore()
	cluster, err := NewLocalCluster(opts, testLogger())
	require.NoError(t, err)

	start := time.Date(2017, 7, 5, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, cluster.Run(ctx, start, target, weights))
	return cluster
}

func TestSingleAgentNegotiation(t *testing.T) {
	cluster := runCluster(t, localOptions([]LocalAgent{
		{Name: "u0", Schedules: []planning.Schedule{{0, 0, 0, 0}, {1, 1, 1, 1}}},
	}, 5*time.Second), []float64{1, 1, 1, 1}, []float64{1, 1, 1, 1})

	solution := cluster.Ctrl.LastSolution()
	require.NotNil(t, solution)
	assert.InDelta(t, 0.0, solution.Perf(), 1e-12)

	d, ok := solution.Data("local/0")
	require.True(t, ok)
	assert.Equal(t, 1, d.SID)

	// The unit received its negotiated schedule.
	sched, ok := cluster.Agents[0].CurrentSchedule()
	require.True(t, ok)
	assert.Equal(t, planning.Schedule{1, 1, 1, 1}, sched)
}

func TestTwoAgentNegotiation(t *testing.T) {
	cluster := runCluster(t, localOptions([]LocalAgent{
		{Name: "u0", Schedules: []planning.Schedule{{0, 0}, {2, 0}}},
		{Name: "u1", Schedules: []planning.Schedule{{0, 0}, {0, 2}}},
	}, 10*time.Second), []float64{2, 2}, []float64{1, 1})

	solution := cluster.Ctrl.LastSolution()
	require.NotNil(t, solution)
	assert.InDelta(t, 0.0, solution.Perf(), 1e-12)

	for _, addr := range []string{"local/0", "local/1"} {
		d, ok := solution.Data(addr)
		require.True(t, ok)
		assert.Equal(t, 1, d.SID)
	}
}

func TestThreeAgentTieBreak(t *testing.T) {
	catalogue := []planning.Schedule{{1}, {0}}
	cluster := runCluster(t, localOptions([]LocalAgent{
		{Name: "u0", Schedules: catalogue},
		{Name: "u1", Schedules: catalogue},
		{Name: "u2", Schedules: catalogue},
	}, 10*time.Second), []float64{2}, []float64{1})

	solution := cluster.Ctrl.LastSolution()
	require.NotNil(t, solution)
	assert.InDelta(t, 0.0, solution.Perf(), 1e-12)

	zeros, ones := 0, 0
	for _, addr := range []string{"local/0", "local/1", "local/2"} {
		d, ok := solution.Data(addr)
		require.True(t, ok)
		switch d.SID {
		case 0:
			zeros++
		default:
			ones++
		}
	}
	assert.Equal(t, 2, zeros)
	assert.Equal(t, 1, ones)
}

func TestTimeoutStillBroadcastsAssignment(t *testing.T) {
	// A timeout so small the network cannot converge: the controller
	// must still broadcast a well-formed assignment built from the
	// merged partial candidates.
	opts := localOptions([]LocalAgent{
		{Name: "u0", Schedules: []planning.Schedule{{0, 0}, {2, 0}}},
		{Name: "u1", Schedules: []planning.Schedule{{0, 0}, {0, 2}}},
	}, time.Nanosecond)
	opts.CheckInterval = 50 * time.Millisecond

	cluster := runCluster(t, opts, []float64{2, 2}, []float64{1, 1})

	solution := cluster.Ctrl.LastSolution()
	require.NotNil(t, solution)

	// Every agent received exactly one schedule id from the solution.
	for i, addr := range []string{"local/0", "local/1"} {
		d, ok := solution.Data(addr)
		require.True(t, ok, "solution must cover %s", addr)
		sched, got := cluster.Agents[i].CurrentSchedule()
		require.True(t, got)
		model := cluster.Agents[i].Model()
		expected, _ := model.Schedule(d.SID)
		assert.Equal(t, expected, sched)
	}
}

func TestStatsRecordedInStore(t *testing.T) {
	store := monitoring.NewMemoryStore()
	opts := localOptions([]LocalAgent{
		{Name: "u0", Schedules: []planning.Schedule{{0, 0}, {2, 2}}},
	}, 5*time.Second)
	opts.Period = opts.Resolution * 2
	opts.Store = store

	cluster, err := NewLocalCluster(opts, testLogger())
	require.NoError(t, err)

	start := time.Date(2017, 7, 5, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, cluster.Run(ctx, start, []float64{2, 2}, []float64{1, 1}))

	group, ok := store.Group(start)
	require.True(t, ok)
	assert.NotEmpty(t, group.Stats)
	require.Len(t, group.Agents, 1)
	assert.Equal(t, "u0", group.Agents[0].Name)
	assert.Equal(t, 1, group.Agents[0].SID)
	assert.InDelta(t, 0.0, group.Perf, 1e-12)
}
