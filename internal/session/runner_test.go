package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridmind/swarmplan/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestRunnerEndToEnd drives the full standalone stack: two unit agents
// in one websocket container, controller and observer in another, one
// negotiation read from files.
func TestRunnerEndToEnd(t *testing.T) {
	dir := t.TempDir()

	scheduleDirA := filepath.Join(dir, "derA")
	scheduleDirB := filepath.Join(dir, "derB")
	require.NoError(t, os.Mkdir(scheduleDirA, 0o755))
	require.NoError(t, os.Mkdir(scheduleDirB, 0o755))
	writeDataFile(t, scheduleDirA, "schedules.csv",
		`{"start_time": "2017-07-05T00:00:00Z", "interval_minutes": 15, "cols": ["idle", "full"]}
0.0,2.0
0.0,0.0
`)
	writeDataFile(t, scheduleDirB, "schedules.csv",
		`{"start_time": "2017-07-05T00:00:00Z", "interval_minutes": 15, "cols": ["idle", "full"]}
0.0,0.0
0.0,2.0
`)
	targetFile := writeDataFile(t, dir, "target.csv",
		`{"interval_minutes": 15, "cols": ["target", "weight"]}
2.0,1.0
2.0,1.0
`)

	var seed int64 = 3
	cfg := &config.Config{
		LogLevel:  "fatal",
		LogFormat: "text",
		Controller: config.ControllerConfig{
			Host:               "127.0.0.1",
			Port:               0,
			NAgents:            2,
			SingleStart:        true,
			NegotiationTimeout: 20 * time.Second,
			TopologyPhi:        1,
			TopologySeed:       &seed,
			Resolution:         900,
			Period:             1800,
			CheckInboxInterval: time.Millisecond,
		},
		Observer:   config.ObserverConfig{Store: "memory"},
		Containers: []config.ContainerConfig{{Host: "127.0.0.1", Port: 0}},
		Agents: []config.AgentConfig{
			{Name: "unitA", ScheduleDir: scheduleDirA},
			{Name: "unitB", ScheduleDir: scheduleDirB},
		},
		Negotiations: []config.NegotiationConfig{
			{Date: "2017-07-05T00:00:00Z", Target: targetFile},
		},
	}

	runner := NewRunner(cfg, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx, time.Time{}))
}

func TestRunnerRejectsMissingScheduleDir(t *testing.T) {
	cfg := &config.Config{
		Controller: config.ControllerConfig{
			Host:               "127.0.0.1",
			Port:               0,
			NAgents:            1,
			NegotiationTimeout: time.Second,
			Resolution:         900,
			Period:             1800,
			CheckInboxInterval: time.Millisecond,
		},
		Observer:   config.ObserverConfig{Store: "memory"},
		Containers: []config.ContainerConfig{{Host: "127.0.0.1", Port: 0}},
	}

	runner := NewRunner(cfg, testLogger())
	err := runner.Run(context.Background(), time.Time{})
	assert.Error(t, err)
}
