package unit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/gridmind/swarmplan/internal/scheduleio"
)

// ErrNoSchedule is returned when a unit's catalogue has no entry for the
// requested negotiation window. It is fatal for the negotiation.
var ErrNoSchedule = errors.New("no adequate schedule found")

// Model produces the possible operation schedules of one unit.
type Model interface {
	// GenerateSchedules returns the unit's catalogue for the window
	// given by start, resolution (seconds) and intervals.
	GenerateSchedules(start time.Time, resolution, intervals int) ([]planning.PossibleSchedule, error)

	// Schedule resolves a schedule id from the last generated catalogue.
	Schedule(sid int) (planning.Schedule, bool)

	// SetPossibleSchedules replaces the catalogue with externally
	// supplied schedules, indexed densely from zero.
	SetPossibleSchedules(schedules []planning.Schedule)
}

// FileModel reads the unit's catalogue from schedule files: every file
// whose header matches the requested window contributes one schedule per
// column.
type FileModel struct {
	mu    sync.Mutex
	files []string
	known map[int]planning.Schedule
}

// NewFileModel creates a model over the given schedule files. If files
// is empty, all .csv and .csv.xz files in dir are considered.
func NewFileModel(dir string, files []string) (*FileModel, error) {
	var paths []string
	if len(files) > 0 {
		for _, f := range files {
			paths = append(paths, filepath.Join(dir, f))
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("schedule directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.xz") {
				paths = append(paths, filepath.Join(dir, name))
			}
		}
		sort.Strings(paths)
	}
	return &FileModel{files: paths, known: make(map[int]planning.Schedule)}, nil
}

// GenerateSchedules scans the schedule files for the requested window.
func (m *FileModel) GenerateSchedules(start time.Time, resolution, intervals int) ([]planning.PossibleSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.files == nil && len(m.known) > 0 {
		// Externally supplied catalogue: served as set, for any window.
		possible := make([]planning.PossibleSchedule, len(m.known))
		for sid, sched := range m.known {
			possible[sid] = planning.PossibleSchedule{SID: sid, Sched: sched}
		}
		return possible, nil
	}

	m.known = make(map[int]planning.Schedule)
	var possible []planning.PossibleSchedule
	for _, path := range m.files {
		schedules, _, err := scheduleio.ReadCatalogue(path, start, resolution, intervals)
		if err != nil {
			return nil, err
		}
		for _, sched := range schedules {
			sid := len(possible)
			m.known[sid] = sched
			possible = append(possible, planning.PossibleSchedule{SID: sid, Sched: sched})
		}
	}
	if len(possible) == 0 {
		return nil, fmt.Errorf("%w in %v for %s", ErrNoSchedule, m.files, start.Format(time.RFC3339))
	}
	return possible, nil
}

// Schedule resolves a schedule id from the last scan.
func (m *FileModel) Schedule(sid int) (planning.Schedule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched, ok := m.known[sid]
	return sched, ok
}

// SetPossibleSchedules replaces the catalogue, e.g. when schedules are
// pushed from an external simulator instead of read from files.
func (m *FileModel) SetPossibleSchedules(schedules []planning.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = nil
	m.known = make(map[int]planning.Schedule, len(schedules))
	for i, sched := range schedules {
		m.known[i] = sched
	}
}

// StaticModel serves a fixed catalogue regardless of the requested
// window. Used for simulation setups with in-memory schedules.
type StaticModel struct {
	mu       sync.Mutex
	possible []planning.PossibleSchedule
}

// NewStaticModel creates a model over a fixed list of schedules, indexed
// densely from zero.
func NewStaticModel(schedules []planning.Schedule) *StaticModel {
	m := &StaticModel{}
	m.SetPossibleSchedules(schedules)
	return m
}

// GenerateSchedules returns the fixed catalogue.
func (m *StaticModel) GenerateSchedules(_ time.Time, _, intervals int) ([]planning.PossibleSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.possible) == 0 {
		return nil, ErrNoSchedule
	}
	for _, ps := range m.possible {
		if len(ps.Sched) != intervals {
			return nil, fmt.Errorf("%w: schedule %d has %d intervals, want %d",
				ErrNoSchedule, ps.SID, len(ps.Sched), intervals)
		}
	}
	return m.possible, nil
}

// Schedule resolves a schedule id.
func (m *StaticModel) Schedule(sid int) (planning.Schedule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sid < 0 || sid >= len(m.possible) {
		return nil, false
	}
	return m.possible[sid].Sched, true
}

// SetPossibleSchedules replaces the catalogue.
func (m *StaticModel) SetPossibleSchedules(schedules []planning.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.possible = make([]planning.PossibleSchedule, len(schedules))
	for i, sched := range schedules {
		m.possible[i] = planning.PossibleSchedule{SID: i, Sched: sched}
	}
}
