package scheduleio

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gridmind/swarmplan/internal/planning"
)

// catalogueHeader is the JSON metadata line of a schedule-catalogue
// file. Each entry of Cols names one schedule column.
type catalogueHeader struct {
	StartTime       string   `json:"start_time"`
	IntervalMinutes int      `json:"interval_minutes"`
	Cols            []string `json:"cols"`
}

// ReadCatalogue loads the schedules of one catalogue file if its header
// matches the requested window. A file for a different window returns
// (nil, nil, nil); malformed files return an error.
func ReadCatalogue(path string, start time.Time, resolution, intervals int) ([]planning.Schedule, []string, error) {
	r, err := reader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalogue file: %w", err)
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	var header catalogueHeader
	if err := readHeader(scanner, path, &header); err != nil {
		return nil, nil, err
	}

	fileStart, err := time.Parse(time.RFC3339, header.StartTime)
	if err != nil {
		return nil, nil, fmt.Errorf("catalogue file %s: parse start_time: %w", path, err)
	}
	if !fileStart.Equal(start) || header.IntervalMinutes*60 != resolution {
		return nil, nil, nil
	}

	cols := len(header.Cols)
	schedules := make([]planning.Schedule, cols)
	for i := range schedules {
		schedules[i] = make(planning.Schedule, 0, intervals)
	}
	rows := 0
	for scanner.Scan() {
		row, err := parseFloats(scanner.Text(), cols)
		if err != nil {
			return nil, nil, fmt.Errorf("catalogue file %s row %d: %w", path, rows+1, err)
		}
		for n := 0; n < cols; n++ {
			schedules[n] = append(schedules[n], row[n])
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if rows != intervals {
		// Wrong horizon for this window; skip the file.
		return nil, nil, nil
	}
	return schedules, header.Cols, nil
}
