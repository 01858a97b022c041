package scheduleio

import (
	"bufio"
	"fmt"
)

// targetHeader is the JSON metadata line of a target-curve file.
type targetHeader struct {
	IntervalMinutes int      `json:"interval_minutes"`
	Cols            []string `json:"cols"`
}

// ReadTarget loads a target curve: intervals rows of "target,weight"
// pairs following the metadata header. The header's interval length must
// match resolution (in seconds).
func ReadTarget(path string, resolution, intervals int) (target, weights []float64, err error) {
	r, err := reader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open target file: %w", err)
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	var header targetHeader
	if err := readHeader(scanner, path, &header); err != nil {
		return nil, nil, err
	}
	if header.IntervalMinutes*60 != resolution {
		return nil, nil, fmt.Errorf("target file %s has %d-minute intervals, want %d",
			path, header.IntervalMinutes, resolution/60)
	}

	target = make([]float64, intervals)
	weights = make([]float64, intervals)
	for i := 0; i < intervals; i++ {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, nil, fmt.Errorf("read %s: %w", path, err)
			}
			return nil, nil, fmt.Errorf("target file %s has %d rows, want %d", path, i, intervals)
		}
		row, err := parseFloats(scanner.Text(), 2)
		if err != nil {
			return nil, nil, fmt.Errorf("target file %s row %d: %w", path, i+1, err)
		}
		target[i] = row[0]
		weights[i] = row[1]
	}
	return target, weights, nil
}
