// Package scheduleio reads the line-delimited schedule file format: a
// JSON metadata header on the first line followed by comma-separated
// float rows, optionally xz-compressed.
package scheduleio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
)

// reader opens path, transparently decompressing .xz files.
func reader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".xz") {
		return f, nil
	}
	r, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &xzReadCloser{Reader: r, file: f}, nil
}

type xzReadCloser struct {
	*xz.Reader
	file *os.File
}

func (r *xzReadCloser) Close() error { return r.file.Close() }

// readHeader decodes the first line of the file into header.
func readHeader(scanner *bufio.Scanner, path string, header any) error {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read header of %s: %w", path, err)
		}
		return fmt.Errorf("%s is empty", path)
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(scanner.Text())), header); err != nil {
		return fmt.Errorf("parse header of %s: %w", path, err)
	}
	return nil
}

// parseFloats splits a CSV data row into exactly want floats.
func parseFloats(line string, want int) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d columns, got %d", want, len(fields))
	}
	values := make([]float64, want)
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}
