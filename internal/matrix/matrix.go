package matrix

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Matrix is a square table of pairwise inter-zone latencies in milliseconds.
// Zones holds the header's zone names in their canonical column order; the
// same order drives class/handle allocation later, so it is preserved as read.
// A Matrix is immutable after Load/Parse.
type Matrix struct {
	Zones     []string
	latencies map[string]map[string]int
}

// Load reads a latency matrix from a CSV file.
func Load(path string) (*Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a latency matrix from CSV data.
//
// The first row is the header: its first cell is ignored, the remaining cells
// are zone names. Each following row is a zone name followed by one integer
// latency (ms) per header column, positionally matched.
func Parse(r io.Reader) (*Matrix, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("matrix is empty")
	}

	header := records[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("header has no zone columns")
	}
	zones := make([]string, 0, len(header)-1)
	seen := map[string]bool{}
	for _, z := range header[1:] {
		z = strings.TrimSpace(z)
		if z == "" {
			return nil, fmt.Errorf("empty zone name in header")
		}
		if seen[z] {
			return nil, fmt.Errorf("duplicate zone %q in header", z)
		}
		seen[z] = true
		zones = append(zones, z)
	}

	latencies := make(map[string]map[string]int, len(zones))
	for i, rec := range records[1:] {
		line := i + 2
		if len(rec) < len(zones)+1 {
			return nil, fmt.Errorf("line %d: %d cells, want %d", line, len(rec), len(zones)+1)
		}
		rowZone := strings.TrimSpace(rec[0])
		if !seen[rowZone] {
			return nil, fmt.Errorf("line %d: zone %q not in header", line, rowZone)
		}
		if _, dup := latencies[rowZone]; dup {
			return nil, fmt.Errorf("line %d: duplicate row for zone %q", line, rowZone)
		}
		row := make(map[string]int, len(zones))
		for j, colZone := range zones {
			ms, err := strconv.Atoi(strings.TrimSpace(rec[j+1]))
			if err != nil {
				return nil, fmt.Errorf("line %d: latency for %s->%s: %w", line, rowZone, colZone, err)
			}
			row[colZone] = ms
		}
		latencies[rowZone] = row
	}

	return &Matrix{Zones: zones, latencies: latencies}, nil
}

// Latency returns the from->to latency in milliseconds. The second return is
// false when either zone has no entry.
func (m *Matrix) Latency(from, to string) (int, bool) {
	row, ok := m.latencies[from]
	if !ok {
		return 0, false
	}
	ms, ok := row[to]
	return ms, ok
}

// HasRow reports whether the matrix has a latency row for zone.
func (m *Matrix) HasRow(zone string) bool {
	_, ok := m.latencies[zone]
	return ok
}
