// Package csvsink implements the append-only CSV result writer, flushed
// after every write so a killed run is recoverable.
package csvsink

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bfuzz/bfuzz/internal/runmeta"
)

// Cell is one solver's result for a row: elapsed milliseconds, or absent
// if that solver produced no usable time for the row.
type Cell struct {
	Present bool
	Msec    float64
}

// Row is one CSV line's worth of data.
type Row struct {
	Margin float64
	Times  map[string]Cell
	Pred   string
	RawAST string
}

// Sink is the coordinator-owned, append-only CSV writer. Not safe for
// concurrent writes from more than one goroutine (the coordinator is
// single-threaded per spec's concurrency model), but Close/Write are
// mutex-guarded defensively.
type Sink struct {
	mu        sync.Mutex
	f         *os.File
	solverIDs []string
}

// Open creates or appends to path, writing a run-metadata comment line
// and the header (sorted solver ids) only if the file is new/empty.
func Open(path string, solverIDs []string, meta runmeta.Metadata) (*Sink, error) {
	sorted := append([]string{}, solverIDs...)
	sort.Strings(sorted)

	info, statErr := os.Stat(path)
	needsHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvsink: open %s: %w", path, err)
	}

	s := &Sink{f: f, solverIDs: sorted}
	if needsHeader {
		if err := s.writeHeader(meta); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Sink) writeHeader(meta runmeta.Metadata) error {
	if _, err := s.f.WriteString(meta.HeaderComment() + "\n"); err != nil {
		return fmt.Errorf("csvsink: write run comment: %w", err)
	}
	cols := append([]string{"margin"}, s.solverIDs...)
	cols = append(cols, "pred", "raw_ast")
	line := strings.Join(cols, ",") + "\n"
	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("csvsink: write header: %w", err)
	}
	return s.f.Sync()
}

// WriteRow appends row and flushes. Solver ids absent from row.Times
// render as empty cells. pred and raw_ast are double-quoted with no
// escaping of embedded quotes, matching the source format bit-for-bit.
func (s *Sink) WriteRow(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString(formatFloat(row.Margin))
	for _, id := range s.solverIDs {
		b.WriteByte(',')
		if c, ok := row.Times[id]; ok && c.Present {
			b.WriteString(formatFloat(c.Msec))
		}
	}
	b.WriteByte(',')
	b.WriteByte('"')
	b.WriteString(row.Pred)
	b.WriteByte('"')
	b.WriteByte(',')
	b.WriteByte('"')
	b.WriteString(row.RawAST)
	b.WriteByte('"')
	b.WriteByte('\n')

	if _, err := s.f.WriteString(b.String()); err != nil {
		return fmt.Errorf("csvsink: write row: %w", err)
	}
	return s.f.Sync()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
