// Package taglog keeps one append-only CSV trajectory log per tracked platform.
package taglog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/arucoloc/internal/posemath"
)

// ErrUnknownPlatform is returned when logging for a platform id that has no logger.
var ErrUnknownPlatform = errors.New("unknown platform")

// Header lists the log columns. The header line joins them with ", ";
// readers should trim leading space.
var Header = []string{
	"epoch[s]",
	"elapsed[s]",
	"x[m]",
	"y[m]",
	"z[m]",
	"roll[deg]",
	"pitch[deg]",
	"yaw[deg]",
	"broadcasted(1|0)",
}

// HeaderLine is the first line of every log file.
var HeaderLine = strings.Join(Header, ", ")

// Row is one observation of a platform.
type Row struct {
	Epoch       float64
	Elapsed     float64
	Position    r3.Vec
	Rotation    posemath.Euler
	Broadcasted bool
}

// Record returns the row as CSV fields.
func (r Row) Record() []string {
	broadcasted := "0"
	if r.Broadcasted {
		broadcasted = "1"
	}
	return []string{
		formatFloat(r.Epoch),
		formatFloat(r.Elapsed),
		formatFloat(r.Position.X),
		formatFloat(r.Position.Y),
		formatFloat(r.Position.Z),
		formatFloat(r.Rotation.Roll),
		formatFloat(r.Rotation.Pitch),
		formatFloat(r.Rotation.Yaw),
		broadcasted,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Logger appends rows for a single platform.
type Logger struct {
	id     int
	name   string
	path   string
	file   *os.File
	writer *csv.Writer
	rows   int
	mu     sync.Mutex
}

// NewLogger creates the log file for a platform and writes the header.
// An existing file at the same path is truncated.
func NewLogger(dir string, id int, name string) (*Logger, error) {
	path := filepath.Join(dir, fmt.Sprintf("%d_%s.csv", id, name))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log for platform %d: %w", id, err)
	}

	l := &Logger{
		id:     id,
		name:   name,
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
	}

	if _, err := file.WriteString(HeaderLine + "\n"); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write log header for platform %d: %w", id, err)
	}

	return l, nil
}

// Log appends one row and flushes it to disk.
func (l *Logger) Log(row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.write(row.Record()); err != nil {
		return err
	}
	l.rows++
	return nil
}

func (l *Logger) write(record []string) error {
	if err := l.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write log row for platform %d: %w", l.id, err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush log for platform %d: %w", l.id, err)
	}
	return nil
}

// ID returns the platform id.
func (l *Logger) ID() int {
	return l.id
}

// Name returns the platform name.
func (l *Logger) Name() string {
	return l.name
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Rows returns the number of rows logged so far, excluding the header.
func (l *Logger) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	l.writer.Flush()
	err := l.file.Close()
	l.file = nil
	return err
}

// Platform names a platform to create a logger for.
type Platform struct {
	ID   int
	Name string
}

// Registry owns one Logger per configured platform.
type Registry struct {
	dir     string
	loggers map[int]*Logger
}

// NewRegistry creates dir if needed and a logger for every platform.
func NewRegistry(dir string, platforms []Platform) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r := &Registry{
		dir:     dir,
		loggers: make(map[int]*Logger, len(platforms)),
	}

	for _, p := range platforms {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("Tag_%d", p.ID)
		}
		l, err := NewLogger(dir, p.ID, name)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.loggers[p.ID] = l
	}

	return r, nil
}

// Log appends a row to the logger for platform id.
func (r *Registry) Log(id int, row Row) error {
	l, ok := r.loggers[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlatform, id)
	}
	return l.Log(row)
}

// Has reports whether a logger exists for platform id.
func (r *Registry) Has(id int) bool {
	_, ok := r.loggers[id]
	return ok
}

// Logger returns the logger for platform id.
func (r *Registry) Logger(id int) (*Logger, bool) {
	l, ok := r.loggers[id]
	return l, ok
}

// IDs returns the configured platform ids, ascending.
func (r *Registry) IDs() []int {
	ids := make([]int, 0, len(r.loggers))
	for id := range r.loggers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Dir returns the directory holding the log files.
func (r *Registry) Dir() string {
	return r.dir
}

// Close closes every logger and returns the first error.
func (r *Registry) Close() error {
	var first error
	for _, l := range r.loggers {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
