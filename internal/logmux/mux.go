// Package logmux buffers captured child output between polls of the
// supervisor. Readers never block on a slow consumer: when the buffer is full
// lines are dropped and a synthesized "dropped=N" line is emitted once there
// is room again.
package logmux

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Paintersrp/servicestation/internal/runtime"
)

// maxLineLength bounds a single captured line.
const maxLineLength = 1 << 20

// Line is one line of captured output.
type Line struct {
	Timestamp time.Time
	Source    string
	Level     string
	Text      string
}

// Mux collects lines from one or more readers into a bounded buffer.
type Mux struct {
	out chan Line

	mu      sync.Mutex
	drops   map[string]int
	dropped atomic.Int64
	inputs  sync.WaitGroup
}

// New constructs a mux buffering up to size lines. A size of zero results in
// a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan Line, size),
		drops: make(map[string]int),
	}
}

// Add consumes r line by line until EOF or a read error.
func (m *Mux) Add(r io.Reader, source string) {
	if r == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
		for scanner.Scan() {
			m.deliver(normalize(Line{Source: source, Text: strings.TrimRight(scanner.Text(), "\r")}))
		}
		if err := scanner.Err(); err != nil {
			m.deliver(Line{
				Timestamp: time.Now(),
				Source:    runtime.LogSourceSystem,
				Level:     "warn",
				Text:      fmt.Sprintf("output capture stopped: %v", err),
			})
		}
	}()
}

// Drain returns every buffered line without blocking. Pending drop counts are
// appended as synthesized lines.
func (m *Mux) Drain() []Line {
	var lines []Line
	for {
		select {
		case line := <-m.out:
			lines = append(lines, line)
		default:
			for source, count := range m.collectDrops() {
				lines = append(lines, synthesizeDropLine(source, count))
			}
			return lines
		}
	}
}

// Dropped reports how many lines were discarded since the mux was created.
func (m *Mux) Dropped() int64 {
	return m.dropped.Load()
}

// Close waits until every reader has reached EOF. Buffered lines remain
// available to Drain.
func (m *Mux) Close() {
	m.inputs.Wait()
}

func (m *Mux) deliver(line Line) {
	if !m.flushPending(line.Source) {
		m.recordDrop(line.Source, 1)
		return
	}
	if m.trySend(line) {
		return
	}
	m.recordDrop(line.Source, 1)
}

func (m *Mux) flushPending(source string) bool {
	count := m.takeDrops(source)
	if count == 0 {
		return true
	}
	if m.trySend(synthesizeDropLine(source, count)) {
		return true
	}
	m.mu.Lock()
	m.drops[source] += count
	m.mu.Unlock()
	return false
}

func (m *Mux) takeDrops(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[source]
	if count != 0 {
		delete(m.drops, source)
	}
	return count
}

func (m *Mux) recordDrop(source string, count int) {
	m.dropped.Add(int64(count))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[source] += count
}

func (m *Mux) collectDrops() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.drops) == 0 {
		return nil
	}
	dup := m.drops
	m.drops = make(map[string]int)
	return dup
}

func (m *Mux) trySend(line Line) bool {
	select {
	case m.out <- line:
		return true
	default:
		return false
	}
}

func normalize(line Line) Line {
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now()
	}
	if line.Source == "" {
		line.Source = runtime.LogSourceStdout
	}
	if line.Level == "" {
		if line.Source == runtime.LogSourceStderr {
			line.Level = "warn"
		} else {
			line.Level = "info"
		}
	}
	return line
}

func synthesizeDropLine(source string, count int) Line {
	return Line{
		Timestamp: time.Now(),
		Source:    runtime.LogSourceSystem,
		Level:     "warn",
		Text:      fmt.Sprintf("dropped=%d source=%s", count, source),
	}
}
