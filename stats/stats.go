package stats

import (
	"sync"

	"github.com/kinetic-engine/kinetic/game"
)

// Attribute names the scheduler reports once per elapsed frame, with a
// one-frame lag so in-flight timings are never read.
const (
	AttrWorkerTimeBegin = "physicsworker_time_begin"
	AttrWorkerTimeTaken = "physicsworker_time_taken"
	AttrWorkerTimeEnd   = "physicsworker_time_end"
)

// Sink receives named per-frame timing attributes from the scheduler.
type Sink interface {
	// Collect reports whether the sink wants attributes of the given
	// category at all, letting the scheduler skip timing bookkeeping.
	Collect(category string) bool
	// SetAttribute records one named value for one frame.
	SetAttribute(frame uint64, name string, value float64)
}

// Memory is a Sink keeping everything in a map, for tests and tools.
type Memory struct {
	mu     sync.Mutex
	frames map[uint64]map[string]float64
}

func NewMemory() *Memory {
	return &Memory{frames: make(map[uint64]map[string]float64)}
}

func (m *Memory) Collect(string) bool {
	return true
}

func (m *Memory) SetAttribute(frame uint64, name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attrs, ok := m.frames[frame]
	if !ok {
		attrs = make(map[string]float64)
		m.frames[frame] = attrs
	}
	attrs[name] = value
}

// Attribute returns a recorded value, if any.
func (m *Memory) Attribute(frame uint64, name string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.frames[frame][name]
	return v, ok
}

// Frames returns how many distinct frames have recorded attributes.
func (m *Memory) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// Summary aggregates one attribute across every recorded frame.
type Summary struct {
	Samples int
	Mean    float64
	Median  float64
	StdDev  float64
}

// Summarize computes the distribution of one attribute over all frames.
func (m *Memory) Summarize(name string) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var samples []float64
	for _, attrs := range m.frames {
		if v, ok := attrs[name]; ok {
			samples = append(samples, v)
		}
	}
	return Summary{
		Samples: len(samples),
		Mean:    game.Mean(samples),
		Median:  game.Median(samples),
		StdDev:  game.StandardDeviation(samples),
	}
}

// Discard is a Sink that collects nothing.
type Discard struct{}

func (Discard) Collect(string) bool                 { return false }
func (Discard) SetAttribute(uint64, string, float64) {}
