package observability

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome is how a session ended.
type Outcome int

const (
	OutcomeServed Outcome = iota
	OutcomeMalformed
	OutcomePeerClosed
	OutcomeTimeout
	OutcomeTooLarge
	OutcomeReadError
	OutcomeSendFailed
	OutcomeHandlerPanic
	numOutcomes
)

var outcomeNames = [numOutcomes]string{
	"served",
	"malformed",
	"peer_closed",
	"timeout",
	"too_large",
	"read_error",
	"send_failed",
	"handler_panic",
}

func (o Outcome) String() string {
	if o < 0 || o >= numOutcomes {
		return "unknown"
	}
	return outcomeNames[o]
}

// latency bucket upper bounds; the last bucket is open-ended
var bucketBounds = [...]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

const numBuckets = len(bucketBounds) + 1

// DefaultMaxPaths bounds how many distinct paths get their own metrics.
const DefaultMaxPaths = 64

// OtherPath collects handler metrics for paths past the limit.
const OtherPath = "(other)"

// Monitor counts connection admissions, session outcomes and per-path
// handler latency. All methods are safe for concurrent use.
type Monitor struct {
	enabled  atomic.Bool
	paths    sync.Map // path -> *PathMetrics
	pathsMu  sync.Mutex
	numPaths int
	maxPaths int
	accepted atomic.Uint64
	active   atomic.Int64
	outcomes [numOutcomes]atomic.Uint64
	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

// PathMetrics stores per-path handler metrics
type PathMetrics struct {
	Path           string
	Count          atomic.Uint64
	TotalDuration  atomic.Uint64
	MinDuration    atomic.Uint64
	MaxDuration    atomic.Uint64
	latencyBuckets [numBuckets]atomic.Uint64
}

// NewMonitor creates an enabled monitor
func NewMonitor() *Monitor {
	m := &Monitor{maxPaths: DefaultMaxPaths}
	m.enabled.Store(true)
	return m
}

// SetMaxPaths changes the number of distinct paths tracked before the rest
// are counted under OtherPath. Paths already tracked are kept.
func (m *Monitor) SetMaxPaths(n int) {
	m.pathsMu.Lock()
	m.maxPaths = n
	m.pathsMu.Unlock()
}

// SetEnabled switches recording on or off
func (m *Monitor) SetEnabled(on bool) {
	m.enabled.Store(on)
}

// SessionStarted records an admitted connection
func (m *Monitor) SessionStarted() {
	if !m.enabled.Load() {
		return
	}
	m.accepted.Add(1)
	m.active.Add(1)
}

// SessionFinished records how a session ended and the bytes it moved
func (m *Monitor) SessionFinished(o Outcome, bytesIn, bytesOut int) {
	if !m.enabled.Load() {
		return
	}
	m.active.Add(-1)
	if o >= 0 && o < numOutcomes {
		m.outcomes[o].Add(1)
	}
	m.bytesIn.Add(uint64(bytesIn))
	m.bytesOut.Add(uint64(bytesOut))
}

// RecordHandler records one handler invocation for path
func (m *Monitor) RecordHandler(path string, duration time.Duration) {
	if !m.enabled.Load() {
		return
	}

	metrics := m.pathMetrics(path)

	d := uint64(duration.Nanoseconds())
	metrics.Count.Add(1)
	metrics.TotalDuration.Add(d)
	updateMinMax(metrics, d)
	metrics.latencyBuckets[bucketFor(duration)].Add(1)
}

// pathMetrics returns the entry for path, or the OtherPath entry once
// maxPaths distinct paths are tracked.
func (m *Monitor) pathMetrics(path string) *PathMetrics {
	if val, ok := m.paths.Load(path); ok {
		return val.(*PathMetrics)
	}

	m.pathsMu.Lock()
	defer m.pathsMu.Unlock()

	if val, ok := m.paths.Load(path); ok {
		return val.(*PathMetrics)
	}
	if m.numPaths >= m.maxPaths {
		path = OtherPath
		if val, ok := m.paths.Load(path); ok {
			return val.(*PathMetrics)
		}
	} else {
		m.numPaths++
	}

	pm := newPathMetrics(path)
	m.paths.Store(path, pm)
	return pm
}

func newPathMetrics(path string) *PathMetrics {
	pm := &PathMetrics{Path: path}
	pm.MinDuration.Store(math.MaxUint64)
	return pm
}

func updateMinMax(m *PathMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if d >= min {
			break
		}
		if m.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d <= max {
			break
		}
		if m.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

func bucketFor(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return numBuckets - 1
}

// Snapshot is a point-in-time copy of the monitor's counters.
type Snapshot struct {
	Accepted uint64
	Active   int64
	Outcomes map[string]uint64
	BytesIn  uint64
	BytesOut uint64
	Paths    []PathSnapshot
}

// PathSnapshot summarizes handler latency for one path.
type PathSnapshot struct {
	Path    string
	Count   uint64
	Average time.Duration
	Min     time.Duration
	Max     time.Duration
	Buckets [numBuckets]uint64
}

// Snapshot copies the current counters. Paths are sorted by name.
func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		Accepted: m.accepted.Load(),
		Active:   m.active.Load(),
		Outcomes: make(map[string]uint64, numOutcomes),
		BytesIn:  m.bytesIn.Load(),
		BytesOut: m.bytesOut.Load(),
	}
	for o := Outcome(0); o < numOutcomes; o++ {
		s.Outcomes[o.String()] = m.outcomes[o].Load()
	}

	m.paths.Range(func(_, value any) bool {
		pm := value.(*PathMetrics)
		ps := PathSnapshot{
			Path:  pm.Path,
			Count: pm.Count.Load(),
			Max:   time.Duration(pm.MaxDuration.Load()),
		}
		if min := pm.MinDuration.Load(); min != math.MaxUint64 {
			ps.Min = time.Duration(min)
		}
		if ps.Count > 0 {
			ps.Average = time.Duration(pm.TotalDuration.Load() / ps.Count)
		}
		for i := range ps.Buckets {
			ps.Buckets[i] = pm.latencyBuckets[i].Load()
		}
		s.Paths = append(s.Paths, ps)
		return true
	})
	sort.Slice(s.Paths, func(i, j int) bool { return s.Paths[i].Path < s.Paths[j].Path })

	return s
}
