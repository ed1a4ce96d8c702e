package pool

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is the pool's live counter block. Counters are plain atomics;
// the EMA latency is the one field that needs a critical section
// (read-modify-write on a float can't be done atomically), so it gets
// its own short-held mutex — spec §5's "short lock on the metrics
// block".
type Metrics struct {
	tasksCompleted atomic.Uint64
	tasksFailed    atomic.Uint64
	bytesIn        atomic.Uint64
	bytesOut       atomic.Uint64
	stolen         atomic.Uint64
	rejected       atomic.Uint64

	latencyMu  sync.Mutex
	latencyEMA float64
}

// emaAlpha weights the most recent sample; 0.2 is a conventional
// default for a responsive-but-stable moving average.
const emaAlpha = 0.2

func (m *Metrics) recordCompletion(d time.Duration, bytesOut int) {
	m.tasksCompleted.Add(1)
	m.bytesOut.Add(uint64(bytesOut))
	m.recordLatency(d)
}

func (m *Metrics) recordFailure(d time.Duration) {
	m.tasksFailed.Add(1)
	m.recordLatency(d)
}

func (m *Metrics) recordLatency(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	m.latencyMu.Lock()
	if m.latencyEMA == 0 {
		m.latencyEMA = ms
	} else {
		m.latencyEMA = emaAlpha*ms + (1-emaAlpha)*m.latencyEMA
	}
	m.latencyMu.Unlock()
}

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	TasksCompleted  uint64
	TasksFailed     uint64
	BytesIn         uint64
	BytesOut        uint64
	Stolen          uint64
	Rejected        uint64
	ErrorRate       float64
	AvgLatencyMs    float64
}

// Snapshot returns the current metrics state.
func (m *Metrics) Snapshot() Snapshot {
	completed := m.tasksCompleted.Load()
	failed := m.tasksFailed.Load()
	var errRate float64
	if total := completed + failed; total > 0 {
		errRate = float64(failed) / float64(total)
	}
	m.latencyMu.Lock()
	avg := m.latencyEMA
	m.latencyMu.Unlock()
	return Snapshot{
		TasksCompleted: completed,
		TasksFailed:    failed,
		BytesIn:        m.bytesIn.Load(),
		BytesOut:       m.bytesOut.Load(),
		Stolen:         m.stolen.Load(),
		Rejected:       m.rejected.Load(),
		ErrorRate:      errRate,
		AvgLatencyMs:   avg,
	}
}
