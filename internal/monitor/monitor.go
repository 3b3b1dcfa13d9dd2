package monitor

import (
	"context"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"media-webhook-processor/internal/telemetry"
	"media-webhook-processor/internal/tempfiles"
)

// Monitor samples process memory on a fixed interval, raises a throttle
// signal when heap usage crosses the limit, and triggers the temp sweep.
// It runs independently of any job.
type Monitor struct {
	limit    int64
	interval time.Duration
	maxAge   time.Duration
	tmp      *tempfiles.Manager
	pressure atomic.Bool
}

// New builds a monitor; tmp may be nil when sweeping is handled elsewhere.
func New(limit int64, interval, maxAge time.Duration, tmp *tempfiles.Manager) *Monitor {
	return &Monitor{limit: limit, interval: interval, maxAge: maxAge, tmp: tmp}
}

// UnderPressure reports whether the last sample exceeded the memory limit.
// The batch loop consults this between batches to decide whether to pause.
func (m *Monitor) UnderPressure() bool {
	return m.pressure.Load()
}

// Run samples until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
			if m.tmp != nil {
				m.tmp.Sweep(m.maxAge)
			}
		}
	}
}

// Sample takes one memory reading and updates the pressure signal. A best
// effort GC is requested when over the limit; throttling is left to callers.
func (m *Monitor) Sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	over := m.limit > 0 && int64(ms.HeapAlloc) > m.limit
	if over && !m.pressure.Load() {
		log.Printf("monitor: heap %dMB over limit %dMB, requesting GC", ms.HeapAlloc/1024/1024, m.limit/1024/1024)
		runtime.GC()
	}
	m.pressure.Store(over)
	if over {
		telemetry.MemoryPressure.Set(1)
	} else {
		telemetry.MemoryPressure.Set(0)
	}
}
