// Package metrics aggregates backend invocation latencies per backend
// identifier. Recording uses HDR histograms so tail percentiles stay
// accurate without unbounded memory.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram bounds in microseconds: 1µs .. 5min, 3 significant digits.
const (
	minLatencyUs = 1
	maxLatencyUs = 5 * 60 * 1000 * 1000
	sigFigs      = 3
)

// Summary is a point-in-time view of one backend's invoke latencies.
type Summary struct {
	Count int64         `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// Recorder aggregates invoke latencies keyed by backend identifier.
type Recorder struct {
	mu    sync.Mutex
	hists map[string]*hdrhistogram.Histogram
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{hists: make(map[string]*hdrhistogram.Histogram)}
}

// RecordInvoke records one backend invocation latency.
func (r *Recorder) RecordInvoke(backendID string, d time.Duration) {
	us := d.Microseconds()
	if us < minLatencyUs {
		us = minLatencyUs
	}
	if us > maxLatencyUs {
		us = maxLatencyUs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hists[backendID]
	if !ok {
		h = hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs)
		r.hists[backendID] = h
	}
	_ = h.RecordValue(us)
}

// Snapshot returns the current per-backend summaries.
func (r *Recorder) Snapshot() map[string]Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Summary, len(r.hists))
	for id, h := range r.hists {
		out[id] = Summary{
			Count: h.TotalCount(),
			P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
			P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
			P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
			Max:   time.Duration(h.Max()) * time.Microsecond,
		}
	}
	return out
}
