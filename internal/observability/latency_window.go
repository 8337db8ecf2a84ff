package observability

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// TurnStageStats summarises one latency stage over the rolling window.
type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type TurnIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
	Indicators  []TurnIndicator  `json:"indicators,omitempty"`
}

// targetP95 is the latency budget reported next to each stage.
var targetP95 = map[string]float64{
	StageReply:   4000,
	StageFailure: 1000,
}

// LatencyWindow keeps the last N samples per stage plus plain event counters.
// The server feeds it from controller hooks; load drivers use their own.
type LatencyWindow struct {
	mu       sync.Mutex
	size     int
	rings    map[string]*ring
	counters map[string]int
}

type ring struct {
	samples []float64
	pos     int
	last    float64
}

func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 512
	}
	w := &LatencyWindow{size: size}
	w.Reset()
	return w
}

func (w *LatencyWindow) Observe(stage string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.rings[stage]
	if r == nil {
		r = &ring{samples: make([]float64, 0, w.size)}
		w.rings[stage] = r
	}
	r.push(ms, w.size)
}

// Count bumps a named indicator such as a rejected submit or a clear.
func (w *LatencyWindow) Count(name string) {
	name = strings.TrimSpace(name)
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counters[name]++
}

func (w *LatencyWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rings = make(map[string]*ring)
	w.counters = make(map[string]int)
}

func (w *LatencyWindow) Snapshot() TurnStageSnapshot {
	snap := TurnStageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []TurnStageStats{}}
	if w == nil {
		return snap
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	snap.WindowSize = w.size
	for _, stage := range sortedKeys(w.rings) {
		if stats, ok := w.rings[stage].summarize(stage); ok {
			snap.Stages = append(snap.Stages, stats)
		}
	}
	for _, name := range sortedKeys(w.counters) {
		snap.Indicators = append(snap.Indicators, TurnIndicator{Name: name, Count: w.counters[name]})
	}
	return snap
}

func (r *ring) push(ms float64, size int) {
	r.last = ms
	if len(r.samples) < size {
		r.samples = append(r.samples, ms)
		return
	}
	r.samples[r.pos] = ms
	r.pos = (r.pos + 1) % size
}

func (r *ring) summarize(stage string) (TurnStageStats, bool) {
	if len(r.samples) == 0 {
		return TurnStageStats{}, false
	}
	sorted := slices.Clone(r.samples)
	slices.Sort(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return TurnStageStats{
		Stage:       stage,
		Samples:     len(sorted),
		LastMS:      round2(r.last),
		AvgMS:       round2(sum / float64(len(sorted))),
		P50MS:       round2(percentile(sorted, 50)),
		P95MS:       round2(percentile(sorted, 95)),
		P99MS:       round2(percentile(sorted, 99)),
		TargetP95MS: targetP95[stage],
	}, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(rank-float64(lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
