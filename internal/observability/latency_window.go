package observability

import (
	"math"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stage names recorded per orchestrator operation.
const (
	StageCompaction = "compaction"
	StageModelCall  = "model_call"
	StagePersist    = "persist"
	StageEvaluation = "evaluation"
	StageTurnTotal  = "turn_total"
)

// Indicator names counted next to the stage samples.
const (
	IndicatorModelRetry          = "model_retry"
	IndicatorConfidenceDefaulted = "confidence_defaulted"
	IndicatorSummaryRefreshed    = "summary_refreshed"
	IndicatorHistoryTruncated    = "history_truncated"
	IndicatorEvaluationDefaulted = "evaluation_defaulted"
	IndicatorTopicFallback       = "topic_fallback"
)

// stageBudgets holds the p95 latency each stage is expected to stay under.
var stageBudgets = map[string]float64{
	StageCompaction: 20,
	StagePersist:    150,
	StageModelCall:  6000,
	StageEvaluation: 12000,
	StageTurnTotal:  8000,
}

// StageLatency summarizes the retained samples of one stage in milliseconds.
type StageLatency struct {
	Stage    string  `json:"stage"`
	Samples  int     `json:"samples"`
	LastMS   float64 `json:"last_ms"`
	MeanMS   float64 `json:"mean_ms"`
	P50MS    float64 `json:"p50_ms"`
	P95MS    float64 `json:"p95_ms"`
	P99MS    float64 `json:"p99_ms"`
	BudgetMS float64 `json:"budget_p95_ms,omitempty"`
}

// LatencyReport is the payload of /v1/perf/latency.
type LatencyReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageLatency `json:"stages"`
	Indicators  map[string]int `json:"indicators,omitempty"`
}

// latencyWindow keeps the most recent samples per stage in fixed rings.
type latencyWindow struct {
	mu         sync.Mutex
	size       int
	rings      map[string]*ring
	indicators map[string]int
}

type ring struct {
	samples []float64
	pos     int
	last    float64
}

func (r *ring) push(v float64, size int) {
	r.last = v
	if len(r.samples) < size {
		r.samples = append(r.samples, v)
		return
	}
	r.samples[r.pos] = v
	r.pos = (r.pos + 1) % size
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{
		size:       size,
		rings:      make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

func (w *latencyWindow) observe(stage string, ms float64) {
	if stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[stage]
	if !ok {
		r = &ring{samples: make([]float64, 0, w.size)}
		w.rings[stage] = r
	}
	r.push(ms, w.size)
}

func (w *latencyWindow) count(name string) {
	if name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

func (w *latencyWindow) report() LatencyReport {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := LatencyReport{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageLatency, 0, len(w.rings)),
	}
	for stage, r := range w.rings {
		if len(r.samples) == 0 {
			continue
		}
		sorted := slices.Clone(r.samples)
		slices.Sort(sorted)
		out.Stages = append(out.Stages, StageLatency{
			Stage:    stage,
			Samples:  len(sorted),
			LastMS:   round2(r.last),
			MeanMS:   round2(stat.Mean(sorted, nil)),
			P50MS:    round2(stat.Quantile(0.50, stat.Empirical, sorted, nil)),
			P95MS:    round2(stat.Quantile(0.95, stat.Empirical, sorted, nil)),
			P99MS:    round2(stat.Quantile(0.99, stat.Empirical, sorted, nil)),
			BudgetMS: stageBudgets[stage],
		})
	}
	slices.SortFunc(out.Stages, func(a, b StageLatency) int {
		switch {
		case a.Stage < b.Stage:
			return -1
		case a.Stage > b.Stage:
			return 1
		}
		return 0
	})
	if len(w.indicators) > 0 {
		out.Indicators = make(map[string]int, len(w.indicators))
		for name, n := range w.indicators {
			out.Indicators[name] = n
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
