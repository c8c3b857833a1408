// Package telemetry implements per-(skill,version) metrics collection (spec
// §4.6/§3): a bounded rolling latency buffer the same shape as
// eventloop.LatencyMetrics's ring buffer, percentile computation, JSONL
// persistence of periodic snapshots via internal/jsonl, and Prometheus
// gauge/counter exposition registered the way
// test/unit/gateway/metrics/error_recovery_test.go builds its CounterVecs
// against a private *prometheus.Registry rather than the global default one.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kloros-ai/aic/internal/jsonl"
	"github.com/kloros-ai/aic/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

// MaxLatencySamples bounds the rolling window kept per (skill, version),
// mirroring types.SkillMetrics's doc comment.
const MaxLatencySamples = 1000

// series is the mutable rolling state for one (skill, version) pair.
type series struct {
	mu         sync.Mutex
	calls      int64
	errors     int64
	tokensIn   int64
	tokensOut  int64
	costUSD    float64
	modelUsage map[string]int64
	latencies  []float64 // ring buffer, capped at MaxLatencySamples
	next       int
}

func newSeries() *series {
	return &series{modelUsage: map[string]int64{}}
}

func (s *series) record(latencyMs float64, isErr bool, tokensIn, tokensOut int64, costUSD float64, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if isErr {
		s.errors++
	}
	s.tokensIn += tokensIn
	s.tokensOut += tokensOut
	s.costUSD += costUSD
	if model != "" {
		s.modelUsage[model]++
	}
	if len(s.latencies) < MaxLatencySamples {
		s.latencies = append(s.latencies, latencyMs)
	} else {
		s.latencies[s.next] = latencyMs
		s.next = (s.next + 1) % MaxLatencySamples
	}
}

func (s *series) snapshot(skill, version string) types.SkillMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	modelUsage := make(map[string]int64, len(s.modelUsage))
	for k, v := range s.modelUsage {
		modelUsage[k] = v
	}
	latencies := append([]float64(nil), s.latencies...)
	return types.SkillMetrics{
		Skill: skill, Version: version,
		Calls: s.calls, Errors: s.errors,
		Latencies:   latencies,
		TokensIn:    s.tokensIn, TokensOut: s.tokensOut,
		CostUSD:     s.costUSD,
		ModelUsage:  modelUsage,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
}

// key identifies one rolling series.
type key struct{ skill, version string }

// Collector is the telemetry sink: one call to Record per skill invocation,
// periodic Flush to persist a snapshot and update Prometheus gauges.
type Collector struct {
	mu     sync.Mutex
	series map[key]*series
	log    *jsonl.Log
	now    func() time.Time

	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	errs     *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	cost     *prometheus.CounterVec
}

// New opens the skill_metrics.jsonl stream at logPath and registers the
// Prometheus collectors against a private registry (never the global
// default one, so multiple Collectors in tests never collide).
func New(logPath string) (*Collector, error) {
	log, err := jsonl.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open skill metrics log: %w", err)
	}
	reg := prometheus.NewRegistry()
	c := &Collector{
		series:   map[key]*series{},
		log:      log,
		now:      time.Now,
		registry: reg,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kloros", Subsystem: "skill", Name: "calls_total",
			Help: "Total skill invocations by skill and version.",
		}, []string{"skill", "version"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kloros", Subsystem: "skill", Name: "errors_total",
			Help: "Total skill invocation errors by skill and version.",
		}, []string{"skill", "version"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kloros", Subsystem: "skill", Name: "latency_ms",
			Help:    "Skill invocation latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"skill", "version"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kloros", Subsystem: "skill", Name: "cost_usd_total",
			Help: "Total estimated cost in USD by skill and version.",
		}, []string{"skill", "version"}),
	}
	reg.MustRegister(c.calls, c.errs, c.latency, c.cost)
	return c, nil
}

// Registry exposes the private Prometheus registry for a /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// modelPricing is USD per 1M tokens, grounded on telemetry.py's
// MODEL_PRICING table. Entries are deliberately the public model names the
// original lists; callers that pass an unrecognized or local model name
// fall through to "default".
var modelPricing = map[string]struct{ input, output float64 }{
	"claude-opus-4":     {15.00, 75.00},
	"claude-sonnet-4-5": {3.00, 15.00},
	"claude-sonnet-4":   {3.00, 15.00},
	"claude-haiku-4":    {0.25, 1.25},
	"claude-3-5-sonnet": {3.00, 15.00},
	"claude-3-opus":     {15.00, 75.00},
	"claude-3-sonnet":   {3.00, 15.00},
	"claude-3-haiku":    {0.25, 1.25},
	"gpt-4o-mini":       {0.15, 0.60},
	"gpt-4o":            {5.00, 15.00},
	"gpt-4-turbo":       {10.00, 30.00},
	"gpt-4":             {30.00, 60.00},
	"gpt-3.5-turbo":     {0.50, 1.50},
	"ollama":            {0, 0},
	"llama":             {0, 0},
	"mistral":           {0, 0},
	"default":           {1.00, 2.00},
}

// pricingKeysByLength is modelPricing's keys sorted longest-first, so a
// substring match picks "gpt-4o-mini" over the shorter "gpt-4o" and "gpt-4"
// for a model name like "gpt-4o-mini" (telemetry.py's calculate_cost does the same
// longest-key-first search to disambiguate versioned model names).
var pricingKeysByLength = sortedPricingKeys()

func sortedPricingKeys() []string {
	keys := make([]string, 0, len(modelPricing))
	for k := range modelPricing {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}

// CalculateCost estimates USD cost for one LLM call from its token counts
// and model name, grounded on telemetry.py's calculate_cost. Record accepts
// a pre-computed cost so callers with their own billing data aren't forced
// through this table, but CLI and reasoning-coordinator call sites that
// only know token counts use this to fill it in.
func CalculateCost(tokensIn, tokensOut int64, model string) float64 {
	modelLower := strings.ToLower(model)
	pricing := modelPricing["default"]
	for _, key := range pricingKeysByLength {
		if strings.Contains(modelLower, key) {
			pricing = modelPricing[key]
			break
		}
	}
	costIn := float64(tokensIn) / 1_000_000 * pricing.input
	costOut := float64(tokensOut) / 1_000_000 * pricing.output
	return costIn + costOut
}

// Record logs one skill invocation's outcome into the rolling series and
// the Prometheus collectors.
func (c *Collector) Record(skill, version string, latencyMs float64, isErr bool, tokensIn, tokensOut int64, costUSD float64, model string) {
	k := key{skill, version}
	c.mu.Lock()
	s, ok := c.series[k]
	if !ok {
		s = newSeries()
		c.series[k] = s
	}
	c.mu.Unlock()
	s.record(latencyMs, isErr, tokensIn, tokensOut, costUSD, model)

	c.calls.WithLabelValues(skill, version).Inc()
	if isErr {
		c.errs.WithLabelValues(skill, version).Inc()
	}
	c.latency.WithLabelValues(skill, version).Observe(latencyMs)
	if costUSD > 0 {
		c.cost.WithLabelValues(skill, version).Add(costUSD)
	}
}

// RecordCall is Record with cost derived from token counts via
// CalculateCost instead of supplied by the caller, matching
// telemetry.py's record_call (which always computes cost itself rather
// than accepting it as a parameter). Non-LLM actions with no model name
// pass model="" and record zero cost, same as the original's guard.
func (c *Collector) RecordCall(skill, version string, latencyMs float64, isErr bool, tokensIn, tokensOut int64, model string) {
	var cost float64
	if model != "" && (tokensIn > 0 || tokensOut > 0) {
		cost = CalculateCost(tokensIn, tokensOut, model)
	}
	c.Record(skill, version, latencyMs, isErr, tokensIn, tokensOut, cost, model)
}

// Snapshot returns the current rolling SkillMetrics for (skill, version).
func (c *Collector) Snapshot(skill, version string) (types.SkillMetrics, bool) {
	c.mu.Lock()
	s, ok := c.series[key{skill, version}]
	c.mu.Unlock()
	if !ok {
		return types.SkillMetrics{}, false
	}
	return s.snapshot(skill, version), true
}

// Lookup adapts Snapshot to governance.SLOLookup's signature.
func (c *Collector) Lookup(skill, version string) (types.SkillMetrics, bool) {
	return c.Snapshot(skill, version)
}

// Flush appends a TelemetrySample for every tracked (skill, version) pair
// to the skill_metrics.jsonl stream (spec §6) and returns how many were
// written.
func (c *Collector) Flush() (int, error) {
	c.mu.Lock()
	keys := make([]key, 0, len(c.series))
	for k := range c.series {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].skill != keys[j].skill {
			return keys[i].skill < keys[j].skill
		}
		return keys[i].version < keys[j].version
	})

	ts := c.now().UTC().Format(time.RFC3339)
	for _, k := range keys {
		m, ok := c.Snapshot(k.skill, k.version)
		if !ok {
			continue
		}
		sample := types.TelemetrySample{
			TS: ts, Skill: k.skill, Version: k.version,
			Calls: m.Calls, Errors: m.Errors, ErrorRate: m.ErrorRate(),
			P50LatencyMs: Percentile(m.Latencies, 0.50),
			P95LatencyMs: Percentile(m.Latencies, 0.95),
			P99LatencyMs: Percentile(m.Latencies, 0.99),
			AvgLatencyMs: average(m.Latencies),
			TokensIn:     m.TokensIn, TokensOut: m.TokensOut,
			CostUSD: m.CostUSD, ModelUsage: m.ModelUsage,
		}
		if m.Calls > 0 {
			sample.AvgCostPerCall = m.CostUSD / float64(m.Calls)
		}
		if err := c.log.Append(sample); err != nil {
			return 0, fmt.Errorf("telemetry: flush sample for %s@%s: %w", k.skill, k.version, err)
		}
	}
	return len(keys), nil
}

// Percentile returns the p-th percentile (p in [0,1]) of samples: the
// element at index floor(p*(n-1)) of a sorted copy, without interpolation.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
