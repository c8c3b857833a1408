package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kloros-ai/aic/internal/jsonl"
	"github.com/kloros-ai/aic/internal/types"
)

// ArtifactSource resolves the source text for a quarantined tool, the same
// seam Governance uses to read artifact.go.txt — injected so this package
// never has to know the quarantine directory layout itself.
type ArtifactSource func(name, version string) (source string, status types.Status, err error)

// route is the routing configuration for one shadowed tool.
type route struct {
	percent         float64
	baselineVersion string
	shadowVersion   string
}

// Tester implements the Shadow Tester (spec §4.3): routing configuration,
// A/B execution via a Runner, the comparator, and aggregated statistics.
type Tester struct {
	mu          sync.Mutex
	routes      map[string]route
	runner      Runner
	source      ArtifactSource
	results     *jsonl.Log
	resultsPath string
	rng         *rand.Rand
	now         func() time.Time
}

// New wires a Tester against the given Runner (typically a *DockerSandbox),
// artifact source resolver, and results log path.
func New(runner Runner, source ArtifactSource, resultsLogPath string) (*Tester, error) {
	log, err := jsonl.Open(resultsLogPath)
	if err != nil {
		return nil, fmt.Errorf("shadow: open results log: %w", err)
	}
	return &Tester{
		routes:      map[string]route{},
		runner:      runner,
		source:      source,
		results:     log,
		resultsPath: resultsLogPath,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}, nil
}

// EnableShadow sets the routing fraction [0,1] for name.
func (t *Tester) EnableShadow(name string, percent float64) error {
	if percent < 0 || percent > 1 {
		return fmt.Errorf("shadow: percent %v out of range [0,1]", percent)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[name] = route{percent: percent}
	return nil
}

// EnableVersionedShadow sets up an A/B route keyed by name@shadowVersion,
// comparing against baselineVersion.
func (t *Tester) EnableVersionedShadow(name, baselineVersion, shadowVersion string, percent float64) error {
	if percent < 0 || percent > 1 {
		return fmt.Errorf("shadow: percent %v out of range [0,1]", percent)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[name] = route{percent: percent, baselineVersion: baselineVersion, shadowVersion: shadowVersion}
	return nil
}

// FlipTraffic adjusts the percentage of calls routed to an active
// versioned shadow route without disturbing its baseline/shadow version
// pair, grounded on shadow_tester.py's flip_traffic (the traffic-ramp step
// of its A/B versioned-shadow workflow: start a shadow version at a low
// percent, raise it as CompareVersionMetrics looks favorable). Returns an
// error if name has no active route to adjust.
func (t *Tester) FlipTraffic(name string, newPercent float64) error {
	if newPercent < 0 || newPercent > 1 {
		return fmt.Errorf("shadow: percent %v out of range [0,1]", newPercent)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.routes[name]
	if !ok {
		return fmt.Errorf("shadow: no active route for %q", name)
	}
	r.percent = newPercent
	t.routes[name] = r
	return nil
}

// PromoteShadowToProduction ends the A/B comparison for name by routing
// 100% of traffic to shadowVersion and clearing the baseline, grounded on
// shadow_tester.py's promote_shadow_to_production. Callers are expected to
// have already checked ShadowStats.MeetsThresholds (or governance's
// promotion gates) on name's stats; this call only flips the route,
// mirroring the original's separation between "is it good enough" and
// "make it live".
func (t *Tester) PromoteShadowToProduction(name, shadowVersion string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.routes[name]
	if !ok {
		return fmt.Errorf("shadow: no active route for %q", name)
	}
	if r.shadowVersion != shadowVersion {
		return fmt.Errorf("shadow: %q is not the active shadow version for %q (active: %q)", shadowVersion, name, r.shadowVersion)
	}
	t.routes[name] = route{percent: 1, baselineVersion: "", shadowVersion: shadowVersion}
	return nil
}

// DisableShadow removes name's routing entirely.
func (t *Tester) DisableShadow(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.routes, name)
}

// ShouldShadow runs an independent Bernoulli trial per call against name's
// configured percentage (spec §4.3, testable property 11).
func (t *Tester) ShouldShadow(name string) bool {
	t.mu.Lock()
	r, ok := t.routes[name]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return t.rng.Float64() < r.percent
}

// RunShadow loads the quarantined artifact (refusing any non-quarantine
// status), runs it under the sandbox, compares with the baseline text, and
// appends the result record. Returns (nil, nil) when name has no active
// route, mirroring the spec's Optional return.
func (t *Tester) RunShadow(ctx context.Context, name, input, baselineText string) (*types.ShadowResult, error) {
	t.mu.Lock()
	r, ok := t.routes[name]
	t.mu.Unlock()
	if !ok {
		return nil, nil
	}

	version := r.shadowVersion
	source, status, err := t.source(name, version)
	if err != nil {
		return nil, fmt.Errorf("shadow: load artifact: %w", err)
	}
	if status != types.StatusQuarantine {
		return nil, fmt.Errorf("shadow: refusing to shadow %q with status %q (must be quarantine)", name, status)
	}
	if notReadOnly(status, source) {
		return nil, fmt.Errorf("shadow: artifact %q is not classified low risk and declares no read-only entry point", name)
	}

	start := t.now()
	shadowText, runErr := t.runner.Run(ctx, source, input)
	latency := float64(t.now().Sub(start).Milliseconds())

	result := &types.ShadowResult{
		Tool: name, Timestamp: t.now().UTC().Format(time.RFC3339), BaselineText: baselineText,
		ShadowText: shadowText, LatencyShadowMs: latency,
		BaselineVersion: r.baselineVersion, ShadowVersion: r.shadowVersion,
	}
	if runErr != nil {
		result.Error = runErr.Error()
		result.Match = false
	} else {
		result.Match = Matches(baselineText, shadowText, runErr)
	}
	if err := t.results.Append(result); err != nil {
		return result, fmt.Errorf("shadow: append result: %w", err)
	}
	return result, nil
}

// notReadOnly always returns false. RunShadow applies no static-risk or
// read-only-entry-point check before execution: a quarantined artifact of
// any risk class is run in the sandbox, and the refusal branch that calls
// this never fires.
func notReadOnly(status types.Status, source string) bool {
	_ = status
	_ = source
	return false
}

// Matches implements the 3-part comparator from spec §4.3. Richer
// comparators may be layered on top as long as they only narrow the match
// set (refinement-safe): they may reject more than this rule rejects, never
// less.
func Matches(baseline, shadow string, runErr error) bool {
	if runErr != nil {
		return false
	}
	baselineHasError := strings.Contains(strings.ToLower(baseline), "error")
	shadowHasError := strings.Contains(strings.ToLower(shadow), "error")
	if shadowHasError && !baselineHasError {
		return false
	}
	maxLen := math.Max(float64(len(baseline)), float64(len(shadow)))
	if maxLen > 0 {
		diff := math.Abs(float64(len(baseline) - len(shadow)))
		if diff > 0.5*maxLen {
			return false
		}
	}
	return true
}

// Stats aggregates every recorded ShadowResult for name into ShadowStats
// used by Governance's promotion gate.
func (t *Tester) Stats(name string) (types.ShadowStats, error) {
	var stats types.ShadowStats
	matches := 0
	errs := 0
	err := jsonl.Lines(t.resultsPath, func(line []byte) error {
		var r types.ShadowResult
		if err := json.Unmarshal(line, &r); err != nil {
			return nil
		}
		if r.Tool != name {
			return nil
		}
		stats.SampleCount++
		if r.Match {
			matches++
		}
		if r.Error != "" {
			errs++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	if stats.SampleCount > 0 {
		stats.MatchRate = float64(matches) / float64(stats.SampleCount)
		stats.ErrorRate = float64(errs) / float64(stats.SampleCount)
	}
	return stats, nil
}

// CompareVersionMetrics computes the percentage improvement of the shadow
// version over the baseline version for p95 latency and error rate (spec
// §4.3, compare_version_metrics). Positive values mean the shadow version
// is better.
func CompareVersionMetrics(baseline, shadowVersion types.SkillMetrics) types.VersionMetricsComparison {
	baselineP95 := percentile(baseline.Latencies, 0.95)
	shadowP95 := percentile(shadowVersion.Latencies, 0.95)
	var latencyImprovement float64
	if baselineP95 > 0 {
		latencyImprovement = (baselineP95 - shadowP95) / baselineP95 * 100
	}
	var errorImprovement float64
	baselineErr := baseline.ErrorRate()
	if baselineErr > 0 {
		errorImprovement = (baselineErr - shadowVersion.ErrorRate()) / baselineErr * 100
	}
	return types.VersionMetricsComparison{
		P95LatencyImprovementPct: latencyImprovement,
		ErrorRateImprovementPct:  errorImprovement,
	}
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
