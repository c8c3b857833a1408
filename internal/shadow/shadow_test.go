package shadow

import (
	"context"
	"errors"
	"testing"

	"github.com/kloros-ai/aic/internal/types"
)

type fakeRunner struct {
	output string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, source, input string) (string, error) {
	return f.output, f.err
}

func quarantinedSource(name, version string) (string, types.Status, error) {
	return "package main\nfunc main() {}", types.StatusQuarantine, nil
}

func TestMatchesRejectsNewErrorNotInBaseline(t *testing.T) {
	if Matches("ok result", "an error occurred", nil) {
		t.Fatal("expected a new error string in shadow output to reject the match")
	}
}

func TestMatchesAllowsErrorPresentInBothSides(t *testing.T) {
	if !Matches("error: timeout", "error: timeout retried", nil) {
		t.Fatal("expected matching error presence on both sides to pass")
	}
}

func TestMatchesRejectsLengthDivergence(t *testing.T) {
	if Matches("short", "a much much much much longer response than the baseline by far", nil) {
		t.Fatal("expected large length divergence to reject the match")
	}
}

func TestMatchesRejectsOnRunError(t *testing.T) {
	if Matches("same", "same", errors.New("boom")) {
		t.Fatal("expected a run error to always reject the match")
	}
}

func TestShouldShadowRespectsConfiguredPercent(t *testing.T) {
	tester, err := New(&fakeRunner{}, quarantinedSource, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tester.ShouldShadow("unconfigured") {
		t.Fatal("expected an unconfigured tool to never shadow")
	}
	tester.EnableShadow("t", 1.0)
	for i := 0; i < 50; i++ {
		if !tester.ShouldShadow("t") {
			t.Fatal("expected percent=1.0 to always shadow")
		}
	}
	tester.EnableShadow("t", 0.0)
	for i := 0; i < 50; i++ {
		if tester.ShouldShadow("t") {
			t.Fatal("expected percent=0.0 to never shadow")
		}
	}
}

func TestRunShadowRefusesNonQuarantineStatus(t *testing.T) {
	promoted := func(name, version string) (string, types.Status, error) {
		return "code", types.StatusPromoted, nil
	}
	tester, err := New(&fakeRunner{output: "ok"}, promoted, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tester.EnableShadow("t", 1.0)
	_, err = tester.RunShadow(context.Background(), "t", "input", "baseline")
	if err == nil {
		t.Fatal("expected RunShadow to refuse a non-quarantine artifact")
	}
}

func TestRunShadowReturnsNilWithoutRoute(t *testing.T) {
	tester, err := New(&fakeRunner{}, quarantinedSource, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := tester.RunShadow(context.Background(), "unrouted", "in", "baseline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result when no route is configured")
	}
}

func TestRunShadowRecordsMatchAndAppendsResult(t *testing.T) {
	tester, err := New(&fakeRunner{output: "ok result"}, quarantinedSource, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tester.EnableShadow("t", 1.0)
	result, err := tester.RunShadow(context.Background(), "t", "in", "ok result")
	if err != nil {
		t.Fatalf("RunShadow: %v", err)
	}
	if !result.Match {
		t.Fatal("expected identical baseline/shadow text to match")
	}
	stats, err := tester.Stats("t")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SampleCount != 1 || stats.MatchRate != 1 {
		t.Fatalf("expected one matching sample, got %+v", stats)
	}
}

func TestStatsAggregatesAcrossSamples(t *testing.T) {
	tester, err := New(&fakeRunner{output: "ok"}, quarantinedSource, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tester.EnableShadow("t", 1.0)
	tester.RunShadow(context.Background(), "t", "in", "ok")
	tester.runner = &fakeRunner{output: "a totally different and much longer response entirely"}
	tester.RunShadow(context.Background(), "t", "in", "ok")

	stats, err := tester.Stats("t")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SampleCount != 2 {
		t.Fatalf("expected 2 samples, got %d", stats.SampleCount)
	}
	if stats.MatchRate != 0.5 {
		t.Fatalf("expected match rate 0.5, got %v", stats.MatchRate)
	}
}

func TestFlipTrafficAdjustsPercentWithoutDisturbingVersions(t *testing.T) {
	tester, err := New(&fakeRunner{}, quarantinedSource, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tester.EnableVersionedShadow("t", "v1", "v2", 0.1); err != nil {
		t.Fatalf("EnableVersionedShadow: %v", err)
	}
	if err := tester.FlipTraffic("t", 0.5); err != nil {
		t.Fatalf("FlipTraffic: %v", err)
	}
	tester.mu.Lock()
	r := tester.routes["t"]
	tester.mu.Unlock()
	if r.percent != 0.5 || r.baselineVersion != "v1" || r.shadowVersion != "v2" {
		t.Fatalf("expected percent updated with versions preserved, got %+v", r)
	}
}

func TestFlipTrafficRejectsUnroutedTool(t *testing.T) {
	tester, err := New(&fakeRunner{}, quarantinedSource, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tester.FlipTraffic("unrouted", 0.5); err == nil {
		t.Fatal("expected an error for a tool with no active route")
	}
}

func TestPromoteShadowToProductionRoutesFullyToShadowVersion(t *testing.T) {
	tester, err := New(&fakeRunner{}, quarantinedSource, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tester.EnableVersionedShadow("t", "v1", "v2", 0.25); err != nil {
		t.Fatalf("EnableVersionedShadow: %v", err)
	}
	if err := tester.PromoteShadowToProduction("t", "v2"); err != nil {
		t.Fatalf("PromoteShadowToProduction: %v", err)
	}
	tester.mu.Lock()
	r := tester.routes["t"]
	tester.mu.Unlock()
	if r.percent != 1 || r.baselineVersion != "" || r.shadowVersion != "v2" {
		t.Fatalf("expected full traffic routed to v2 with baseline cleared, got %+v", r)
	}
}

func TestPromoteShadowToProductionRejectsWrongVersion(t *testing.T) {
	tester, err := New(&fakeRunner{}, quarantinedSource, t.TempDir()+"/shadow_results.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tester.EnableVersionedShadow("t", "v1", "v2", 0.25)
	if err := tester.PromoteShadowToProduction("t", "v3"); err == nil {
		t.Fatal("expected an error when shadowVersion doesn't match the active route")
	}
}

func TestCompareVersionMetricsPositiveOnImprovement(t *testing.T) {
	baseline := types.SkillMetrics{Calls: 10, Errors: 2, Latencies: []float64{100, 200, 300}}
	shadow := types.SkillMetrics{Calls: 10, Errors: 0, Latencies: []float64{50, 60, 70}}
	cmp := CompareVersionMetrics(baseline, shadow)
	if cmp.P95LatencyImprovementPct <= 0 {
		t.Fatalf("expected positive latency improvement, got %v", cmp.P95LatencyImprovementPct)
	}
	if cmp.ErrorRateImprovementPct <= 0 {
		t.Fatalf("expected positive error rate improvement, got %v", cmp.ErrorRateImprovementPct)
	}
}
