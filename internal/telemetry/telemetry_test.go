package telemetry

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := New(t.TempDir() + "/skill_metrics.jsonl")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRecordAccumulatesCallsAndErrors(t *testing.T) {
	c := newTestCollector(t)
	c.Record("calc", "1.0.0", 10, false, 5, 7, 0.001, "gpt-x")
	c.Record("calc", "1.0.0", 20, true, 3, 4, 0.002, "gpt-x")

	m, ok := c.Snapshot("calc", "1.0.0")
	if !ok {
		t.Fatal("expected a snapshot after recording")
	}
	if m.Calls != 2 || m.Errors != 1 {
		t.Fatalf("expected 2 calls 1 error, got %+v", m)
	}
	if m.ErrorRate() != 0.5 {
		t.Fatalf("expected error rate 0.5, got %v", m.ErrorRate())
	}
	if m.ModelUsage["gpt-x"] != 2 {
		t.Fatalf("expected model usage count 2, got %v", m.ModelUsage)
	}
}

func TestSnapshotMissingSeriesReturnsFalse(t *testing.T) {
	c := newTestCollector(t)
	if _, ok := c.Snapshot("nope", "1.0.0"); ok {
		t.Fatal("expected no snapshot for an untracked series")
	}
}

func TestLatencyRingBufferStaysBounded(t *testing.T) {
	c := newTestCollector(t)
	for i := 0; i < MaxLatencySamples+50; i++ {
		c.Record("calc", "1.0.0", float64(i), false, 0, 0, 0, "")
	}
	m, _ := c.Snapshot("calc", "1.0.0")
	if len(m.Latencies) != MaxLatencySamples {
		t.Fatalf("expected latency buffer capped at %d, got %d", MaxLatencySamples, len(m.Latencies))
	}
	if m.Calls != int64(MaxLatencySamples+50) {
		t.Fatalf("expected call count to keep growing past the ring buffer cap, got %d", m.Calls)
	}
}

func TestPercentileOnSortedSamples(t *testing.T) {
	samples := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if p := Percentile(samples, 0.5); p != 50 {
		t.Fatalf("expected p50 50, got %v", p)
	}
	if p := Percentile(nil, 0.95); p != 0 {
		t.Fatalf("expected 0 for empty samples, got %v", p)
	}
}

func TestFlushWritesOneSamplePerSeries(t *testing.T) {
	c := newTestCollector(t)
	c.Record("calc", "1.0.0", 10, false, 0, 0, 0.5, "gpt-x")
	c.Record("sort", "2.0.0", 5, false, 0, 0, 0.1, "gpt-x")

	n, err := c.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 samples flushed, got %d", n)
	}
}

func TestRecordUpdatesPrometheusCounters(t *testing.T) {
	c := newTestCollector(t)
	c.Record("calc", "1.0.0", 15, true, 0, 0, 0, "")

	metric := &dto.Metric{}
	if err := c.calls.WithLabelValues("calc", "1.0.0").Write(metric); err != nil {
		t.Fatalf("write calls metric: %v", err)
	}
	if metric.GetCounter().GetValue() != 1 {
		t.Fatalf("expected calls_total=1, got %v", metric.GetCounter().GetValue())
	}

	metric = &dto.Metric{}
	if err := c.errs.WithLabelValues("calc", "1.0.0").Write(metric); err != nil {
		t.Fatalf("write errors metric: %v", err)
	}
	if metric.GetCounter().GetValue() != 1 {
		t.Fatalf("expected errors_total=1, got %v", metric.GetCounter().GetValue())
	}
}

func TestRecordCallDerivesCostFromTokens(t *testing.T) {
	c := newTestCollector(t)
	c.RecordCall("calc", "1.0.0", 10, false, 1_000_000, 1_000_000, "gpt-4o")

	m, ok := c.Snapshot("calc", "1.0.0")
	if !ok {
		t.Fatal("expected a snapshot after RecordCall")
	}
	want := 5.00 + 15.00
	if m.CostUSD != want {
		t.Fatalf("expected derived cost %v, got %v", want, m.CostUSD)
	}
}

func TestRecordCallSkipsCostForNonLLMActions(t *testing.T) {
	c := newTestCollector(t)
	c.RecordCall("calc", "1.0.0", 10, false, 0, 0, "")

	m, _ := c.Snapshot("calc", "1.0.0")
	if m.CostUSD != 0 {
		t.Fatalf("expected zero cost for a non-LLM action, got %v", m.CostUSD)
	}
}

func TestCalculateCostMatchesLongestModelKey(t *testing.T) {
	// "gpt-4o-mini" must win over the shorter "gpt-4o" and "gpt-4" keys.
	got := CalculateCost(1_000_000, 1_000_000, "gpt-4o-mini")
	want := 0.15 + 0.60
	if got != want {
		t.Fatalf("expected gpt-4o-mini pricing %v, got %v", want, got)
	}
}

func TestCalculateCostFallsBackToDefaultForUnknownModel(t *testing.T) {
	got := CalculateCost(1_000_000, 1_000_000, "some-unreleased-model")
	want := 1.00 + 2.00
	if got != want {
		t.Fatalf("expected default pricing %v, got %v", want, got)
	}
}

func TestCalculateCostLocalModelsAreFree(t *testing.T) {
	if got := CalculateCost(1_000_000, 1_000_000, "ollama/llama3"); got != 0 {
		t.Fatalf("expected local model inference to be free, got %v", got)
	}
}

func TestLookupAdaptsToSLOLookupSignature(t *testing.T) {
	c := newTestCollector(t)
	c.Record("calc", "1.0.0", 10, false, 0, 0, 0, "")
	m, ok := c.Lookup("calc", "1.0.0")
	if !ok || m.Calls != 1 {
		t.Fatalf("expected Lookup to mirror Snapshot, got %+v ok=%v", m, ok)
	}
}
