package governance

import (
	"strings"
	"testing"

	"github.com/kloros-ai/aic/internal/config"
	"github.com/kloros-ai/aic/internal/jsonl"
	"github.com/kloros-ai/aic/internal/types"
)

func testPaths(t *testing.T) config.Paths {
	t.Helper()
	root := t.TempDir()
	return config.Paths{
		QuarantineDir:     root + "/quarantine",
		PromotedDir:       root + "/promoted",
		ProvenanceLog:     root + "/tool_provenance.jsonl",
		CapabilitiesYAML:  root + "/capabilities.yaml",
	}
}

func passingSLO(string, string) (types.SkillMetrics, bool) {
	return types.SkillMetrics{Calls: 20, Errors: 0, Latencies: []float64{10, 20, 30}}, true
}

func approvedDebate(string) (bool, bool) { return true, true }

func TestClassifyRiskHighOnExecCommand(t *testing.T) {
	if got := ClassifyRisk("x", `out, _ := exec.Command("ls").Output()`); got != types.RiskHigh {
		t.Fatalf("expected high risk, got %q", got)
	}
}

func TestClassifyRiskMediumOnFileWrite(t *testing.T) {
	if got := ClassifyRisk("x", `os.WriteFile(path, data, 0o644)`); got != types.RiskMedium {
		t.Fatalf("expected medium risk, got %q", got)
	}
}

func TestClassifyRiskLowByDefault(t *testing.T) {
	if got := ClassifyRisk("x", `return a + b`); got != types.RiskLow {
		t.Fatalf("expected low risk, got %q", got)
	}
}

func TestQuarantineWritesArtifactAndProvenance(t *testing.T) {
	paths := testPaths(t)
	g, err := New(paths, config.Quotas{DailySynthesisMax: 50, WeeklyPromotionMax: 200},
		config.RiskPolicyTable{}, config.ShadowDefaults{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	versioned, record, err := g.Quarantine("calc", "return a+b", "fills a gap", "gpt-x", "write a calculator")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if versioned != "calc@0.1.0" {
		t.Fatalf("expected calc@0.1.0, got %q", versioned)
	}
	if record.Origin != types.OriginSynthesis {
		t.Fatalf("expected synthesis origin, got %q", record.Origin)
	}
	meta, err := g.GetStatus("calc", "0.1.0")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if meta.Status != types.StatusQuarantine {
		t.Fatalf("expected quarantine status, got %q", meta.Status)
	}
}

func TestCheckPromotionGatesFailsWithoutMetadata(t *testing.T) {
	paths := testPaths(t)
	g, _ := New(paths, config.Quotas{DailySynthesisMax: 50, WeeklyPromotionMax: 200},
		config.RiskPolicyTable{}, config.ShadowDefaults{}, nil, nil, nil)
	ok, reasons := g.CheckPromotionGates("nonexistent", "0.1.0")
	if ok {
		t.Fatal("expected gate failure for missing artifact")
	}
	if len(reasons) != 1 || reasons[0] != "Missing metadata" {
		t.Fatalf("expected single 'Missing metadata' reason, got %v", reasons)
	}
}

func markTestsPassing(t *testing.T, g *Governance, name, version string) {
	t.Helper()
	dir := g.quarantineArtifactDir(name, version)
	meta, err := g.readMetadata(dir)
	if err != nil {
		t.Fatalf("readMetadata: %v", err)
	}
	meta.Tests = types.TestResults{Unit: types.TestPass, E2E: types.TestPass}
	if err := jsonl.WriteDocumentJSON(g.metadataPath(dir), meta); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
}

func TestCheckPromotionGatesRequiresHighRiskPolicyEntry(t *testing.T) {
	paths := testPaths(t)
	g, _ := New(paths, config.Quotas{DailySynthesisMax: 50, WeeklyPromotionMax: 200},
		config.RiskPolicyTable{}, config.ShadowDefaults{}, passingSLO, nil, nil)
	_, _, err := g.Quarantine("risky", `exec.Command("rm", "-rf", dir)`, "cleanup helper", "gpt-x", "write a cleanup tool")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	markTestsPassing(t, g, "risky", "0.1.0")

	ok, reasons := g.CheckPromotionGates("risky", "0.1.0")
	if ok {
		t.Fatal("expected high-risk tool without a policy entry to fail the gate")
	}
	found := false
	for _, r := range reasons {
		if strings.Contains(r, "risk policy entry") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a risk policy reason, got %v", reasons)
	}
}

func TestPromoteSucceedsAndIsIdempotent(t *testing.T) {
	paths := testPaths(t)
	g, _ := New(paths, config.Quotas{DailySynthesisMax: 50, WeeklyPromotionMax: 200},
		config.RiskPolicyTable{}, config.ShadowDefaults{}, passingSLO, nil, approvedDebate)
	_, _, err := g.Quarantine("calc", "return a+b", "fills a gap", "gpt-x", "write a calculator")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	markTestsPassing(t, g, "calc", "0.1.0")

	version, err := g.Promote("calc", "0.1.0")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if version != "1.0.0" {
		t.Fatalf("expected 1.0.0, got %q", version)
	}

	// Re-promoting is idempotent: no error, no duplicated files.
	version2, err := g.Promote("calc", "0.1.0")
	if err != nil {
		t.Fatalf("second Promote: %v", err)
	}
	if version2 != version {
		t.Fatalf("expected stable promoted version, got %q then %q", version, version2)
	}
	promoted, err := g.ListPromoted()
	if err != nil {
		t.Fatalf("ListPromoted: %v", err)
	}
	if len(promoted) != 1 {
		t.Fatalf("expected exactly one promoted artifact, got %v", promoted)
	}
}

func TestPromoteFailsWhenGatesFail(t *testing.T) {
	paths := testPaths(t)
	g, _ := New(paths, config.Quotas{DailySynthesisMax: 50, WeeklyPromotionMax: 200},
		config.RiskPolicyTable{}, config.ShadowDefaults{}, passingSLO, nil, nil)
	_, _, err := g.Quarantine("calc", "return a+b", "fills a gap", "gpt-x", "write a calculator")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	// Tests never marked passing: gate 1 fails.
	if _, err := g.Promote("calc", "0.1.0"); err == nil {
		t.Fatal("expected promotion to fail without passing tests")
	}
}

func TestGetProvenanceReplaysAllEntriesForTool(t *testing.T) {
	paths := testPaths(t)
	g, _ := New(paths, config.Quotas{DailySynthesisMax: 50, WeeklyPromotionMax: 200},
		config.RiskPolicyTable{}, config.ShadowDefaults{}, passingSLO, nil, approvedDebate)
	g.Quarantine("calc", "return a+b", "fills a gap", "gpt-x", "write a calculator")
	markTestsPassing(t, g, "calc", "0.1.0")
	g.Promote("calc", "0.1.0")

	records, err := g.GetProvenance("calc")
	if err != nil {
		t.Fatalf("GetProvenance: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected synthesis + promotion entries, got %d", len(records))
	}
	if !records[1].IsPromotion() {
		t.Fatal("expected second entry to be a promotion record")
	}
}
