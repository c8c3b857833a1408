package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kloros-ai/aic/internal/types"
)

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	p := New(root, filepath.Join(root, "backups"), filepath.Join(root, "deployment_history.json"))
	return p, root
}

func improvementWith(apply types.ApplyMap, params map[string]any) types.Improvement {
	return types.Improvement{
		TaskID: "t1", Component: "latency_tuner", RiskLevel: types.RiskLow, Confidence: 0.85,
		ParameterRecommendations: &types.ParameterRecommendations{ApplyMap: apply, Params: params},
	}
}

func TestClassifyMapsKeywordsToClasses(t *testing.T) {
	cases := map[string]string{
		"evolutionary_driver": "evolutionary",
		"memory_store":        "memory",
		"speech_backend":      "speech",
		"reasoning_core":      "reasoning",
		"config_loader":       "configuration",
		"something_else":      "general",
	}
	for component, want := range cases {
		if got := Classify(component); got != want {
			t.Fatalf("Classify(%q) = %q, want %q", component, got, want)
		}
	}
}

func TestDeploySucceedsAndUpdatesExistingVar(t *testing.T) {
	p, root := newTestPipeline(t)
	envPath := "config.env"
	if err := os.WriteFile(filepath.Join(root, envPath), []byte("KLR_K=7\n"), 0o644); err != nil {
		t.Fatalf("seed env file: %v", err)
	}
	imp := improvementWith(types.ApplyMap{"k": "KLR_K"}, map[string]any{"k": 42})
	plan := p.Plan(imp, envPath, nil)

	result, err := p.Deploy(context.Background(), plan, imp)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.ChangesApplied) != 1 || result.ChangesApplied[0] != "UPDATED KLR_K: 7 -> 42" {
		t.Fatalf("expected UPDATED KLR_K: 7 -> 42, got %v", result.ChangesApplied)
	}
	data, err := os.ReadFile(filepath.Join(root, envPath))
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if string(data) != "KLR_K=42\n" {
		t.Fatalf("expected KLR_K=42\\n, got %q", string(data))
	}
}

func TestDeployAppendsMissingVar(t *testing.T) {
	p, root := newTestPipeline(t)
	envPath := "config.env"
	imp := improvementWith(types.ApplyMap{"k": "KLR_K"}, map[string]any{"k": 200})
	plan := p.Plan(imp, envPath, nil)

	result, err := p.Deploy(context.Background(), plan, imp)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if len(result.ChangesApplied) != 1 || result.ChangesApplied[0] != "ADDED KLR_K=200" {
		t.Fatalf("expected ADDED KLR_K=200, got %v", result.ChangesApplied)
	}
	_ = root
}

func TestDeployRejectsImprovementMissingImplementationData(t *testing.T) {
	p, _ := newTestPipeline(t)
	imp := types.Improvement{TaskID: "t2", Component: "general"}
	plan := p.Plan(imp, "config.env", nil)
	result, err := p.Deploy(context.Background(), plan, imp)
	if err == nil {
		t.Fatal("expected an error for an improvement with no implementation data")
	}
	if result.ErrorMessage != "Improvement missing implementation data" {
		t.Fatalf("unexpected error message: %q", result.ErrorMessage)
	}
}

func TestDeployRollsBackOnValidationFailure(t *testing.T) {
	p, root := newTestPipeline(t)
	envPath := "config.env"
	if err := os.WriteFile(filepath.Join(root, envPath), []byte("KLR_K=7\n"), 0o644); err != nil {
		t.Fatalf("seed env file: %v", err)
	}
	imp := improvementWith(types.ApplyMap{"k": "KLR_K"}, map[string]any{"k": 42})
	plan := p.Plan(imp, envPath, []string{"exit 1"})

	result, err := p.Deploy(context.Background(), plan, imp)
	if err == nil {
		t.Fatal("expected validation failure to produce an error")
	}
	if result.Success {
		t.Fatal("expected success=false on validation failure")
	}
	if !result.RollbackPerformed {
		t.Fatal("expected rollback to have run")
	}
	data, err := os.ReadFile(filepath.Join(root, envPath))
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	if string(data) != "KLR_K=7\n" {
		t.Fatalf("expected on-disk state restored to pre-deploy snapshot, got %q", string(data))
	}
}

func TestDeployRejectsEmptyChanges(t *testing.T) {
	p, root := newTestPipeline(t)
	envPath := "config.env"
	if err := os.WriteFile(filepath.Join(root, envPath), []byte("KLR_K=7\n"), 0o644); err != nil {
		t.Fatalf("seed env file: %v", err)
	}
	// An apply_map referencing a param that isn't in Params produces zero
	// changes, which the anti-fabrication guard must also reject.
	imp := improvementWith(types.ApplyMap{"k": "KLR_K"}, map[string]any{})
	plan := p.Plan(imp, envPath, nil)

	result, err := p.Deploy(context.Background(), plan, imp)
	if err == nil {
		t.Fatal("expected an error for an empty changes_applied list")
	}
	if result.ErrorMessage != "Deployment returned descriptions instead of file modifications" {
		t.Fatalf("unexpected error message: %q", result.ErrorMessage)
	}
}

func TestDeployRecordsBoundedHistory(t *testing.T) {
	p, root := newTestPipeline(t)
	envPath := "config.env"
	if err := os.WriteFile(filepath.Join(root, envPath), []byte("KLR_K=0\n"), 0o644); err != nil {
		t.Fatalf("seed env file: %v", err)
	}
	for i := 0; i < 3; i++ {
		imp := improvementWith(types.ApplyMap{"k": "KLR_K"}, map[string]any{"k": i})
		plan := p.Plan(imp, envPath, nil)
		if _, err := p.Deploy(context.Background(), plan, imp); err != nil {
			t.Fatalf("Deploy %d: %v", i, err)
		}
	}
	history, err := p.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}
}
