package alerts

import (
	"errors"
	"testing"

	"github.com/kloros-ai/aic/internal/types"
)

func lowRiskImprovement() types.Improvement {
	return types.Improvement{
		TaskID: "t1", Component: "latency_tuner", RiskLevel: types.RiskLow, Confidence: 0.85,
		ParameterRecommendations: &types.ParameterRecommendations{
			ApplyMap: types.ApplyMap{"k": "KLR_K"},
			Params:   map[string]any{"k": 200},
		},
	}
}

func TestSubmitRejectsMissingImplementationData(t *testing.T) {
	q, err := New(t.TempDir()+"/approval_queue.json", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = q.Submit(types.Improvement{TaskID: "t1", Component: "x"})
	if !errors.Is(err, types.ErrIngestionRejected) {
		t.Fatalf("expected ErrIngestionRejected, got %v", err)
	}
}

func TestSubmitAutoApprovesLowRiskHighConfidence(t *testing.T) {
	q, err := New(t.TempDir()+"/approval_queue.json", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	decision, err := q.Submit(lowRiskImprovement())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !decision.AutoApproved {
		t.Fatalf("expected auto-approval, denial reason: %q", decision.DenialReason)
	}
	if decision.Alert.Status != "approved" {
		t.Fatalf("expected alert status approved, got %q", decision.Alert.Status)
	}
}

func TestSubmitDeniesCriticalComponent(t *testing.T) {
	q, err := New(t.TempDir()+"/approval_queue.json", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	improvement := lowRiskImprovement()
	improvement.Component = "authentication"
	decision, err := q.Submit(improvement)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if decision.AutoApproved {
		t.Fatalf("expected denial for critical component")
	}
	if decision.Alert.Status != "pending" {
		t.Fatalf("expected alert status pending, got %q", decision.Alert.Status)
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0].RequestID != decision.Alert.RequestID {
		t.Fatalf("expected the denied alert to remain pending: %+v", pending)
	}
}

func TestSubmitDeniesLowConfidence(t *testing.T) {
	q, err := New(t.TempDir()+"/approval_queue.json", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	improvement := lowRiskImprovement()
	improvement.Confidence = 0.3
	decision, err := q.Submit(improvement)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if decision.AutoApproved {
		t.Fatalf("expected denial for low confidence")
	}
}

func TestDebateVerdictOverridesHeuristic(t *testing.T) {
	denyDebate := func(types.Improvement) (bool, bool) { return true, false }
	q, err := New(t.TempDir()+"/approval_queue.json", denyDebate)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	decision, err := q.Submit(lowRiskImprovement())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if decision.AutoApproved {
		t.Fatalf("expected the configured debate's rejection to override the heuristic")
	}
}

func TestApprovePersists(t *testing.T) {
	path := t.TempDir() + "/approval_queue.json"
	q, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	improvement := lowRiskImprovement()
	improvement.Component = "authentication" // forced to pending
	decision, err := q.Submit(improvement)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Approve(decision.Alert.RequestID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	reopened, err := New(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for _, a := range reopened.All() {
		if a.RequestID == decision.Alert.RequestID && a.Status != "approved" {
			t.Fatalf("expected persisted status approved, got %q", a.Status)
		}
	}
}

func TestDenyUnknownRequestIDErrors(t *testing.T) {
	q, err := New(t.TempDir()+"/approval_queue.json", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := q.Deny("does-not-exist"); err == nil {
		t.Fatalf("expected error denying an unknown request id")
	}
}
