package bus

import (
	"testing"

	"github.com/kloros-ai/aic/internal/types"
)

func TestSelectPlaybookPrefersHighestRank(t *testing.T) {
	event := types.NewHealEvent("e", 1, "rag", "latency_spike", types.SeverityWarn, nil)
	playbooks := []types.Playbook{
		{Name: "general", Rank: 1, Match: types.Match{Kind: "latency_spike"}},
		{Name: "rag-specific", Rank: 10, Match: types.Match{Source: "rag", Kind: "latency_spike"}},
	}
	pb, ok := SelectPlaybook(playbooks, event)
	if !ok || pb.Name != "rag-specific" {
		t.Fatalf("expected rag-specific to win by rank, got %+v (ok=%v)", pb, ok)
	}
}

func TestSelectPlaybookNoMatch(t *testing.T) {
	event := types.NewHealEvent("e", 1, "rag", "unrelated", types.SeverityWarn, nil)
	playbooks := []types.Playbook{
		{Name: "p1", Rank: 1, Match: types.Match{Kind: "latency_spike"}},
	}
	_, ok := SelectPlaybook(playbooks, event)
	if ok {
		t.Fatal("expected no match")
	}
}

func TestSelectPlaybookContextSubsetMatch(t *testing.T) {
	event := types.NewHealEvent("e", 1, "tts", "error_rate", types.SeverityError,
		map[string]any{"component": "voice", "extra": "ignored"})
	playbooks := []types.Playbook{
		{Name: "voice-errors", Rank: 5, Match: types.Match{
			Kind: "error_rate", Context: map[string]string{"component": "voice"},
		}},
	}
	pb, ok := SelectPlaybook(playbooks, event)
	if !ok || pb.Name != "voice-errors" {
		t.Fatalf("expected context subset to match, got %+v (ok=%v)", pb, ok)
	}
}

func TestSelectPlaybookContextMismatchExcludes(t *testing.T) {
	event := types.NewHealEvent("e", 1, "tts", "error_rate", types.SeverityError,
		map[string]any{"component": "stt"})
	playbooks := []types.Playbook{
		{Name: "voice-errors", Rank: 5, Match: types.Match{
			Kind: "error_rate", Context: map[string]string{"component": "voice"},
		}},
	}
	_, ok := SelectPlaybook(playbooks, event)
	if ok {
		t.Fatal("expected context mismatch to exclude the playbook")
	}
}

func TestSelectPlaybookIsStableOnEqualRank(t *testing.T) {
	event := types.NewHealEvent("e", 1, "src", "kind", types.SeverityWarn, nil)
	playbooks := []types.Playbook{
		{Name: "first", Rank: 5, Match: types.Match{Kind: "kind"}},
		{Name: "second", Rank: 5, Match: types.Match{Kind: "kind"}},
	}
	pb, ok := SelectPlaybook(playbooks, event)
	if !ok || pb.Name != "first" {
		t.Fatalf("expected stable order to prefer the earlier entry on ties, got %+v", pb)
	}
}
