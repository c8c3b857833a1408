package bus

import (
	"testing"

	"github.com/kloros-ai/aic/internal/types"
)

func TestGuardrailsDenyUnwhitelistedAction(t *testing.T) {
	g := NewGuardrails(types.ModeAuto, NewRateLimiter(100))
	reason := g.Check("src", types.ActionName("delete_everything"), nil)
	if reason == "" {
		t.Fatal("expected non-whitelisted action to be denied")
	}
}

func TestGuardrailsDryRunDeniesEverythingInWhitelist(t *testing.T) {
	g := NewGuardrails(types.ModeDryRun, NewRateLimiter(100))
	reason := g.Check("src", types.ActionEnableAck, map[string]any{"topic": "rag"})
	if reason == "" {
		t.Fatal("expected DRY-RUN mode to deny even a whitelisted, well-formed action")
	}
}

func TestGuardrailsSetTimeoutBound(t *testing.T) {
	g := NewGuardrails(types.ModeAuto, NewRateLimiter(100))
	if reason := g.Check("src", types.ActionSetTimeout, map[string]any{"new_timeout_s": 301.0}); reason == "" {
		t.Fatal("expected set_timeout above 300s to be denied")
	}
	if reason := g.Check("src", types.ActionSetTimeout, map[string]any{"new_timeout_s": 299.0}); reason != "" {
		t.Fatalf("expected set_timeout at 299s to be allowed, got %q", reason)
	}
}

func TestGuardrailsRestartServiceAllowList(t *testing.T) {
	g := NewGuardrails(types.ModeAuto, NewRateLimiter(100))
	if reason := g.Check("src", types.ActionRestartService, map[string]any{"service": "not-a-real-service"}); reason == "" {
		t.Fatal("expected restart_service to reject a service outside the allow-list")
	}
	if reason := g.Check("src", types.ActionRestartService, map[string]any{"service": "rag"}); reason != "" {
		t.Fatalf("expected restart_service to allow rag, got %q", reason)
	}
}

func TestGuardrailsRateLimitDeniesAfterBurst(t *testing.T) {
	g := NewGuardrails(types.ModeAuto, NewRateLimiter(1))
	if reason := g.Check("src", types.ActionEnableAck, map[string]any{"topic": "rag"}); reason != "" {
		t.Fatalf("expected first call to be allowed, got %q", reason)
	}
	if reason := g.Check("src", types.ActionEnableAck, map[string]any{"topic": "rag"}); reason == "" {
		t.Fatal("expected second call within the same window to be rate limited")
	}
}
