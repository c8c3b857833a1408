package bus

import (
	"fmt"

	"github.com/kloros-ai/aic/internal/types"
)

// ParamPolicy bounds one action's parameters (spec §4.1 "Parameter
// policies"). Check returns a denial reason, or "" if the params pass.
type ParamPolicy func(params map[string]any) string

// Guardrails decides, for a matched playbook step, whether the executor may
// proceed: mode, rate limit, and per-action parameter bounds.
type Guardrails struct {
	Mode        types.Mode
	Limiter     *RateLimiter
	ParamPolicies map[types.ActionName]ParamPolicy
}

// NewGuardrails wires the default parameter policies from spec §4.1 plus
// the action whitelist check.
func NewGuardrails(mode types.Mode, limiter *RateLimiter) *Guardrails {
	return &Guardrails{
		Mode:          mode,
		Limiter:       limiter,
		ParamPolicies: DefaultParamPolicies(),
	}
}

// Check returns "" if the step may execute, or a denial reason otherwise.
// DRY-RUN never executes; SAFE and AUTO both execute if the remaining
// checks pass (SAFE additionally logs prominently, which the executor does
// at the call site, not here).
func (g *Guardrails) Check(source string, action types.ActionName, params map[string]any) string {
	if !types.Whitelist[action] {
		return fmt.Sprintf("action %q not in whitelist", action)
	}
	if g.Mode == types.ModeDryRun {
		return "dry-run mode: execution suppressed"
	}
	if g.Limiter != nil && !g.Limiter.Allow(source) {
		return fmt.Sprintf("rate limit exceeded for source %q", source)
	}
	if policy, ok := g.ParamPolicies[action]; ok {
		if reason := policy(params); reason != "" {
			return reason
		}
	}
	return ""
}

// DefaultParamPolicies encodes the per-action bounds spec §4.1 names as
// examples: set_timeout.new_timeout_s <= 300, restart_service.service in an
// allow-list, kill_stuck_processes.pattern required.
func DefaultParamPolicies() map[types.ActionName]ParamPolicy {
	restartAllowList := map[string]bool{
		"rag": true, "stt": true, "tts": true, "voice": true, "memory": true,
	}
	return map[types.ActionName]ParamPolicy{
		types.ActionSetTimeout: func(params map[string]any) string {
			v, ok := asFloat(params["new_timeout_s"])
			if !ok {
				return "set_timeout requires numeric new_timeout_s"
			}
			if v > 300 {
				return "set_timeout.new_timeout_s exceeds bound of 300"
			}
			return ""
		},
		types.ActionRestartService: func(params map[string]any) string {
			svc, _ := params["service"].(string)
			if svc == "" {
				return "restart_service requires service"
			}
			if !restartAllowList[svc] {
				return fmt.Sprintf("restart_service.service %q not in allow-list", svc)
			}
			return ""
		},
		types.ActionKillStuckProcesses: func(params map[string]any) string {
			pattern, _ := params["pattern"].(string)
			if pattern == "" {
				return "kill_stuck_processes requires pattern"
			}
			return ""
		},
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
