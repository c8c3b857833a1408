// Package actions implements the spec §6 action whitelist as explicit
// tagged variants — one Handler implementation per action name — rather
// than the decorator-registry/reflection dispatch spec §9 calls out for
// replacement. internal/bus looks handlers up by types.ActionName through a
// plain map; there is no string-to-callable reflection at runtime outside
// playbook YAML loading.
package actions

import (
	"context"

	"github.com/kloros-ai/aic/internal/types"
)

// Handler is the capability trait every whitelisted action implements.
// Apply must be best-effort idempotent: succeed and return rollback data,
// fail cleanly with no observable side effect, or fail partially with a
// precise error (spec §3, HealAction contract). Rollback restores the
// pre-apply state; repeated Rollback is a no-op.
type Handler interface {
	Apply(ctx context.Context, params map[string]any) (types.Applied, error)
	Rollback(ctx context.Context, applied types.Applied) error
}

// Registry resolves an action name to its Handler. Unknown names are
// denied before reaching here (internal/bus/guardrails.go checks the
// whitelist first), so Lookup's "not found" branch is a defense in depth
// rather than the primary gate.
type Registry struct {
	handlers map[types.ActionName]Handler
}

// NewRegistry wires every whitelisted action to its handler.
func NewRegistry(envFilePath string) *Registry {
	return &Registry{handlers: map[types.ActionName]Handler{
		types.ActionSetFlag:               &SetFlag{EnvFilePath: envFilePath},
		types.ActionSetTimeout:            &SetTimeout{EnvFilePath: envFilePath},
		types.ActionLowerThreshold:        &LowerThreshold{EnvFilePath: envFilePath},
		types.ActionEnforceMuteWrapper:    &EnforceMuteWrapper{EnvFilePath: envFilePath},
		types.ActionEnableAck:             &EnableAck{EnvFilePath: envFilePath},
		types.ActionClearSwap:             &ClearSwap{},
		types.ActionKillDuplicateProcess:  &KillDuplicateProcess{},
		types.ActionKillStuckProcesses:    &KillStuckProcesses{},
		types.ActionRestartService:        &RestartService{},
		types.ActionAddMissingCall:        &AddMissingCall{},
		types.ActionAddNullCheck:          &AddNullCheck{},
		types.ActionConsolidateDuplicates: &ConsolidateDuplicates{},
	}}
}

// Lookup returns the handler for name, or false if none is registered.
func (r *Registry) Lookup(name types.ActionName) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
