package actions

import (
	"context"
	"fmt"

	"github.com/kloros-ai/aic/internal/envfile"
	"github.com/kloros-ai/aic/internal/types"
)

// envSet is the shared apply/rollback shape for every action that mutates a
// single KLR_* variable in the env file: capture the old value (or its
// absence) as rollback data, write the new value, and on rollback either
// restore the old value or delete the line that was added.
func envSet(ctx context.Context, path, varName, newValue string) (types.Applied, error) {
	_ = ctx
	f, err := envfile.Parse(path)
	if err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	oldValue, existed := f.Get(varName)
	f.Set(varName, newValue)
	if err := f.WriteAtomic(path); err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	return types.Applied{RollbackData: map[string]any{
		"path": path, "var": varName, "old_value": oldValue, "existed": existed,
	}}, nil
}

func envRollback(ctx context.Context, applied types.Applied) error {
	_ = ctx
	path, _ := applied.RollbackData["path"].(string)
	varName, _ := applied.RollbackData["var"].(string)
	existed, _ := applied.RollbackData["existed"].(bool)
	oldValue, _ := applied.RollbackData["old_value"].(string)
	if path == "" || varName == "" {
		return nil
	}
	f, err := envfile.Parse(path)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	if existed {
		f.Set(varName, oldValue)
	} else {
		// The action added this line; rolling back removes it rather than
		// leaving an empty assignment behind.
		kept := f.Lines[:0]
		for _, l := range f.Lines {
			if l.Var == varName {
				continue
			}
			kept = append(kept, l)
		}
		f.Lines = kept
	}
	return f.WriteAtomic(path)
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

// SetFlag sets a boolean-valued KLR_* flag (params: name, value).
type SetFlag struct{ EnvFilePath string }

func (a *SetFlag) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	name := stringParam(params, "name")
	if name == "" {
		return types.Applied{}, fmt.Errorf("%w: set_flag requires name", types.ErrActionFailed)
	}
	value := fmt.Sprintf("%v", params["value"])
	return envSet(ctx, a.EnvFilePath, name, value)
}
func (a *SetFlag) Rollback(ctx context.Context, applied types.Applied) error { return envRollback(ctx, applied) }

// SetTimeout sets KLR_*_TIMEOUT-style variables (params: name,
// new_timeout_s); the <=300s bound is enforced by Guardrails, not here.
type SetTimeout struct{ EnvFilePath string }

func (a *SetTimeout) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	name := stringParam(params, "name")
	if name == "" {
		return types.Applied{}, fmt.Errorf("%w: set_timeout requires name", types.ErrActionFailed)
	}
	value := fmt.Sprintf("%v", params["new_timeout_s"])
	return envSet(ctx, a.EnvFilePath, name, value)
}
func (a *SetTimeout) Rollback(ctx context.Context, applied types.Applied) error { return envRollback(ctx, applied) }

// LowerThreshold writes a numeric threshold variable (params: name,
// new_threshold).
type LowerThreshold struct{ EnvFilePath string }

func (a *LowerThreshold) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	name := stringParam(params, "name")
	if name == "" {
		return types.Applied{}, fmt.Errorf("%w: lower_threshold requires name", types.ErrActionFailed)
	}
	value := fmt.Sprintf("%v", params["new_threshold"])
	return envSet(ctx, a.EnvFilePath, name, value)
}
func (a *LowerThreshold) Rollback(ctx context.Context, applied types.Applied) error { return envRollback(ctx, applied) }

// EnforceMuteWrapper toggles KLR_MUTE_WRAPPER=1 (params: component).
type EnforceMuteWrapper struct{ EnvFilePath string }

func (a *EnforceMuteWrapper) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	component := stringParam(params, "component")
	varName := "KLR_MUTE_WRAPPER"
	if component != "" {
		varName = fmt.Sprintf("KLR_MUTE_WRAPPER_%s", component)
	}
	return envSet(ctx, a.EnvFilePath, varName, "1")
}
func (a *EnforceMuteWrapper) Rollback(ctx context.Context, applied types.Applied) error { return envRollback(ctx, applied) }

// EnableAck toggles a KLR_ACK_<topic> flag (params: topic).
type EnableAck struct{ EnvFilePath string }

func (a *EnableAck) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	topic := stringParam(params, "topic")
	if topic == "" {
		return types.Applied{}, fmt.Errorf("%w: enable_ack requires topic", types.ErrActionFailed)
	}
	return envSet(ctx, a.EnvFilePath, fmt.Sprintf("KLR_ACK_%s", topic), "1")
}
func (a *EnableAck) Rollback(ctx context.Context, applied types.Applied) error { return envRollback(ctx, applied) }
