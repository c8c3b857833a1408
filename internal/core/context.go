// Package core wires the AIC engines into one explicitly-constructed value
// (spec §9, "Singletons/module-level state... become explicit construction
// and injection"). Context owns the bus, governance, shadow tester,
// telemetry collector, deployment pipeline, reasoning coordinator, and
// alert queue for one process; components reach each other only through
// the capability objects Context hands them at construction time, never
// through package-level globals.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kloros-ai/aic/internal/actions"
	"github.com/kloros-ai/aic/internal/alerts"
	"github.com/kloros-ai/aic/internal/bus"
	"github.com/kloros-ai/aic/internal/config"
	"github.com/kloros-ai/aic/internal/deploy"
	"github.com/kloros-ai/aic/internal/governance"
	"github.com/kloros-ai/aic/internal/jsonl"
	"github.com/kloros-ai/aic/internal/reason"
	"github.com/kloros-ai/aic/internal/shadow"
	"github.com/kloros-ai/aic/internal/telemetry"
	"github.com/kloros-ai/aic/internal/types"
)

// Context is the single construction root for one AIC process. Every field
// is a capability object; nothing here is a package-level singleton.
type Context struct {
	Paths      config.Paths
	Policy     config.HealPolicy
	Quotas     config.Quotas
	ShadowCfg  config.ShadowDefaults
	RiskPolicy config.RiskPolicyTable

	Bus        *bus.Bus
	Guardrails *bus.Guardrails
	Actions    *actions.Registry
	Telemetry  *telemetry.Collector
	Shadow     *shadow.Tester
	Governance *governance.Governance
	Deploy     *deploy.Pipeline
	Reasoning  *reason.Coordinator
	Alerts     *alerts.Queue
}

// New wires a full Context from the process's environment-derived
// configuration (spec §6 env vars). envFilePath is the deployment target
// env file that both the Self-Heal Executor's env-mutating actions and the
// Deployment Pipeline write through; repoRoot is the root Deploy resolves
// target_files against. runner is the Shadow Tester's isolation backend
// (typically shadow.NewDockerSandbox); a nil runner disables shadow
// execution (RunShadow always errors) while every other engine still
// boots, since sandboxing requires a reachable Docker daemon that is not
// guaranteed to exist in every environment AIC runs in.
func New(envFilePath, repoRoot string, runner shadow.Runner) (*Context, error) {
	paths := config.LoadPaths()
	policy := config.LoadHealPolicy()
	quotas := config.LoadQuotas()
	shadowCfg := config.LoadShadowDefaults()

	riskPolicy, err := config.LoadRiskPolicy(paths.RiskPolicyJSON)
	if err != nil {
		return nil, fmt.Errorf("core: load risk policy: %w", err)
	}

	telemetryCollector, err := telemetry.New(paths.SkillMetricsLog)
	if err != nil {
		return nil, fmt.Errorf("core: telemetry: %w", err)
	}

	registry := actions.NewRegistry(envFilePath)
	limiter := bus.NewRateLimiter(policy.RateLimitPerMinute)
	guardrails := bus.NewGuardrails(policy.Mode, limiter)
	eventBus := bus.New(policy.QueueSize, guardrails, registry)

	if playbooks, perr := config.LoadPlaybooks(paths.PlaybooksYAML); perr == nil {
		eventBus.LoadPlaybooks(playbooks)
	}

	reasoning := reason.New(4, 3, 2)

	alertQueue, err := alerts.New(paths.ApprovalQueueJSON, nil)
	if err != nil {
		return nil, fmt.Errorf("core: alerts: %w", err)
	}

	var tester *shadow.Tester
	if runner != nil {
		tester, err = shadow.New(runner, quarantineArtifactSource(paths), paths.ShadowResultsLog)
		if err != nil {
			return nil, fmt.Errorf("core: shadow: %w", err)
		}
	}

	ctx := &Context{
		Paths: paths, Policy: policy, Quotas: quotas, ShadowCfg: shadowCfg, RiskPolicy: riskPolicy,
		Bus: eventBus, Guardrails: guardrails, Actions: registry,
		Telemetry: telemetryCollector, Shadow: tester,
		Deploy:    deploy.New(repoRoot, paths.BackupDir, paths.DeploymentHistory),
		Reasoning: reasoning, Alerts: alertQueue,
	}

	gov, err := governance.New(paths, quotas, riskPolicy, shadowCfg,
		telemetryCollector.Lookup, ctx.shadowStatsLookup, ctx.debateLookup)
	if err != nil {
		return nil, fmt.Errorf("core: governance: %w", err)
	}
	ctx.Governance = gov

	return ctx, nil
}

// quarantineArtifactSource adapts governance's on-disk artifact layout
// (quarantine/<name>/<version>/{artifact.go.txt,metadata.json}) to
// shadow.ArtifactSource, without the Shadow Tester importing governance —
// the two packages share nothing but this path convention (spec §5,
// "Artifact directories: a directory is mutated by exactly one component").
func quarantineArtifactSource(paths config.Paths) shadow.ArtifactSource {
	return func(name, version string) (string, types.Status, error) {
		dir := filepath.Join(paths.QuarantineDir, name, version)
		source, err := os.ReadFile(filepath.Join(dir, "artifact.go.txt"))
		if err != nil {
			return "", "", fmt.Errorf("shadow: read artifact: %w", err)
		}
		var meta types.ArtifactMetadata
		if err := jsonl.ReadDocumentJSON(filepath.Join(dir, "metadata.json"), &meta); err != nil {
			return "", "", fmt.Errorf("shadow: read metadata: %w", err)
		}
		return string(source), meta.Status, nil
	}
}

// shadowStatsLookup adapts Shadow.Stats to governance.ShadowStatsLookup,
// tolerating a nil Shadow Tester (no sandbox configured): governance's gate
// 6 then simply has no shadow statistics to consult.
func (c *Context) shadowStatsLookup(name string) (types.ShadowStats, bool) {
	if c.Shadow == nil {
		return types.ShadowStats{}, false
	}
	stats, err := c.Shadow.Stats(name)
	if err != nil || stats.SampleCount == 0 {
		return types.ShadowStats{}, false
	}
	return stats, true
}

// Close drains the bus up to the spec's default 5s graceful-shutdown
// deadline (spec §5, "Shutdown is graceful").
func (c *Context) Close() {
	c.Bus.Stop(5 * time.Second)
}

// debateLookup adapts the Reasoning Coordinator to governance.DebateLookup.
// AIC ships no default promotion-arbitration wiring between Reasoning and
// Governance: the spec's gate 7 only applies "if a reasoning arbitration
// step is configured", and Context does not configure one by default, so
// every promotion reports "not configured" and gate 7 is a no-op; Context
// offers no way to replace this lookup.
func (c *Context) debateLookup(name string) (configured bool, approved bool) {
	return false, false
}
