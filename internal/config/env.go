// Package config loads AIC's environment-driven and file-backed
// configuration: heal mode, rate limits, risk policy, and file paths. The
// env-lookup helpers below do the same job as cmd/manager/policy.go's
// loadDyadPolicy boolEnv/intEnv pair, but collapsed through one generic
// parser rather than one copy-pasted function per type, since AIC's env
// surface (spec §6) has a float and a string variant the teacher's policy
// loader never needed.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/kloros-ai/aic/internal/types"
)

// envLookup parses key's value with parse, falling back to def when the
// variable is unset/blank or parse rejects it. Every typed env helper below
// is this function specialized to one parse function.
func envLookup[T any](key string, def T, parse func(string) (T, bool)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if v, ok := parse(raw); ok {
		return v
	}
	return def
}

func boolEnv(key string, def bool) bool {
	return envLookup(key, def, func(raw string) (bool, bool) {
		switch strings.ToLower(raw) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	})
}

func intEnv(key string, def int) int {
	return envLookup(key, def, func(raw string) (int, bool) {
		v, err := strconv.Atoi(raw)
		return v, err == nil
	})
}

func floatEnv(key string, def float64) float64 {
	return envLookup(key, def, func(raw string) (float64, bool) {
		v, err := strconv.ParseFloat(raw, 64)
		return v, err == nil
	})
}

func strEnv(key, def string) string {
	return envLookup(key, def, func(raw string) (string, bool) { return raw, true })
}

// HealPolicy is the Guardrails configuration for the Event Bus & Self-Heal
// Executor (spec §4.1).
type HealPolicy struct {
	Mode               types.Mode
	RateLimitPerMinute int
	QueueSize          int
	AutonomyLevel      string
	DreamAlertsEnabled bool
}

// LoadHealPolicy reads KLR_HEAL_MODE, KLR_HEAL_RATE_LIMIT, KLR_DREAM_ALERTS,
// and KLR_AUTONOMY_LEVEL (spec §6).
func LoadHealPolicy() HealPolicy {
	mode := strings.ToUpper(strEnv("KLR_HEAL_MODE", string(types.ModeSafe)))
	switch types.Mode(mode) {
	case types.ModeSafe, types.ModeAuto, types.ModeDryRun:
	default:
		mode = string(types.ModeSafe)
	}
	return HealPolicy{
		Mode:               types.Mode(mode),
		RateLimitPerMinute: intEnv("KLR_HEAL_RATE_LIMIT", 6),
		QueueSize:          intEnv("KLR_HEAL_QUEUE_SIZE", 100),
		AutonomyLevel:      strEnv("KLR_AUTONOMY_LEVEL", "assisted"),
		DreamAlertsEnabled: boolEnv("KLR_DREAM_ALERTS", true),
	}
}

// Quotas holds the synthesis/promotion quotas governance enforces (spec
// §4.2 gates 2-3).
type Quotas struct {
	DailySynthesisMax  int
	WeeklyPromotionMax int
}

// LoadQuotas reads quota overrides, defaulting to the spec's numbers.
func LoadQuotas() Quotas {
	return Quotas{
		DailySynthesisMax:  intEnv("KLR_SYNTH_DAILY_QUOTA", 50),
		WeeklyPromotionMax: intEnv("KLR_PROMOTION_WEEKLY_QUOTA", 200),
	}
}

// ShadowDefaults holds the promotion-gating shadow thresholds (spec §4.3).
type ShadowDefaults struct {
	MinSamples   int
	MinAccuracy  float64
	MaxErrorRate float64
}

// LoadShadowDefaults reads shadow threshold overrides.
func LoadShadowDefaults() ShadowDefaults {
	return ShadowDefaults{
		MinSamples:   intEnv("KLR_SHADOW_MIN_SAMPLES", 10),
		MinAccuracy:  floatEnv("KLR_SHADOW_MIN_ACCURACY", 0.8),
		MaxErrorRate: floatEnv("KLR_SHADOW_MAX_ERROR_RATE", 0.2),
	}
}

// Paths centralizes every on-disk location AIC owns, so there is exactly
// one canonical path per spec's Open Questions note about capabilities.yaml
// appearing under two names across the source: callers must go through
// this struct rather than hardcoding a path, and construction fails loudly
// if KLR_CAPABILITIES_PATH and a legacy override disagree.
type Paths struct {
	QuarantineDir     string
	PromotedDir       string
	BackupDir         string
	ProvenanceLog     string
	SkillMetricsLog   string
	ShadowResultsLog  string
	CapabilitiesYAML  string
	RiskPolicyJSON    string
	PlaybooksYAML     string
	ApprovalQueueJSON string
	DeploymentHistory string
}

// LoadPaths resolves every path AIC owns, rooted at KLR_HOME (default
// "./kloros-aic").
func LoadPaths() Paths {
	root := strEnv("KLR_HOME", "./kloros-aic")
	canonical := strEnv("KLR_CAPABILITIES_PATH", root+"/capabilities.yaml")
	if legacy := strEnv("KLR_CAPABILITIES_PATH_LEGACY", ""); legacy != "" && legacy != canonical {
		panic("config: KLR_CAPABILITIES_PATH and KLR_CAPABILITIES_PATH_LEGACY disagree on the capabilities registry location")
	}
	return Paths{
		QuarantineDir:     root + "/quarantine",
		PromotedDir:       root + "/promoted",
		BackupDir:         root + "/backups",
		ProvenanceLog:     root + "/tool_provenance.jsonl",
		SkillMetricsLog:   root + "/skill_metrics.jsonl",
		ShadowResultsLog:  root + "/shadow_results.jsonl",
		CapabilitiesYAML:  canonical,
		RiskPolicyJSON:    root + "/risk_policy.json",
		PlaybooksYAML:     root + "/playbooks.yaml",
		ApprovalQueueJSON: root + "/approval_queue.json",
		DeploymentHistory: root + "/deployment_history.json",
	}
}
