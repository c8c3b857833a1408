// Package governance implements Synthesis Governance: the quarantine,
// shadow, and promotion lifecycle for synthesized capability artifacts.
// File layout and the append-only-provenance discipline mirror
// internal/state/store.go's persistLocked/load pair, generalized from one
// JSON document to a directory tree of versioned artifacts plus a JSONL
// ledger (internal/jsonl).
package governance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kloros-ai/aic/internal/config"
	"github.com/kloros-ai/aic/internal/jsonl"
	"github.com/kloros-ai/aic/internal/types"
	"gopkg.in/yaml.v3"
)

// SLOLookup resolves the latest telemetry for (name, version); ok is false
// when no samples exist yet. Injected from internal/telemetry through
// core.Context rather than imported directly, so governance has no
// compile-time dependency on how metrics are collected.
type SLOLookup func(name, version string) (types.SkillMetrics, bool)

// ShadowStatsLookup resolves aggregated shadow test statistics for a
// quarantined tool. Injected from internal/shadow.
type ShadowStatsLookup func(name string) (types.ShadowStats, bool)

// DebateLookup resolves whether a reasoning-coordinator debate verdict for
// this promotion is configured and, if so, whether it approved. Injected
// from internal/reason.
type DebateLookup func(name string) (configured bool, approved bool)

// Governance owns the quarantine/promoted directory tree and the
// provenance ledger for one AIC instance.
type Governance struct {
	paths      config.Paths
	quotas     config.Quotas
	riskPolicy config.RiskPolicyTable
	shadowDefs config.ShadowDefaults
	slo        SLOLookup
	shadow     ShadowStatsLookup
	debate     DebateLookup
	provenance *jsonl.Log
	now        func() time.Time
}

// New wires a Governance instance. now defaults to time.Now when nil.
func New(paths config.Paths, quotas config.Quotas, riskPolicy config.RiskPolicyTable, shadowDefs config.ShadowDefaults,
	slo SLOLookup, shadow ShadowStatsLookup, debate DebateLookup) (*Governance, error) {
	log, err := jsonl.Open(paths.ProvenanceLog)
	if err != nil {
		return nil, fmt.Errorf("governance: open provenance log: %w", err)
	}
	return &Governance{
		paths:      paths,
		quotas:     quotas,
		riskPolicy: riskPolicy,
		shadowDefs: shadowDefs,
		slo:        slo,
		shadow:     shadow,
		debate:     debate,
		provenance: log,
		now:        time.Now,
	}, nil
}

var (
	highRiskPattern   = regexp.MustCompile(`os\.Remove|exec\.Command|os/exec|net\.Dial|http\.(Post|Get)|syscall\.|os\.Chmod`)
	mediumRiskPattern = regexp.MustCompile(`os\.(Write|Create|OpenFile)|ioutil\.WriteFile|os\.Mkdir`)
)

// ClassifyRisk is a static string-pattern match over source, regex-level
// per spec §4.2: any high-risk marker (process exec, raw syscalls, network
// dialing, filesystem removal) outranks a medium-risk marker (file writes),
// which outranks the low-risk default.
func ClassifyRisk(name, code string) types.RiskClass {
	_ = name
	if highRiskPattern.MatchString(code) {
		return types.RiskHigh
	}
	if mediumRiskPattern.MatchString(code) {
		return types.RiskMedium
	}
	return types.RiskLow
}

func (g *Governance) dateISO() string { return g.now().UTC().Format("2006-01-02") }
func (g *Governance) nowISO() string  { return g.now().UTC().Format(time.RFC3339) }

func (g *Governance) quarantineArtifactDir(name, version string) string {
	return filepath.Join(g.paths.QuarantineDir, name, version)
}

func (g *Governance) promotedArtifactDir(name, version string) string {
	return filepath.Join(g.paths.PromotedDir, name, version)
}

func (g *Governance) metadataPath(dir string) string { return filepath.Join(dir, "metadata.json") }
func (g *Governance) codePath(dir string) string     { return filepath.Join(dir, "artifact.go.txt") }

// Quarantine writes a new artifact at version 0.1.0, appends a synthesis
// provenance entry, and returns the versioned name plus that entry (spec
// §4.2).
func (g *Governance) Quarantine(name, code, reason, model, prompt string) (string, types.ProvenanceRecord, error) {
	const version = "0.1.0"
	dir := g.quarantineArtifactDir(name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", types.ProvenanceRecord{}, fmt.Errorf("governance: mkdir quarantine dir: %w", err)
	}
	if err := os.WriteFile(g.codePath(dir), []byte(code), 0o644); err != nil {
		return "", types.ProvenanceRecord{}, fmt.Errorf("governance: write artifact: %w", err)
	}
	risk := ClassifyRisk(name, code)
	meta := types.ArtifactMetadata{
		Name: name, Version: version, Status: types.StatusQuarantine, Risk: risk, Reason: reason,
		CreatedAt: g.nowISO(), UpdatedAt: g.nowISO(),
		Tests: types.TestResults{Unit: types.TestPending, E2E: types.TestPending},
	}
	if err := jsonl.WriteDocumentJSON(g.metadataPath(dir), meta); err != nil {
		return "", types.ProvenanceRecord{}, fmt.Errorf("governance: write metadata: %w", err)
	}

	record := types.ProvenanceRecord{
		Tool: name, Version: version, Origin: types.OriginSynthesis, Reason: reason,
		Model: model, PromptHash: promptHash(prompt), Risk: risk, Date: g.nowISO(),
	}
	if err := g.provenance.Append(record); err != nil {
		return "", types.ProvenanceRecord{}, fmt.Errorf("governance: append provenance: %w", err)
	}
	versionedName := fmt.Sprintf("%s@%s", name, version)
	return versionedName, record, nil
}

func promptHash(prompt string) string {
	if prompt == "" {
		return ""
	}
	var sum uint32 = 2166136261
	for i := 0; i < len(prompt); i++ {
		sum ^= uint32(prompt[i])
		sum *= 16777619
	}
	return fmt.Sprintf("%08x", sum)
}

// readMetadata loads metadata.json for an artifact, distinguishing "missing
// file" from other I/O errors so CheckPromotionGates can report "Missing
// metadata" specifically (spec §4.2 edge case).
func (g *Governance) readMetadata(dir string) (types.ArtifactMetadata, error) {
	var meta types.ArtifactMetadata
	path := g.metadataPath(dir)
	if _, err := os.Stat(path); err != nil {
		return meta, err
	}
	if err := jsonl.ReadDocumentJSON(path, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// CheckPromotionGates evaluates all seven promotion gates from spec §4.2
// and returns ok plus every failing reason (not just the first), so a
// caller can surface the complete picture to an operator.
func (g *Governance) CheckPromotionGates(name, version string) (bool, []string) {
	dir := g.quarantineArtifactDir(name, version)
	meta, err := g.readMetadata(dir)
	if err != nil {
		return false, []string{"Missing metadata"}
	}
	var reasons []string

	if meta.Tests.Unit != types.TestPass || meta.Tests.E2E != types.TestPass {
		reasons = append(reasons, "tests have not passed (unit and e2e both required)")
	}
	if dailyCount := g.countSynthesisToday(); dailyCount >= g.quotas.DailySynthesisMax {
		reasons = append(reasons, fmt.Sprintf("daily synthesis quota exceeded (%d/%d)", dailyCount, g.quotas.DailySynthesisMax))
	}
	if weeklyCount := g.countPromotionsThisWeek(); weeklyCount >= g.quotas.WeeklyPromotionMax {
		reasons = append(reasons, fmt.Sprintf("weekly promotion quota exceeded (%d/%d)", weeklyCount, g.quotas.WeeklyPromotionMax))
	}
	if meta.Risk == types.RiskHigh {
		if _, ok := g.riskPolicy[name]; !ok {
			reasons = append(reasons, fmt.Sprintf("no risk policy entry for high-risk tool %q", name))
		}
	}
	manifest, hasManifest := g.readManifest(dir)
	if hasManifest && !manifest.HasIOSchemas() {
		reasons = append(reasons, "manifest present but missing validated input/output schemas")
	}
	slo := manifest.SLO
	if !hasManifest || (slo == (types.SLO{})) {
		slo = types.DefaultSLO()
	}
	if g.slo != nil {
		metrics, ok := g.slo(name, version)
		if !ok {
			reasons = append(reasons, "no telemetry recorded for this version")
		} else {
			if metrics.Calls < int64(slo.MinCalls) {
				reasons = append(reasons, fmt.Sprintf("insufficient call volume (%d < %d)", metrics.Calls, slo.MinCalls))
			}
			if p95 := percentileOf(metrics.Latencies, 0.95); p95 > slo.P95LatencyMs {
				reasons = append(reasons, fmt.Sprintf("p95 latency %.1fms exceeds SLO %.1fms", p95, slo.P95LatencyMs))
			}
			if metrics.ErrorRate() > slo.MaxErrorRate {
				reasons = append(reasons, fmt.Sprintf("error rate %.3f exceeds SLO %.3f", metrics.ErrorRate(), slo.MaxErrorRate))
			}
		}
	}
	if g.shadow != nil {
		if stats, ok := g.shadow(name); ok {
			if !stats.MeetsThresholds(g.shadowDefs.MinSamples, g.shadowDefs.MinAccuracy, g.shadowDefs.MaxErrorRate) {
				reasons = append(reasons, fmt.Sprintf(
					"shadow statistics below promotion threshold (samples=%d match_rate=%.2f error_rate=%.2f)",
					stats.SampleCount, stats.MatchRate, stats.ErrorRate))
			}
		}
	}
	if g.debate != nil {
		if configured, approved := g.debate(name); configured && !approved {
			reasons = append(reasons, "reasoning coordinator debate did not approve this promotion")
		}
	}
	return len(reasons) == 0, reasons
}

func (g *Governance) readManifest(dir string) (types.Manifest, bool) {
	path := filepath.Join(dir, "manifest.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Manifest{}, false
	}
	var m types.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return types.Manifest{}, false
	}
	return m, true
}

func (g *Governance) countSynthesisToday() int {
	today := g.dateISO()
	count := 0
	_ = jsonl.Lines(g.paths.ProvenanceLog, func(line []byte) error {
		var rec types.ProvenanceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil
		}
		if rec.IsSynthesisOn(today) {
			count++
		}
		return nil
	})
	return count
}

func (g *Governance) countPromotionsThisWeek() int {
	monday := startOfWeek(g.now().UTC())
	count := 0
	_ = jsonl.Lines(g.paths.ProvenanceLog, func(line []byte) error {
		var rec types.ProvenanceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil
		}
		if !rec.IsPromotion() {
			return nil
		}
		ts, err := time.Parse(time.RFC3339, rec.Date)
		if err != nil {
			return nil
		}
		if !ts.Before(monday) {
			count++
		}
		return nil
	})
	return count
}

func startOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	daysSinceMonday := weekday - 1
	d := t.AddDate(0, 0, -daysSinceMonday)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Promote copies the quarantined artifact to promoted/<name>/1.0.0/,
// updates metadata, appends a promotion record, and updates the
// capabilities registry. Re-running Promote against an already-promoted
// artifact is idempotent: metadata is overwritten and a promotion record is
// appended, but files are not duplicated (spec §4.2 edge case).
func (g *Governance) Promote(name, fromVersion string) (string, error) {
	if fromVersion == "" {
		fromVersion = "0.1.0"
	}
	const toVersion = "1.0.0"
	ok, reasons := g.CheckPromotionGates(name, fromVersion)
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrGateFailed, strings.Join(reasons, "; "))
	}

	srcDir := g.quarantineArtifactDir(name, fromVersion)
	dstDir := g.promotedArtifactDir(name, toVersion)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("governance: mkdir promoted dir: %w", err)
	}
	if err := copyFileIfMissing(g.codePath(srcDir), g.codePath(dstDir)); err != nil {
		return "", fmt.Errorf("governance: copy artifact: %w", err)
	}

	meta, err := g.readMetadata(srcDir)
	if err != nil {
		return "", fmt.Errorf("governance: read metadata: %w", err)
	}
	meta.Version = toVersion
	meta.Status = types.StatusPromoted
	meta.UpdatedAt = g.nowISO()
	if err := jsonl.WriteDocumentJSON(g.metadataPath(dstDir), meta); err != nil {
		return "", fmt.Errorf("governance: write promoted metadata: %w", err)
	}

	if err := g.provenance.Append(types.ProvenanceRecord{
		Event: "promotion", Tool: name, FromVersion: fromVersion, ToVersion: toVersion,
		Date: g.nowISO(), Risk: meta.Risk,
	}); err != nil {
		return "", fmt.Errorf("governance: append promotion record: %w", err)
	}
	if err := g.updateCapabilitiesRegistry(name, toVersion, meta.Risk); err != nil {
		return "", fmt.Errorf("governance: update capabilities registry: %w", err)
	}
	return toVersion, nil
}

func copyFileIfMissing(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// GetStatus reads the quarantine metadata for name@version, falling back to
// the promoted tree.
func (g *Governance) GetStatus(name, version string) (types.ArtifactMetadata, error) {
	if meta, err := g.readMetadata(g.quarantineArtifactDir(name, version)); err == nil {
		return meta, nil
	}
	return g.readMetadata(g.promotedArtifactDir(name, version))
}

// ListQuarantined returns every name@version currently under quarantine/.
func (g *Governance) ListQuarantined() ([]string, error) {
	return g.listVersionedNames(g.paths.QuarantineDir)
}

// ListPromoted returns every name@version currently under promoted/.
func (g *Governance) ListPromoted() ([]string, error) {
	return g.listVersionedNames(g.paths.PromotedDir)
}

func (g *Governance) listVersionedNames(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		versions, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		for _, v := range versions {
			if v.IsDir() {
				out = append(out, fmt.Sprintf("%s@%s", e.Name(), v.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetProvenance replays the provenance ledger and returns every record for
// name, in append order, per spec §4.2's "reconstruct state by replay".
func (g *Governance) GetProvenance(name string) ([]types.ProvenanceRecord, error) {
	var out []types.ProvenanceRecord
	err := jsonl.Lines(g.paths.ProvenanceLog, func(line []byte) error {
		var rec types.ProvenanceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil
		}
		if rec.Tool == name {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func percentileOf(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
