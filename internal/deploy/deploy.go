// Package deploy implements the Deployment Pipeline (spec §4.4): classify an
// improvement, plan target files and validation commands, back them up,
// apply the apply_map over an env file via internal/envfile, run the
// anti-fabrication guard, validate, and record a bounded history — the same
// backup-then-mutate-then-verify shape agents/manager/internal/state/store.go
// uses for its own persistLocked writes, generalized to whole files instead
// of one JSON document.
package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kloros-ai/aic/internal/envfile"
	"github.com/kloros-ai/aic/internal/idgen"
	"github.com/kloros-ai/aic/internal/jsonl"
	"github.com/kloros-ai/aic/internal/types"
)

// maxHistory bounds the persisted deployment history (spec §4.4 step 7).
const maxHistory = 100

// componentClasses maps a keyword found in an improvement's component name
// to its deployment class (spec §4.4 step 1). Every class currently deploys
// via the same "configuration" path; the classification is retained for the
// audit trail and for a future class to override Plan/Apply.
var componentClasses = []struct {
	keyword string
	class   string
}{
	{"evolution", "evolutionary"},
	{"memory", "memory"},
	{"speech", "speech"},
	{"voice", "speech"},
	{"reason", "reasoning"},
	{"config", "configuration"},
}

// Classify maps an improvement's component name to its deployment class.
func Classify(component string) string {
	lower := strings.ToLower(component)
	for _, c := range componentClasses {
		if strings.Contains(lower, c.keyword) {
			return c.class
		}
	}
	return "general"
}

// Pipeline applies approved improvements as real file edits against
// targetRoot, with transactional backup and rollback.
type Pipeline struct {
	mu          sync.Mutex
	targetRoot  string
	backupDir   string
	historyPath string
	clock       *idgen.Clock
	now         func() time.Time
	runCommand  func(ctx context.Context, command string) (exitCode int, output string)
}

// New builds a Pipeline rooted at targetRoot (the directory improvements'
// target_files are relative to), persisting backups under backupDir and
// history at historyPath.
func New(targetRoot, backupDir, historyPath string) *Pipeline {
	return &Pipeline{
		targetRoot:  targetRoot,
		backupDir:   backupDir,
		historyPath: historyPath,
		clock:       idgen.NewClock(),
		now:         time.Now,
		runCommand:  runShellCommand,
	}
}

func runShellCommand(ctx context.Context, command string) (int, string) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return 0, string(out)
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), string(out)
	}
	return -1, string(out)
}

// Plan produces the DeploymentPlan for improvement (spec §4.4 step 2). Every
// class currently plans identically: the sole target file is the env file
// named by KLR_ENV_TARGET (passed in by the caller as envPath), validated by
// the caller-supplied validationCommands (none when nil).
func (p *Pipeline) Plan(improvement types.Improvement, envPath string, validationCommands []string) types.DeploymentPlan {
	class := Classify(improvement.Component)
	return types.DeploymentPlan{
		ID:                   fmt.Sprintf("plan-%s", idgen.Short()),
		ImprovementID:        improvement.TaskID,
		ImprovementType:      class,
		TargetFiles:          []string{envPath},
		BackupRequired:       true,
		ValidationCommands:   validationCommands,
		RollbackPlan:         types.RollbackPlan{Type: types.RollbackBackupRestore},
		Risk:                 improvement.RiskLevel,
		EstimatedDurationSec: 1,
	}
}

// Deploy runs the full workflow: backup, apply, anti-fabrication check,
// validate, record. On any failure after a backup was taken, the backup is
// restored before returning so on-disk state matches the pre-deploy
// snapshot (spec §4.4 atomicity invariant).
func (p *Pipeline) Deploy(ctx context.Context, plan types.DeploymentPlan, improvement types.Improvement) (types.DeploymentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := types.DeploymentResult{DeployedAt: p.now().UTC().Format(time.RFC3339)}

	if !improvement.HasImplementationData() {
		result.ErrorMessage = "Improvement missing implementation data"
		return result, fmt.Errorf("deploy: %w", types.ErrIngestionRejected)
	}

	var backupPath string
	if plan.BackupRequired {
		bp, err := p.backup(plan)
		if err != nil {
			result.ErrorMessage = fmt.Sprintf("backup failed: %v", err)
			return result, fmt.Errorf("deploy: backup: %w", err)
		}
		backupPath = bp
		result.BackupPath = backupPath
	}

	changes, err := p.apply(improvement, plan.TargetFiles)
	if err != nil {
		p.restore(backupPath, plan.TargetFiles)
		result.ErrorMessage = err.Error()
		result.RollbackPerformed = backupPath != ""
		p.record(result)
		return result, fmt.Errorf("deploy: apply: %w", err)
	}
	result.ChangesApplied = changes

	if reason := antiFabricationReason(changes); reason != "" {
		p.restore(backupPath, plan.TargetFiles)
		result.ErrorMessage = reason
		result.RollbackPerformed = backupPath != ""
		p.record(result)
		return result, fmt.Errorf("deploy: %s", reason)
	}

	validations := p.validate(ctx, plan.ValidationCommands)
	result.ValidationResults = validations
	for _, v := range validations {
		if v.ExitCode != 0 {
			p.restore(backupPath, plan.TargetFiles)
			result.ErrorMessage = fmt.Sprintf("validation command failed: %s", v.Command)
			result.RollbackPerformed = backupPath != ""
			p.record(result)
			return result, fmt.Errorf("deploy: validation failed: %s", v.Command)
		}
	}

	result.Success = true
	p.record(result)
	return result, nil
}

// antiFabricationReason returns a non-empty rejection reason unless changes
// is non-empty and every entry begins with "UPDATED " or "ADDED " (spec
// §4.4 step 5).
func antiFabricationReason(changes []string) string {
	if len(changes) == 0 {
		return "Deployment returned descriptions instead of file modifications"
	}
	for _, c := range changes {
		if !strings.HasPrefix(c, "UPDATED ") && !strings.HasPrefix(c, "ADDED ") {
			return "Deployment returned descriptions instead of file modifications"
		}
	}
	return ""
}

// apply iterates apply_map: param_name -> env_var, writing each target file
// atomically (spec §4.4 step 4). All classes currently share this single
// configuration-over-env-file mechanism.
func (p *Pipeline) apply(improvement types.Improvement, targetFiles []string) ([]string, error) {
	if improvement.ParameterRecommendations == nil || len(targetFiles) == 0 {
		return nil, fmt.Errorf("deploy: no parameter recommendations to apply")
	}
	recs := improvement.ParameterRecommendations
	var changes []string
	for _, rel := range targetFiles {
		path := filepath.Join(p.targetRoot, rel)
		f, err := envfile.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("deploy: parse %s: %w", rel, err)
		}
		for param, envVar := range recs.ApplyMap {
			value, ok := recs.Params[param]
			if !ok {
				continue
			}
			res := f.Set(envVar, fmt.Sprintf("%v", value))
			changes = append(changes, res.Description)
		}
		if err := f.WriteAtomic(path); err != nil {
			return nil, fmt.Errorf("deploy: write %s: %w", rel, err)
		}
	}
	sort.Strings(changes)
	return changes, nil
}

// backup copies every target file into backups/<plan_id>_<ts>/, preserving
// relative paths (spec §4.4 step 3).
func (p *Pipeline) backup(plan types.DeploymentPlan) (string, error) {
	dest := filepath.Join(p.backupDir, fmt.Sprintf("%s_%d", plan.ID, p.clock.NowMicros()))
	for _, rel := range plan.TargetFiles {
		src := filepath.Join(p.targetRoot, rel)
		dst := filepath.Join(dest, rel)
		if err := copyPath(src, dst); err != nil {
			return "", err
		}
	}
	return dest, nil
}

// restore copies backupPath's tree back over targetRoot, undoing apply. A
// missing backupPath (nothing was backed up) is a no-op.
func (p *Pipeline) restore(backupPath string, targetFiles []string) {
	if backupPath == "" {
		return
	}
	for _, rel := range targetFiles {
		src := filepath.Join(backupPath, rel)
		dst := filepath.Join(p.targetRoot, rel)
		_ = copyPath(src, dst)
	}
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		// Nothing existed at src prior to deploy; restoring means removing
		// whatever apply created.
		return os.RemoveAll(dst)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			target := filepath.Join(dst, rel)
			if fi.IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			return copyFile(path, target, fi.Mode())
		})
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return copyFile(src, dst, info.Mode())
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// validate runs each validation command via sh -c, capturing exit code and
// combined output (spec §4.4 step 6).
func (p *Pipeline) validate(ctx context.Context, commands []string) []types.ValidationResult {
	results := make([]types.ValidationResult, 0, len(commands))
	for _, cmd := range commands {
		code, output := p.runCommand(ctx, cmd)
		results = append(results, types.ValidationResult{Command: cmd, ExitCode: code, Output: output})
	}
	return results
}

// history is the bounded, best-effort deployment history document (spec
// §4.4 step 7): history loss never affects deploy's own correctness.
type history struct {
	Entries []types.DeploymentResult `json:"entries"`
}

func (p *Pipeline) record(result types.DeploymentResult) {
	if p.historyPath == "" {
		return
	}
	var h history
	_ = jsonl.ReadDocumentJSON(p.historyPath, &h)
	h.Entries = append(h.Entries, result)
	if len(h.Entries) > maxHistory {
		h.Entries = h.Entries[len(h.Entries)-maxHistory:]
	}
	_ = jsonl.WriteDocumentJSON(p.historyPath, &h)
}

// History returns the persisted deployment history, most recent last.
func (p *Pipeline) History() ([]types.DeploymentResult, error) {
	var h history
	if err := jsonl.ReadDocumentJSON(p.historyPath, &h); err != nil {
		return nil, err
	}
	return h.Entries, nil
}
