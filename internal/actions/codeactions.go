package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kloros-ai/aic/internal/types"
)

func readWholeFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func writeWholeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// markerFor builds the idempotence marker comment a code action leaves
// behind, so a second Apply with identical params recognizes its own prior
// edit instead of inserting a duplicate guard (spec §8 property 6).
func markerFor(action, key string) string {
	return fmt.Sprintf("// kloros:%s %s", action, key)
}

// AddNullCheck inserts a nil/empty guard immediately before params
// ["usage_line"] (1-indexed) in params["file"] for params["component"],
// unless a prior run's marker is already present anywhere in the file — applying it
// twice with the same parameters is a no-op the second time and never
// doubles the guard.
type AddNullCheck struct{}

func (a *AddNullCheck) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	_ = ctx
	file := stringParam(params, "file")
	component := stringParam(params, "component")
	usageLine, _ := asInt(params["usage_line"])
	if file == "" || component == "" || usageLine <= 0 {
		return types.Applied{}, fmt.Errorf("%w: add_null_check requires file, component, usage_line", types.ErrActionFailed)
	}
	marker := markerFor("add_null_check", component)

	original, err := readWholeFile(file)
	if err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	lines := strings.Split(string(original), "\n")
	if strings.Contains(string(original), marker) {
		return types.Applied{RollbackData: map[string]any{
			"file": file, "original": string(original), "already_present": true,
		}}, nil
	}
	if usageLine > len(lines)+1 {
		return types.Applied{}, fmt.Errorf("%w: usage_line %d out of range for %s", types.ErrActionFailed, usageLine, file)
	}
	idx := usageLine - 1
	indent := leadingWhitespace(lines, idx)
	guard := []string{
		indent + marker,
		fmt.Sprintf("%sif %s == nil {", indent, component),
		fmt.Sprintf("%s\treturn", indent),
		indent + "}",
	}
	newLines := append([]string{}, lines[:idx]...)
	newLines = append(newLines, guard...)
	newLines = append(newLines, lines[idx:]...)

	if err := writeWholeFileAtomic(file, []byte(strings.Join(newLines, "\n"))); err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	return types.Applied{RollbackData: map[string]any{"file": file, "original": string(original)}}, nil
}

func (a *AddNullCheck) Rollback(ctx context.Context, applied types.Applied) error {
	already, _ := applied.RollbackData["already_present"].(bool)
	if already {
		return nil
	}
	file, _ := applied.RollbackData["file"].(string)
	original, ok := applied.RollbackData["original"].(string)
	if file == "" || !ok {
		return nil
	}
	return writeWholeFileAtomic(file, []byte(original))
}

// AddMissingCall inserts params["call"] immediately after params
// ["after_line"] in params["file"], guarded by the same idempotence marker
// discipline AddNullCheck uses.
type AddMissingCall struct{}

func (a *AddMissingCall) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	_ = ctx
	file := stringParam(params, "file")
	call := stringParam(params, "call")
	afterLine, _ := asInt(params["after_line"])
	if file == "" || call == "" || afterLine <= 0 {
		return types.Applied{}, fmt.Errorf("%w: add_missing_call requires file, call, after_line", types.ErrActionFailed)
	}
	marker := markerFor("add_missing_call", call)

	original, err := readWholeFile(file)
	if err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	if strings.Contains(string(original), marker) {
		return types.Applied{RollbackData: map[string]any{
			"file": file, "original": string(original), "already_present": true,
		}}, nil
	}
	lines := strings.Split(string(original), "\n")
	if afterLine > len(lines) {
		return types.Applied{}, fmt.Errorf("%w: after_line %d out of range for %s", types.ErrActionFailed, afterLine, file)
	}
	indent := leadingWhitespace(lines, afterLine-1)
	insertion := []string{indent + marker, indent + call}
	newLines := append([]string{}, lines[:afterLine]...)
	newLines = append(newLines, insertion...)
	newLines = append(newLines, lines[afterLine:]...)

	if err := writeWholeFileAtomic(file, []byte(strings.Join(newLines, "\n"))); err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	return types.Applied{RollbackData: map[string]any{"file": file, "original": string(original)}}, nil
}

func (a *AddMissingCall) Rollback(ctx context.Context, applied types.Applied) error {
	already, _ := applied.RollbackData["already_present"].(bool)
	if already {
		return nil
	}
	file, _ := applied.RollbackData["file"].(string)
	original, ok := applied.RollbackData["original"].(string)
	if file == "" || !ok {
		return nil
	}
	return writeWholeFileAtomic(file, []byte(original))
}

// ConsolidateDuplicates splits params["file"] on every occurrence of
// params["block_marker"] and drops each segment after a marker whose text
// exactly repeats an earlier such segment, consecutive or not, keeping the
// first occurrence; text before the first marker is always kept. A file with
// no marker is left untouched, and one with no repeated segment keeps its
// content.
type ConsolidateDuplicates struct{}

func (a *ConsolidateDuplicates) Apply(ctx context.Context, params map[string]any) (types.Applied, error) {
	_ = ctx
	file := stringParam(params, "file")
	blockMarker := stringParam(params, "block_marker")
	if file == "" || blockMarker == "" {
		return types.Applied{}, fmt.Errorf("%w: consolidate_duplicates requires file, block_marker", types.ErrActionFailed)
	}
	original, err := readWholeFile(file)
	if err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	blocks := splitOnMarker(string(original), blockMarker)
	if len(blocks) <= 1 {
		return types.Applied{RollbackData: map[string]any{
			"file": file, "original": string(original), "already_present": true,
		}}, nil
	}
	seen := map[string]bool{}
	keep := []string{blocks[0]}
	for _, b := range blocks[1:] {
		if seen[b] {
			continue
		}
		seen[b] = true
		keep = append(keep, b)
	}
	merged := strings.Join(keep, blockMarker)
	if err := writeWholeFileAtomic(file, []byte(merged)); err != nil {
		return types.Applied{}, fmt.Errorf("%w: %v", types.ErrActionFailed, err)
	}
	return types.Applied{RollbackData: map[string]any{"file": file, "original": string(original)}}, nil
}

func (a *ConsolidateDuplicates) Rollback(ctx context.Context, applied types.Applied) error {
	already, _ := applied.RollbackData["already_present"].(bool)
	if already {
		return nil
	}
	file, _ := applied.RollbackData["file"].(string)
	original, ok := applied.RollbackData["original"].(string)
	if file == "" || !ok {
		return nil
	}
	return writeWholeFileAtomic(file, []byte(original))
}

func splitOnMarker(content, marker string) []string {
	if marker == "" {
		return []string{content}
	}
	return strings.Split(content, marker)
}

func leadingWhitespace(lines []string, idx int) string {
	if idx < 0 || idx >= len(lines) {
		return ""
	}
	line := lines[idx]
	trimmed := strings.TrimLeft(line, " \t")
	return line[:len(line)-len(trimmed)]
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
	}
	return 0, false
}
