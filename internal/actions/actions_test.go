package actions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kloros-ai/aic/internal/types"
)

func TestRegistryLookupKnownAndUnknown(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "env"))
	if _, ok := reg.Lookup(types.ActionSetFlag); !ok {
		t.Fatalf("expected set_flag to be registered")
	}
	if _, ok := reg.Lookup(types.ActionName("not_a_real_action")); ok {
		t.Fatalf("expected unknown action to be absent")
	}
}

func TestSetFlagApplyAndRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env")
	if err := os.WriteFile(path, []byte("KLR_FEATURE_X=0\n"), 0o644); err != nil {
		t.Fatalf("seed env file: %v", err)
	}
	action := &SetFlag{EnvFilePath: path}

	applied, err := action.Apply(context.Background(), map[string]any{"name": "KLR_FEATURE_X", "value": "1"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "KLR_FEATURE_X=1") {
		t.Fatalf("expected flag flipped to 1, got %q", data)
	}

	if err := action.Rollback(context.Background(), applied); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "KLR_FEATURE_X=0") {
		t.Fatalf("expected rollback to restore 0, got %q", data)
	}
}

func TestAddNullCheckIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handler.go")
	src := "package x\n\nfunc f() {\n\tuse(component)\n}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("seed source file: %v", err)
	}
	action := &AddNullCheck{}
	params := map[string]any{"file": path, "component": "component", "usage_line": 4}

	first, err := action.Apply(context.Background(), params)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	afterFirst, _ := os.ReadFile(path)
	if !strings.Contains(string(afterFirst), "kloros:add_null_check component") {
		t.Fatalf("expected marker comment inserted, got %q", afterFirst)
	}

	second, err := action.Apply(context.Background(), params)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	afterSecond, _ := os.ReadFile(path)
	if string(afterFirst) != string(afterSecond) {
		t.Fatalf("expected second Apply to be a no-op, got diff:\n%s\nvs\n%s", afterFirst, afterSecond)
	}

	if err := action.Rollback(context.Background(), second); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := action.Rollback(context.Background(), first); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	restored, _ := os.ReadFile(path)
	if string(restored) != src {
		t.Fatalf("expected rollback to restore original source, got %q", restored)
	}
}
