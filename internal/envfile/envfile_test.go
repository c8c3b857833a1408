package envfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseMissingFileIsEmpty(t *testing.T) {
	f, err := Parse(filepath.Join(t.TempDir(), "does-not-exist.env"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Lines) != 0 {
		t.Fatalf("expected no lines, got %+v", f.Lines)
	}
	if _, ok := f.Get("KLR_X"); ok {
		t.Fatalf("expected Get on empty file to report absent")
	}
}

func TestSetUpdatesExistingVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("KLR_TIMEOUT=30\n# a comment\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	f, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res := f.Set("KLR_TIMEOUT", "60")
	if !strings.HasPrefix(res.Description, "UPDATED KLR_TIMEOUT: 30 -> 60") {
		t.Fatalf("unexpected description: %q", res.Description)
	}
	if res.Added {
		t.Fatalf("expected Added=false for an update")
	}
	value, ok := f.Get("KLR_TIMEOUT")
	if !ok || value != "60" {
		t.Fatalf("expected updated value 60, got %q ok=%v", value, ok)
	}
}

func TestSetAddsNewVar(t *testing.T) {
	f, err := Parse(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res := f.Set("KLR_NEW_FLAG", "1")
	if !res.Added {
		t.Fatalf("expected Added=true for a new var")
	}
	if res.Description != "ADDED KLR_NEW_FLAG=1" {
		t.Fatalf("unexpected description: %q", res.Description)
	}
	if !strings.Contains(f.Render(), "KLR_NEW_FLAG=1") {
		t.Fatalf("expected rendered file to contain the new assignment, got %q", f.Render())
	}
}

func TestWriteAtomicRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.env")
	f, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f.Set("KLR_A", "1")
	if err := f.WriteAtomic(path); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	reparsed, err := Parse(path)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	value, ok := reparsed.Get("KLR_A")
	if !ok || value != "1" {
		t.Fatalf("expected persisted KLR_A=1, got %q ok=%v", value, ok)
	}
}
