// Package jsonl implements the append-only JSON-line log primitive shared
// by the provenance ledger, the skill_metrics stream, and shadow_results.
// The write-temp-then-rename discipline and directory bootstrapping mirror
// internal/state/store.go's persistLocked; unlike that single-document
// store, this one never rewrites prior bytes — it only appends, and readers
// tolerate a partial trailing line (spec §5, "Shared resources").
package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log is a process-wide append-only JSON-line file. Writers serialize on mu;
// readers may read concurrently by opening their own handle.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open returns a Log bound to path, creating parent directories as needed.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Log{path: path}, nil
}

// Append serializes v as one JSON line and appends it to the file,
// fsyncing before returning so a concurrent reader never observes a
// half-written record once the call returns. The write itself goes through
// retryTransient, so a transient disk/DB error (spec §7) is retried with
// backoff before it reaches the caller.
func (l *Log) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return retryTransient(func() error {
		f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := f.Write(append(data, '\n')); err != nil {
			return err
		}
		return f.Sync()
	})
}

// Lines passes every syntactically complete JSON line currently on disk to
// each, in file order, as a copy of its raw bytes. A partial trailing line
// (the writer crashed mid-append) is silently discarded, per spec §5.
func Lines(path string, each func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if strings.TrimSpace(string(line)) == "" {
			continue
		}
		if !json.Valid(line) {
			// Partial trailing line from a crashed writer; discard.
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if err := each(cp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Count returns the number of syntactically valid lines in path.
func Count(path string) (int, error) {
	n := 0
	err := Lines(path, func([]byte) error { n++; return nil })
	return n, err
}
