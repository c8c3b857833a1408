package jsonl

import (
	"errors"
	"testing"
	"time"

	"github.com/kloros-ai/aic/internal/types"
)

func withNoSleep(t *testing.T) {
	t.Helper()
	orig := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = orig })
}

func TestRetryTransientSucceedsOnThirdAttempt(t *testing.T) {
	withNoSleep(t)
	calls := 0
	err := retryTransient(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on 3rd attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestRetryTransientSurfacesAfterFourFailures(t *testing.T) {
	withNoSleep(t)
	calls := 0
	err := retryTransient(func() error {
		calls++
		return errors.New("disk i/o error")
	})
	if calls != retryAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", retryAttempts, calls)
	}
	if !errors.Is(err, types.ErrTransientStorage) {
		t.Fatalf("expected ErrTransientStorage, got %v", err)
	}
}

func TestRetryTransientDoesNotRetryNonTransientErrors(t *testing.T) {
	withNoSleep(t)
	calls := 0
	wantErr := errors.New("permission denied")
	err := retryTransient(func() error {
		calls++
		return wantErr
	})
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-transient error, got %d", calls)
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the original error to pass through unwrapped, got %v", err)
	}
}
