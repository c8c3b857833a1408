package jsonl

import (
	"fmt"
	"strings"
	"time"

	"github.com/kloros-ai/aic/internal/types"
)

// sleep waits between retries of transient storage errors (spec §7,
// TransientStorageError): three attempts total, with a 100ms then a 200ms
// wait between them, grounded on kloros_memory/vector_store.py's
// retry_on_db_error decorator. sleep is swapped out in tests so the 2-of-3
// and 4-in-a-row cases don't cost real wall-clock time.
var sleep = time.Sleep

const retryAttempts = 3

// retryTransient runs fn, retrying with doubling backoff only when the
// failure looks transient per types.TransientMessages. Every storage
// boundary in this package goes through here rather than leaving retry to
// scattered call sites, per spec's Open Question on where the retry lives.
func retryTransient(fn func() error) error {
	delay := 100 * time.Millisecond
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt == retryAttempts {
			break
		}
		sleep(delay)
		delay *= 2
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", types.ErrTransientStorage, err)
	}
	return err
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range types.TransientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
