// Package idgen generates short opaque identifiers and a monotonic
// microsecond clock for HealEvent ordering, grounded on the google/uuid
// dependency carried by the teacher's apps/ReleaseParty/backend module.
package idgen

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Short returns a short opaque identifier unique across the process
// lifetime: the first 12 hex characters of a random UUIDv4, which keeps
// log lines and JSONL records compact while remaining collision-safe for a
// single process's event volume.
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Clock hands out strictly increasing microsecond timestamps, even when
// called faster than the OS clock's resolution, satisfying the
// "(id, ts_mono) is strictly monotonic per process" invariant in spec §3.
type Clock struct {
	mu   sync.Mutex
	last int64
}

// NewClock returns a Clock ready for use.
func NewClock() *Clock { return &Clock{} }

// NowMicros returns the next monotonic microsecond tick, never less than or
// equal to the previous tick it returned.
func (c *Clock) NowMicros() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMicro()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}
