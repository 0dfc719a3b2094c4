package repo

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing UTC instants at microsecond
// resolution, the finest precision both SQLite and Postgres round-trip.
// Two appends in the same process never share a creation timestamp, so
// creation order and insertion order agree.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock builds a clock over the given wall-time source.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns the next instant; it is safe for concurrent use.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// StoreClock stamps every message the store creates.
var StoreClock = NewClock(time.Now)
