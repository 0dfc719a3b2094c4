package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Suppression rules, in evaluation order.
const (
	RuleGatewayEdge = "gateway_edge" // same destination and content
	RuleIdentical   = "identical"    // same admin session and content
	RuleCooldown    = "cooldown"     // any SMS from the same admin session
)

// Reservation is one key a send must claim for Window.
type Reservation struct {
	Rule   string
	Key    string
	Window time.Duration
}

// SuppressionStore atomically claims every reservation or none. When a key
// is still held it returns that reservation and records nothing.
type SuppressionStore interface {
	Reserve(ctx context.Context, now time.Time, rs []Reservation) (blocked *Reservation, err error)
	Prune(ctx context.Context, now time.Time) (int, error)
}

// SuppressionWindows configures the three rules. A zero window disables its
// rule.
type SuppressionWindows struct {
	Dedupe    time.Duration
	Identical time.Duration
	Cooldown  time.Duration
	Retention time.Duration
}

// SendKey identifies one SMS attempt.
type SendKey struct {
	Destination string
	Content     string
	SessionID   string
}

// Suppressor rejects repeated SMS sends. It is owned by the dispatcher and
// shared by every admin request in the process (or across processes with the
// Redis store).
type Suppressor struct {
	store SuppressionStore
	win   SuppressionWindows
	now   func() time.Time
}

// NewSuppressor wraps store with the given windows.
func NewSuppressor(store SuppressionStore, win SuppressionWindows) *Suppressor {
	if win.Retention <= 0 {
		win.Retention = 5 * time.Minute
	}
	return &Suppressor{store: store, win: win, now: time.Now}
}

// Check claims k. A repeat inside any window fails with ErrDuplicateSuppressed
// and claims nothing.
func (s *Suppressor) Check(ctx context.Context, k SendKey) error {
	body := digest(strings.TrimSpace(k.Content))
	rs := make([]Reservation, 0, 3)
	if s.win.Dedupe > 0 {
		rs = append(rs, Reservation{Rule: RuleGatewayEdge, Key: "edge:" + k.Destination + ":" + body, Window: s.win.Dedupe})
	}
	if s.win.Identical > 0 && k.SessionID != "" {
		rs = append(rs, Reservation{Rule: RuleIdentical, Key: "same:" + k.SessionID + ":" + body, Window: s.win.Identical})
	}
	if s.win.Cooldown > 0 && k.SessionID != "" {
		rs = append(rs, Reservation{Rule: RuleCooldown, Key: "cool:" + k.SessionID, Window: s.win.Cooldown})
	}
	if len(rs) == 0 {
		return nil
	}

	blocked, err := s.store.Reserve(ctx, s.now(), rs)
	if err != nil {
		return err
	}
	if blocked != nil {
		return &Error{
			Kind:   ErrDuplicateSuppressed,
			Op:     "SendWithSMSFallback",
			Reason: "please wait before resending",
			Err:    fmt.Errorf("%s rule (%s)", blocked.Rule, blocked.Window),
		}
	}
	return nil
}

// Run prunes the store every interval until ctx ends.
func (s *Suppressor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.store.Prune(ctx, s.now()); err != nil {
				log.Warn().Err(err).Msg("suppression prune failed")
			} else if n > 0 {
				log.Debug().Int("pruned", n).Msg("suppression entries pruned")
			}
		}
	}
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:12])
}

// MemoryStore keeps reservations in a mutex-guarded map.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time // key -> last claimed at
	retention time.Duration
	lastPrune time.Time
}

// NewMemoryStore drops entries older than retention when pruning.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &MemoryStore{entries: make(map[string]time.Time), retention: retention}
}

// Reserve implements SuppressionStore.
func (m *MemoryStore) Reserve(_ context.Context, now time.Time, rs []Reservation) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// opportunistic GC, at most once per retention/10
	if now.Sub(m.lastPrune) >= m.retention/10 {
		m.pruneLocked(now)
	}
	for i := range rs {
		if at, ok := m.entries[rs[i].Key]; ok && now.Sub(at) < rs[i].Window {
			r := rs[i]
			return &r, nil
		}
	}
	for _, r := range rs {
		m.entries[r.Key] = now
	}
	return nil, nil
}

// Prune implements SuppressionStore.
func (m *MemoryStore) Prune(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(now), nil
}

func (m *MemoryStore) pruneLocked(now time.Time) int {
	m.lastPrune = now
	n := 0
	for k, at := range m.entries {
		if now.Sub(at) > m.retention {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len reports tracked keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RedisStore shares reservations across processes. Each key is claimed with
// SET NX PX so expiry is the window itself and Prune has nothing to do.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore uses rdb with keys under prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "smsbridge:suppress:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Reserve implements SuppressionStore. Keys claimed before a blocked one are
// released so a rejected send leaves no trace.
func (r *RedisStore) Reserve(ctx context.Context, now time.Time, rs []Reservation) (*Reservation, error) {
	claimed := make([]string, 0, len(rs))
	release := func() {
		if len(claimed) > 0 {
			_ = r.rdb.Del(ctx, claimed...).Err()
		}
	}
	for i := range rs {
		key := r.prefix + rs[i].Key
		ok, err := r.rdb.SetNX(ctx, key, now.UnixMilli(), rs[i].Window).Result()
		if err != nil {
			release()
			return nil, fmt.Errorf("reserve %s: %w", rs[i].Rule, err)
		}
		if !ok {
			release()
			blocked := rs[i]
			return &blocked, nil
		}
		claimed = append(claimed, key)
	}
	return nil, nil
}

// Prune implements SuppressionStore; Redis expires keys on its own.
func (r *RedisStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }
