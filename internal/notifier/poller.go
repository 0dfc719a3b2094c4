package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

// Snapshot is the full state a poll returns for a subject.
type Snapshot struct {
	Messages []domain.Message
	Presence []domain.Presence
}

// SnapshotFunc fetches the current state visible to subject.
type SnapshotFunc func(ctx context.Context, subject Subject) (Snapshot, error)

// Poller is the pull strategy. Each tick fetches a full snapshot and emits
// every message and presence row as an event; consumers dedupe by id, so
// re-emitting unchanged rows is harmless. Fetch failures surface as error
// events and polling continues.
type Poller struct {
	fetch    SnapshotFunc
	interval time.Duration

	mu     sync.Mutex
	subs   map[*pollSub]struct{}
	closed bool
}

// NewPoller polls fetch every interval (default 1s).
func NewPoller(fetch SnapshotFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{fetch: fetch, interval: interval, subs: make(map[*pollSub]struct{})}
}

type pollSub struct {
	cancel context.CancelFunc
	done   chan struct{}
	inCall atomic.Bool
}

// Unsubscribe stops the loop and waits for it to exit. While a callback is
// running it only stops the loop: the caller may be that callback.
func (s *pollSub) Unsubscribe() {
	s.cancel()
	if s.inCall.Load() {
		return
	}
	<-s.done
}

func (s *pollSub) guard(fn Listener) Listener {
	return func(ev Event) {
		s.inCall.Store(true)
		defer s.inCall.Store(false)
		fn(ev)
	}
}

// Subscribe implements ChangeNotifier. The first fetch happens immediately.
func (p *Poller) Subscribe(ctx context.Context, subject Subject, fn Listener) (Subscription, error) {
	if fn == nil {
		return nil, errors.New("nil listener")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	cctx, cancel := context.WithCancel(ctx)
	s := &pollSub{cancel: cancel, done: make(chan struct{})}
	p.subs[s] = struct{}{}
	p.mu.Unlock()
	fn = s.guard(fn)

	go func() {
		defer close(s.done)
		defer func() {
			p.mu.Lock()
			delete(p.subs, s)
			p.mu.Unlock()
		}()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			p.poll(cctx, subject, fn)
			select {
			case <-cctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return s, nil
}

func (p *Poller) poll(ctx context.Context, subject Subject, fn Listener) {
	snap, err := p.fetch(ctx, subject)
	if ctx.Err() != nil {
		return
	}
	now := time.Now().UTC()
	if err != nil {
		deliver(fn, Event{Type: EventError, At: now, Error: err.Error()})
		return
	}
	for i := range snap.Messages {
		if ctx.Err() != nil {
			return
		}
		m := snap.Messages[i]
		deliver(fn, Event{Type: EventMessage, At: now, Message: &m})
	}
	for i := range snap.Presence {
		if ctx.Err() != nil {
			return
		}
		pr := snap.Presence[i]
		deliver(fn, Event{Type: EventPresence, At: now, Presence: &pr})
	}
}

// Close stops every poll loop and waits for them to exit.
func (p *Poller) Close() error {
	p.mu.Lock()
	p.closed = true
	subs := make([]*pollSub, 0, len(p.subs))
	for s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
	return nil
}
