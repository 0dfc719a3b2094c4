package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Listener receives events. Listeners registered on a Feed run on the
// publisher's goroutine and must not block. A listener may release its own
// subscription; Unsubscribe then returns without waiting for the loop.
type Listener func(Event)

// Subscription releases a listener. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// ChangeNotifier is the contract shared by all three delivery strategies.
// Subscribe registers fn for events matching subject until the returned
// subscription is released or ctx ends.
type ChangeNotifier interface {
	Subscribe(ctx context.Context, subject Subject, fn Listener) (Subscription, error)
	Close() error
}

// ErrClosed is returned when subscribing to a closed notifier.
var ErrClosed = errors.New("notifier closed")

// Feed is the in-process change feed. Store hooks publish into it; every
// subscriber whose subject matches gets the event, in publish order.
type Feed struct {
	mu     sync.RWMutex
	subs   map[uint64]*feedSub
	nextID uint64
	closed bool
	now    func() time.Time
}

type feedSub struct {
	id      uint64
	subject Subject
	fn      Listener
	feed    *Feed
	stop    func() bool
	once    sync.Once
}

// NewFeed returns an open, empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]*feedSub), now: time.Now}
}

// Subscribe implements ChangeNotifier.
func (f *Feed) Subscribe(ctx context.Context, subject Subject, fn Listener) (Subscription, error) {
	if fn == nil {
		return nil, errors.New("nil listener")
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	f.nextID++
	s := &feedSub{id: f.nextID, subject: subject, fn: fn, feed: f}
	f.subs[s.id] = s
	f.mu.Unlock()

	if ctx != nil {
		s.stop = context.AfterFunc(ctx, s.Unsubscribe)
	}
	return s, nil
}

func (s *feedSub) Unsubscribe() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
	})
}

// Publish fans ev out to matching listeners. A panicking listener is logged
// and skipped so one bad consumer cannot break the publisher.
func (f *Feed) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = f.now().UTC()
	}
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return
	}
	targets := make([]*feedSub, 0, len(f.subs))
	for _, s := range f.subs {
		if s.subject.Matches(ev) {
			targets = append(targets, s)
		}
	}
	f.mu.RUnlock()

	for _, s := range targets {
		deliver(s.fn, ev)
	}
}

func deliver(fn Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("event", string(ev.Type)).Msg("notifier listener panicked")
		}
	}()
	fn(ev)
}

// Len reports the number of live subscriptions.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close drops every subscription; later publishes are ignored.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.subs = make(map[uint64]*feedSub)
	return nil
}
