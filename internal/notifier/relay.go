package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/smsbridge-chat/internal/observability"
)

// ErrSlowConsumer closes a channel whose queue overflowed.
var ErrSlowConsumer = errors.New("client too slow")

// MinQueueSize fits the connected and subscribed frames Open queues before
// any reader can drain them.
const MinQueueSize = 2

// RelayOptions tunes per-channel behavior.
type RelayOptions struct {
	Heartbeat time.Duration // default 30s
	QueueSize int           // default 64, raised to MinQueueSize
}

// Relay multiplexes one upstream notifier into independent per-client
// channels. Each channel has its own bounded queue: a consumer that stops
// reading is disconnected instead of stalling the upstream or its peers.
type Relay struct {
	upstream ChangeNotifier
	opts     RelayOptions

	mu       sync.Mutex
	channels map[*Channel]struct{}
	closed   bool
}

// NewRelay wraps upstream. Zero options get defaults.
func NewRelay(upstream ChangeNotifier, opts RelayOptions) *Relay {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	switch {
	case opts.QueueSize <= 0:
		opts.QueueSize = 64
	case opts.QueueSize < MinQueueSize:
		opts.QueueSize = MinQueueSize
	}
	return &Relay{upstream: upstream, opts: opts, channels: make(map[*Channel]struct{})}
}

// Channel is one client's event stream. The first frame is always
// connected, followed by subscribed (or error when the upstream
// subscription failed, in which case only heartbeats follow).
type Channel struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

// Open starts a channel for subject. It lives until ctx ends, Close is
// called, or the consumer falls behind by more than the queue size.
func (r *Relay) Open(ctx context.Context, subject Subject) (*Channel, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	cctx, cancel := context.WithCancel(ctx)
	ch := &Channel{
		events: make(chan Event, r.opts.QueueSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.channels[ch] = struct{}{}
	r.mu.Unlock()
	observability.StreamOpened()

	ch.offer(Event{Type: EventConnected, At: time.Now().UTC()})

	sub, err := r.upstream.Subscribe(cctx, subject, ch.offer)
	if err != nil {
		log.Warn().Err(err).Str("profile_id", subject.ProfileID).Msg("relay upstream subscribe failed")
		ch.offer(Event{Type: EventError, At: time.Now().UTC(), Error: err.Error()})
	} else {
		ch.offer(Event{Type: EventSubscribed, At: time.Now().UTC()})
	}

	go r.run(cctx, ch, sub)
	return ch, nil
}

func (r *Relay) run(ctx context.Context, ch *Channel, sub Subscription) {
	ticker := time.NewTicker(r.opts.Heartbeat)
	defer func() {
		ticker.Stop()
		if sub != nil {
			sub.Unsubscribe()
		}
		ch.shutdown(ctx.Err())
		r.mu.Lock()
		delete(r.channels, ch)
		r.mu.Unlock()
		observability.StreamClosed()
		close(ch.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			ch.offer(Event{Type: EventHeartbeat, At: t.UTC()})
		}
	}
}

// offer enqueues without blocking. A full queue ends the channel.
func (c *Channel) offer(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
		observability.EventRelayed(string(ev.Type))
	default:
		c.closed = true
		c.err = ErrSlowConsumer
		close(c.events)
		c.cancel()
		observability.StreamOverflowed()
	}
}

func (c *Channel) shutdown(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.err == nil {
		c.err = cause
	}
	close(c.events)
}

// Events yields frames until the channel ends; it is then closed.
func (c *Channel) Events() <-chan Event { return c.events }

// Done is closed once the channel released its upstream subscription.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err reports why the channel ended: ErrSlowConsumer, context.Canceled or
// nil while still open.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the channel.
func (c *Channel) Close() { c.cancel() }

// Subscribe adapts a channel to the ChangeNotifier contract: events are
// pumped into fn on a dedicated goroutine. Handshake and heartbeat frames
// are dropped; error frames reach fn.
func (r *Relay) Subscribe(ctx context.Context, subject Subject, fn Listener) (Subscription, error) {
	ch, err := r.Open(ctx, subject)
	if err != nil {
		return nil, err
	}
	go func() {
		for ev := range ch.Events() {
			if ev.IsControl() && ev.Type != EventError {
				continue
			}
			deliver(fn, ev)
		}
	}()
	return channelSub{ch}, nil
}

type channelSub struct{ ch *Channel }

func (s channelSub) Unsubscribe() { s.ch.Close() }

// Len reports open channels.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Close ends every channel and refuses new ones. It does not close upstream.
func (r *Relay) Close() error {
	r.mu.Lock()
	r.closed = true
	chans := make([]*Channel, 0, len(r.channels))
	for ch := range r.channels {
		chans = append(chans, ch)
	}
	r.mu.Unlock()
	for _, ch := range chans {
		ch.Close()
	}
	return nil
}
