package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/reducer"
)

// HeartbeatInterval is how often a watching client refreshes its presence.
const HeartbeatInterval = 5 * time.Second

// Watcher keeps a reducer.State in sync for one session. It subscribes to
// Notifier, seeds the state from a snapshot, and heartbeats the caller's
// presence until ctx ends, then reports the caller offline.
type Watcher struct {
	Client   *Client
	Notifier notifier.ChangeNotifier
	State    *reducer.State
	Subject  notifier.Subject

	// Heartbeat defaults to HeartbeatInterval.
	Heartbeat time.Duration
	// OnReady, if set, runs once the snapshot is applied.
	OnReady func()
	// OnEvent, if set, runs after each event is applied. changed reports
	// whether the state moved.
	OnEvent func(ev notifier.Event, changed bool)
}

// Run blocks until ctx is cancelled. Only the initial snapshot and
// subscription can fail it; later transport trouble arrives as error events.
// Every subscribed frame (each connect or reconnect of a push channel)
// triggers a resync, covering whatever was committed while disconnected.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Client == nil || w.Notifier == nil || w.State == nil {
		return errors.New("watcher: client, notifier and state are required")
	}

	var (
		mu    sync.Mutex
		ready bool
	)
	resync := make(chan struct{}, 1)
	sub, err := w.Notifier.Subscribe(ctx, w.Subject, func(ev notifier.Event) {
		if ev.Type == notifier.EventSubscribed {
			select {
			case resync <- struct{}{}:
			default:
			}
		}
		mu.Lock()
		defer mu.Unlock()
		changed := w.State.Apply(ev)
		if ready && w.OnEvent != nil {
			w.OnEvent(ev, changed)
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	snap, err := w.Client.Snapshot(ctx, w.Subject)
	if err != nil {
		return err
	}
	mu.Lock()
	w.State.ApplySnapshot(snap.Messages)
	for _, p := range snap.Presence {
		w.State.ApplyPresence(p)
	}
	if w.OnReady != nil {
		w.OnReady()
	}
	ready = true
	mu.Unlock()

	every := w.Heartbeat
	if every <= 0 {
		every = HeartbeatInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	w.beat(ctx, true)
	for {
		select {
		case <-ctx.Done():
			// Best effort: the server may already be gone.
			offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			w.beat(offCtx, false)
			cancel()
			return nil
		case <-ticker.C:
			w.beat(ctx, true)
		case <-resync:
			snap, err := w.Client.Snapshot(ctx, w.Subject)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("resync failed")
				}
				continue
			}
			mu.Lock()
			w.replay(snap)
			mu.Unlock()
		}
	}
}

// replay merges a snapshot, reporting what it changed as if it had arrived
// as events.
func (w *Watcher) replay(snap notifier.Snapshot) {
	now := time.Now().UTC()
	for i := range snap.Messages {
		m := snap.Messages[i]
		if w.State.ApplyInbound(m) && w.OnEvent != nil {
			w.OnEvent(notifier.Event{Type: notifier.EventMessage, At: now, Message: &m}, true)
		}
	}
	for i := range snap.Presence {
		p := snap.Presence[i]
		if w.State.ApplyPresence(p) && w.OnEvent != nil {
			w.OnEvent(notifier.Event{Type: notifier.EventPresence, At: now, Presence: &p}, true)
		}
	}
}

func (w *Watcher) beat(ctx context.Context, online bool) {
	if _, err := w.Client.SetPresence(ctx, PresenceUpdate{IsOnline: online}); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Bool("online", online).Msg("presence heartbeat failed")
	}
}
