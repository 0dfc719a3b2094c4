package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
)

// scriptedSource replays frames, then fails with err.
type scriptedSource struct {
	frames [][]byte
	err    error
}

func (s *scriptedSource) Next() ([]byte, error) {
	if len(s.frames) == 0 {
		return nil, s.err
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *scriptedSource) Close() error { return nil }

func frame(t *testing.T, ev notifier.Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func msgEvent(id, profileID string) notifier.Event {
	return notifier.Event{
		Type: notifier.EventMessage,
		At:   time.Now().UTC(),
		Message: &domain.Message{
			ID: id, ProfileID: profileID, Sender: domain.RoleUser,
			Content: "x", CreatedAt: time.Now().UTC(),
		},
	}
}

type collector struct {
	mu  sync.Mutex
	evs []notifier.Event
}

func (c *collector) add(ev notifier.Event) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func (c *collector) snapshot() []notifier.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notifier.Event(nil), c.evs...)
}

func TestRemote_DropsMalformedAndFiltersBySubject(t *testing.T) {
	var dials atomic.Int32
	r := newRemote(func(ctx context.Context) (frameSource, error) {
		if dials.Add(1) > 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &scriptedSource{
			frames: [][]byte{
				[]byte(`{"type":"connected","at":"2026-01-01T00:00:00Z"}`),
				[]byte(`{not json`),
				[]byte(`{"type":"message","message":{"id":"","profile_id":"u1"}}`),
				[]byte(`   `),
				frame(t, msgEvent("m-other", "u2")),
				frame(t, msgEvent("m1", "u1")),
			},
			err: io.EOF,
		}, nil
	})
	r.delay = 10 * time.Millisecond

	var got collector
	sub, err := r.Subscribe(context.Background(), notifier.Subject{ProfileID: "u1"}, got.add)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(got.snapshot()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	sub.Unsubscribe()

	evs := got.snapshot()
	assert.Equal(t, notifier.EventConnected, evs[0].Type)
	assert.Equal(t, notifier.EventMessage, evs[1].Type)
	assert.Equal(t, "m1", evs[1].Message.ID)
	assert.Equal(t, notifier.EventError, evs[2].Type)
	assert.Equal(t, "connection closed by server", evs[2].Error)
}

func TestRemote_ReconnectsAfterDialFailure(t *testing.T) {
	var dials atomic.Int32
	r := newRemote(func(ctx context.Context) (frameSource, error) {
		switch dials.Add(1) {
		case 1:
			return nil, errors.New("connection refused")
		case 2:
			return &scriptedSource{frames: [][]byte{frame(t, msgEvent("m1", "u1"))}, err: io.EOF}, nil
		default:
			<-ctx.Done()
			return nil, ctx.Err()
		}
	})
	r.delay = 10 * time.Millisecond

	var got collector
	sub, err := r.Subscribe(context.Background(), notifier.Subject{Admin: true}, got.add)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool {
		for _, ev := range got.snapshot() {
			if ev.Type == notifier.EventMessage {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	evs := got.snapshot()
	assert.Equal(t, notifier.EventError, evs[0].Type)
	assert.Equal(t, "connection refused", evs[0].Error)
	assert.GreaterOrEqual(t, dials.Load(), int32(2))
}

func TestRemote_CloseStopsSubscriptions(t *testing.T) {
	r := newRemote(func(ctx context.Context) (frameSource, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := r.Subscribe(context.Background(), notifier.Subject{Admin: true}, func(notifier.Event) {})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	_, err = r.Subscribe(context.Background(), notifier.Subject{Admin: true}, func(notifier.Event) {})
	assert.ErrorIs(t, err, notifier.ErrClosed)
}

func TestWSURL(t *testing.T) {
	c := New("https://chat.example.com/api/v1")
	c.SetToken("a b")
	u, err := c.wsURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/api/v1/ws?token=a+b", u)
}

func TestRemote_ListenerCanUnsubscribeItself(t *testing.T) {
	r := newRemote(func(ctx context.Context) (frameSource, error) {
		return &scriptedSource{
			frames: [][]byte{
				frame(t, msgEvent("m1", "u1")),
				frame(t, msgEvent("m2", "u1")),
				frame(t, msgEvent("m3", "u1")),
			},
			err: io.EOF,
		}, nil
	})
	r.delay = 10 * time.Millisecond

	var (
		sub      notifier.Subscription
		calls    atomic.Int32
		ready    = make(chan struct{})
		returned = make(chan struct{})
	)
	sub, err := r.Subscribe(context.Background(), notifier.Subject{Admin: true}, func(notifier.Event) {
		<-ready
		if calls.Add(1) == 1 {
			sub.Unsubscribe()
			close(returned)
		}
	})
	require.NoError(t, err)
	close(ready)

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribe from inside the listener blocked")
	}

	closed := make(chan struct{})
	go func() {
		_ = r.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection loop did not exit")
	}
	assert.Equal(t, int32(1), calls.Load(), "frames delivered after unsubscribe")
}
