package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/smsbridge-chat/internal/notifier"
)

// ReconnectDelay is the fixed pause before a dropped stream or socket is
// reopened. There is no backoff.
const ReconnectDelay = 3 * time.Second

// Strategy selects how a watcher learns about changes.
type Strategy string

const (
	StrategyPoll   Strategy = "poll"
	StrategyStream Strategy = "stream"
	StrategyWS     Strategy = "ws"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyPoll, StrategyStream, StrategyWS:
		return st, nil
	}
	return "", fmt.Errorf("unknown strategy %q (want poll, stream or ws)", s)
}

// frameSource yields the raw frames of one open connection.
type frameSource interface {
	Next() ([]byte, error)
	Close() error
}

type dialFunc func(ctx context.Context) (frameSource, error)

// Remote is a ChangeNotifier backed by one of the server's push endpoints.
// Each subscription holds its own connection, reconnects after
// ReconnectDelay when it drops, and reports drops as error events.
// Malformed frames are logged and skipped.
type Remote struct {
	dial  dialFunc
	delay time.Duration

	mu     sync.Mutex
	subs   map[*remoteSub]struct{}
	closed bool
}

// NewStream consumes GET /stream as NDJSON.
func NewStream(c *Client) *Remote { return newRemote(c.dialStream) }

// NewWebSocket consumes GET /ws.
func NewWebSocket(c *Client) *Remote { return newRemote(c.dialWebSocket) }

func newRemote(dial dialFunc) *Remote {
	return &Remote{dial: dial, delay: ReconnectDelay, subs: make(map[*remoteSub]struct{})}
}

type remoteSub struct {
	cancel context.CancelFunc
	done   chan struct{}
	inCall atomic.Bool
}

// Unsubscribe stops the connection loop and waits for it, unless a
// callback is running: the caller may be that callback.
func (s *remoteSub) Unsubscribe() {
	s.cancel()
	if s.inCall.Load() {
		return
	}
	<-s.done
}

func (s *remoteSub) guard(fn notifier.Listener) notifier.Listener {
	return func(ev notifier.Event) {
		s.inCall.Store(true)
		defer s.inCall.Store(false)
		fn(ev)
	}
}

// Subscribe implements notifier.ChangeNotifier. The server already scopes
// the channel to the session; subject filters again on this side.
func (r *Remote) Subscribe(ctx context.Context, subject notifier.Subject, fn notifier.Listener) (notifier.Subscription, error) {
	if fn == nil {
		return nil, errors.New("nil listener")
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, notifier.ErrClosed
	}
	cctx, cancel := context.WithCancel(ctx)
	s := &remoteSub{cancel: cancel, done: make(chan struct{})}
	r.subs[s] = struct{}{}
	r.mu.Unlock()

	go func() {
		defer close(s.done)
		defer func() {
			r.mu.Lock()
			delete(r.subs, s)
			r.mu.Unlock()
		}()
		r.run(cctx, subject, s.guard(fn))
	}()
	return s, nil
}

func (r *Remote) run(ctx context.Context, subject notifier.Subject, fn notifier.Listener) {
	for {
		src, err := r.dial(ctx)
		if err == nil {
			err = consume(ctx, src, subject, fn)
			_ = src.Close()
		}
		if ctx.Err() != nil {
			return
		}
		fn(notifier.Event{Type: notifier.EventError, At: time.Now().UTC(), Error: disconnectReason(err)})
		log.Debug().Err(err).Dur("retry_in", r.delay).Msg("realtime connection lost")

		t := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func disconnectReason(err error) string {
	if err == nil || errors.Is(err, io.EOF) {
		return "connection closed by server"
	}
	return err.Error()
}

func consume(ctx context.Context, src frameSource, subject notifier.Subject, fn notifier.Listener) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := src.Next()
		if err != nil {
			return err
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		ev, err := notifier.DecodeEvent(data)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}
		if subject.Matches(ev) {
			fn(ev)
		}
	}
}

// Close stops every subscription and waits for their goroutines.
func (r *Remote) Close() error {
	r.mu.Lock()
	r.closed = true
	subs := make([]*remoteSub, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
	return nil
}

// =============================================================================
// NDJSON stream
// =============================================================================

type lineSource struct {
	sc   *bufio.Scanner
	body io.ReadCloser
}

func (l *lineSource) Next() ([]byte, error) {
	if l.sc.Scan() {
		return l.sc.Bytes(), nil
	}
	if err := l.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (l *lineSource) Close() error { return l.body.Close() }

func (c *Client) dialStream(ctx context.Context) (frameSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	// The request timeout would cut a healthy stream; ctx bounds it instead.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		return nil, apiErr
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &lineSource{sc: sc, body: resp.Body}, nil
}

// =============================================================================
// WebSocket
// =============================================================================

type wsSource struct {
	conn *websocket.Conn
	stop func() bool

	mu     sync.Mutex
	closed bool
}

func (w *wsSource) Next() ([]byte, error) {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}

func (w *wsSource) Close() error {
	w.stop()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.conn.Close()
}

// wsURL rewrites the API base to the ws scheme and appends /ws?token=.
func (c *Client) wsURL() (string, error) {
	endpoint := c.baseURL + "/ws"
	endpoint = strings.Replace(endpoint, "http://", "ws://", 1)
	endpoint = strings.Replace(endpoint, "https://", "wss://", 1)

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", c.Token())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) dialWebSocket(ctx context.Context) (frameSource, error) {
	endpoint, err := c.wsURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			apiErr := &APIError{Status: resp.StatusCode}
			if resp.Body != nil {
				_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
			}
			return nil, apiErr
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	src := &wsSource{conn: conn}
	src.stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	return src, nil
}
