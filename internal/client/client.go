// Package client talks to the chat API over HTTP and turns its realtime
// endpoints back into notifier.ChangeNotifier implementations, so a watcher
// can feed a reducer.State from any of the three delivery strategies.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
)

// Client is an API client bound to one base URL and, after Login or
// Register, one session token.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
	etags map[string]cachedList
}

type cachedList struct {
	etag string
	list *Conversation
}

// New creates a client. If baseURL is empty, SMSBRIDGE_URL is used, falling
// back to the local default. SMSBRIDGE_CLIENT_TIMEOUT overrides the request
// timeout (default 15s); streaming requests are not subject to it.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("SMSBRIDGE_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080/api/v1"
	}

	timeout := 15 * time.Second
	if t := os.Getenv("SMSBRIDGE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		etags:      make(map[string]cachedList),
	}
}

// BaseURL returns the API root requests are resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken installs a session token obtained earlier.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status    int
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server error: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Auth is the result of Register and Login.
type Auth struct {
	Token          string          `json:"token"`
	Profile        *domain.Profile `json:"profile"`
	Session        domain.Session  `json:"session"`
	IsAdmin        bool            `json:"is_admin"`
	AdminProfileID string          `json:"admin_profile_id"`
}

// Me describes the current session and the server's realtime settings.
type Me struct {
	Session        domain.Session `json:"session"`
	AdminProfileID string         `json:"admin_profile_id"`
	PollIntervalMS int64          `json:"poll_interval_ms"`
	StreamEnabled  bool           `json:"stream_enabled"`
}

// PollInterval converts PollIntervalMS.
func (m *Me) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

// Subject is the listening identity for this session.
func (m *Me) Subject() notifier.Subject {
	return notifier.Subject{
		ProfileID:      m.Session.ProfileID,
		Admin:          m.Session.IsAdmin,
		AdminProfileID: m.AdminProfileID,
	}
}

// Conversation is one conversation snapshot.
type Conversation struct {
	ProfileID   string           `json:"profile_id"`
	Messages    []domain.Message `json:"messages"`
	UnreadCount int              `json:"unread_count"`
}

// Conversations is the admin overview.
type Conversations struct {
	Conversations []domain.Conversation `json:"conversations"`
	TotalUnread   int                   `json:"total_unread"`
}

// SMSOutcome reports what an SMS send did.
type SMSOutcome struct {
	Message      *domain.Message `json:"message"`
	Delivered    bool            `json:"delivered"`
	SMSAttempted bool            `json:"sms_attempted"`
	SMSError     string          `json:"sms_error,omitempty"`
	GatewayID    string          `json:"gateway_message_id,omitempty"`
}

// PresenceUpdate is the body of a heartbeat.
type PresenceUpdate struct {
	IsOnline  bool   `json:"is_online"`
	IsTyping  bool   `json:"is_typing"`
	TypingFor string `json:"typing_for,omitempty"`
}

// PresenceList holds the profiles currently online and typing toward the caller.
type PresenceList struct {
	Online []string `json:"online"`
	Typing []string `json:"typing"`
}

// Execute sends one JSON request and decodes a 2xx body into result. Non-2xx
// responses become *APIError. hdr may be nil.
func (c *Client) Execute(ctx context.Context, method, path string, body, result any, hdr http.Header) error {
	_, err := c.execute(ctx, method, path, body, result, hdr)
	return err
}

func (c *Client) execute(ctx context.Context, method, path string, body, result any, hdr http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotModified {
		return resp, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return resp, apiErr
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return resp, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp, nil
}

// =============================================================================
// Sessions
// =============================================================================

// Register creates a profile and installs the returned token.
func (c *Client) Register(ctx context.Context, phone, name string) (*Auth, error) {
	var out Auth
	body := map[string]string{"phone_number": phone, "name": name}
	if err := c.Execute(ctx, http.MethodPost, "/auth/register", body, &out, nil); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Login looks up an existing profile by phone and installs the token.
func (c *Client) Login(ctx context.Context, phone string) (*Auth, error) {
	var out Auth
	body := map[string]string{"phone_number": phone}
	if err := c.Execute(ctx, http.MethodPost, "/auth/login", body, &out, nil); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Me returns the current session.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var out Me
	if err := c.Execute(ctx, http.MethodGet, "/auth/me", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Messages
// =============================================================================

// Messages fetches one conversation. profileID may be empty for a user's own
// conversation. Responses are revalidated with If-None-Match; a 304 returns
// the cached copy.
func (c *Client) Messages(ctx context.Context, profileID string, desc bool) (*Conversation, error) {
	q := url.Values{}
	if profileID != "" {
		q.Set("profile_id", profileID)
	}
	if desc {
		q.Set("order", "desc")
	}
	path := "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	c.mu.RLock()
	cached, haveCached := c.etags[path]
	c.mu.RUnlock()
	hdr := http.Header{}
	if haveCached {
		hdr.Set("If-None-Match", cached.etag)
	}

	var out Conversation
	resp, err := c.execute(ctx, http.MethodGet, path, nil, &out, hdr)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotModified && haveCached {
		return cached.list, nil
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		c.mu.Lock()
		c.etags[path] = cachedList{etag: etag, list: &out}
		c.mu.Unlock()
	}
	return &out, nil
}

// Send appends a message without SMS. A non-empty idempotencyKey makes
// retries return the original message.
func (c *Client) Send(ctx context.Context, profileID, content, idempotencyKey string) (*domain.Message, error) {
	var hdr http.Header
	if idempotencyKey != "" {
		hdr = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var out struct {
		Message *domain.Message `json:"message"`
	}
	body := map[string]string{"profile_id": profileID, "content": content}
	if err := c.Execute(ctx, http.MethodPost, "/messages", body, &out, hdr); err != nil {
		return nil, err
	}
	return out.Message, nil
}

// SendSMS stores an admin message and forwards it by SMS. Admin only.
func (c *Client) SendSMS(ctx context.Context, profileID, content string) (*SMSOutcome, error) {
	var out SMSOutcome
	body := map[string]string{"profile_id": profileID, "content": content}
	if err := c.Execute(ctx, http.MethodPost, "/messages/sms", body, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkSeen marks messages seen by the caller and returns how many changed.
func (c *Client) MarkSeen(ctx context.Context, ids []string) (int, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	body := map[string][]string{"message_ids": ids}
	if err := c.Execute(ctx, http.MethodPost, "/messages/seen", body, &out, nil); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// AdminConversations returns every conversation with unread and presence
// flags. Admin only.
func (c *Client) AdminConversations(ctx context.Context) (*Conversations, error) {
	var out Conversations
	if err := c.Execute(ctx, http.MethodGet, "/admin/conversations", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// Presence
// =============================================================================

// SetPresence upserts the caller's presence. It reports whether the server
// applied the update (an older timestamp loses).
func (c *Client) SetPresence(ctx context.Context, u PresenceUpdate) (bool, error) {
	var out struct {
		Applied bool `json:"applied"`
	}
	if err := c.Execute(ctx, http.MethodPost, "/presence", u, &out, nil); err != nil {
		return false, err
	}
	return out.Applied, nil
}

// Presence lists who is online and who is typing toward the caller.
func (c *Client) Presence(ctx context.Context) (*PresenceList, error) {
	var out PresenceList
	if err := c.Execute(ctx, http.MethodGet, "/presence", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}
