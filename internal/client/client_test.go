package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("SMSBRIDGE_URL", "")
	t.Setenv("SMSBRIDGE_CLIENT_TIMEOUT", "")
	c := New("")
	assert.Equal(t, "http://localhost:8080/api/v1", c.BaseURL())
	assert.Equal(t, 15*time.Second, c.httpClient.Timeout)

	t.Setenv("SMSBRIDGE_URL", "https://chat.example.com/api/v1/")
	t.Setenv("SMSBRIDGE_CLIENT_TIMEOUT", "2s")
	c = New("")
	assert.Equal(t, "https://chat.example.com/api/v1", c.BaseURL())
	assert.Equal(t, 2*time.Second, c.httpClient.Timeout)
}

func TestLogin_InstallsToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "+250781111111", body["phone_number"])
			writeJSON(w, http.StatusOK, Auth{Token: "tok-1", Session: domain.Session{ProfileID: "u1"}})
		case "/auth/me":
			writeJSON(w, http.StatusOK, Me{Session: domain.Session{ProfileID: "u1"}, AdminProfileID: "a1", PollIntervalMS: 1500, StreamEnabled: true})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	auth, err := c.Login(context.Background(), "+250781111111")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", auth.Token)
	assert.Equal(t, "tok-1", c.Token())

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth.Load())
	assert.Equal(t, 1500*time.Millisecond, me.PollInterval())
	assert.Equal(t, notifier.Subject{ProfileID: "u1", AdminProfileID: "a1"}, me.Subject())
}

func TestExecute_DecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"request_id": "rid-1",
			"code":       "duplicate_suppressed",
			"message":    "please wait before resending",
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).SendSMS(context.Background(), "u1", "hi")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "duplicate_suppressed", apiErr.Code)
	assert.Equal(t, "rid-1", apiErr.RequestID)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.Contains(t, err.Error(), "please wait before resending")
}

func TestExecute_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).Execute(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Contains(t, err.Error(), "Bad Gateway")
}

func TestMessages_RevalidatesWithETag(t *testing.T) {
	var full, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("profile_id"))
		if r.Header.Get("If-None-Match") == `W/"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		full.Add(1)
		w.Header().Set("ETag", `W/"v1"`)
		writeJSON(w, http.StatusOK, Conversation{
			ProfileID:   "u1",
			Messages:    []domain.Message{{ID: "m1", ProfileID: "u1", Sender: domain.RoleUser, Content: "hello"}},
			UnreadCount: 1,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	first, err := c.Messages(context.Background(), "u1", false)
	require.NoError(t, err)
	second, err := c.Messages(context.Background(), "u1", false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), full.Load())
	assert.Equal(t, int32(1), notModified.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, second.UnreadCount)
}

func TestSend_IdempotencyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("Idempotency-Key"))
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": domain.Message{ID: "m1", ProfileID: "u1", Sender: domain.RoleUser, Content: "hi"},
		})
	}))
	defer srv.Close()

	m, err := New(srv.URL).Send(context.Background(), "", "hi", "key-123")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"poll": StrategyPoll, " Stream ": StrategyStream, "WS": StrategyWS} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrategy("carrier-pigeon")
	assert.Error(t, err)
}

func TestSnapshot_UserSynthesizesAdminPresence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/messages":
			writeJSON(w, http.StatusOK, Conversation{ProfileID: "u1", Messages: []domain.Message{{ID: "m1", ProfileID: "u1"}}})
		case "/presence":
			writeJSON(w, http.StatusOK, PresenceList{Online: []string{"a1", "u2"}, Typing: []string{"a1"}})
		}
	}))
	defer srv.Close()

	snap, err := New(srv.URL).Snapshot(context.Background(), notifier.Subject{ProfileID: "u1", AdminProfileID: "a1"})
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Presence, 1)
	p := snap.Presence[0]
	assert.Equal(t, "a1", p.ProfileID)
	assert.True(t, p.IsOnline)
	assert.True(t, p.IsTyping)
	require.NotNil(t, p.TypingFor)
	assert.Equal(t, "u1", *p.TypingFor)
	assert.WithinDuration(t, time.Now(), p.LastSeen, 5*time.Second)
}

func TestSnapshot_AdminReportsOfflineProfiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/conversations", r.URL.Path)
		writeJSON(w, http.StatusOK, Conversations{Conversations: []domain.Conversation{
			{Profile: domain.Profile{ID: "u1"}, Messages: []domain.Message{{ID: "m1", ProfileID: "u1"}}, IsOnline: true},
			{Profile: domain.Profile{ID: "u2"}, Messages: []domain.Message{{ID: "m2", ProfileID: "u2"}}},
		}})
	}))
	defer srv.Close()

	snap, err := New(srv.URL).Snapshot(context.Background(), notifier.Subject{ProfileID: "a1", Admin: true})
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 2)
	require.Len(t, snap.Presence, 2)
	assert.True(t, snap.Presence[0].IsOnline)
	assert.False(t, snap.Presence[1].IsOnline)
}
