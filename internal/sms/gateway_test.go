package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/config"
)

func newClient(url, key string) *MistaClient {
	return NewMistaClient(config.SMSConfig{APIURL: url, APIKey: key, SenderID: "LuxuryChat", Timeout: time.Second})
}

func TestMistaClient_Send_Success(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer k1" {
			t.Errorf("Authorization=%q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message_id":"mx-1"}`))
	}))
	defer srv.Close()

	res := newClient(srv.URL, "k1").Send(context.Background(), "+250781111111", "hi")
	if !res.Success || res.MessageID != "mx-1" || res.Error != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got.To != "+250781111111" || got.Message != "hi" || got.From != "LuxuryChat" {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestMistaClient_Send_FallsBackToID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"legacy-7"}`))
	}))
	defer srv.Close()

	if res := newClient(srv.URL, "k").Send(context.Background(), "+1", "x"); res.MessageID != "legacy-7" {
		t.Fatalf("want legacy id, got %+v", res)
	}
}

func TestMistaClient_Send_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	res := newClient(srv.URL, "k").Send(context.Background(), "+1", "x")
	if res.Success || !strings.Contains(res.Error, "402") || !strings.Contains(res.Error, "insufficient balance") {
		t.Fatalf("unexpected result for 402: %+v", res)
	}

	if res := newClient(srv.URL, "").Send(context.Background(), "+1", "x"); res.Success || res.Error != ErrNotConfigured.Error() {
		t.Fatalf("unexpected result without key: %+v", res)
	}

	if res := newClient("http://127.0.0.1:1", "k").Send(context.Background(), "+1", "x"); res.Success || res.Error == "" {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}

func TestFormatMessage(t *testing.T) {
	got := FormatMessage("  see you soon ", "https://chat.example.com/")
	want := "Hilbert: see you soon\n\nThis is the only way to reach me. Reply at: https://chat.example.com\n\nEnter your MTN number to chat with me."
	if got != want {
		t.Fatalf("FormatMessage:\n got %q\nwant %q", got, want)
	}
}
