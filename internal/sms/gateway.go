// Package sms talks to the external SMS gateway used to reach users who are
// not watching the web chat.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/config"
)

// Result is the gateway's verdict on one send.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Gateway sends a text to a phone number. Implementations never return a Go
// error for a rejected send; rejection is a Result with Success false.
type Gateway interface {
	Send(ctx context.Context, to, text string) Result
}

// ErrNotConfigured is reported when no API key is set.
var ErrNotConfigured = errors.New("SMS gateway not configured")

// MistaClient posts JSON to the Mista SMS API.
type MistaClient struct {
	endpoint   string
	apiKey     string
	senderID   string
	httpClient *http.Client
}

// NewMistaClient builds a client from the SMS config section.
func NewMistaClient(cfg config.SMSConfig) *MistaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MistaClient{
		endpoint:   cfg.APIURL,
		apiKey:     cfg.APIKey,
		senderID:   cfg.SenderID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
	From    string `json:"from"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	ID        string `json:"id"`
}

// Send implements Gateway.
func (c *MistaClient) Send(ctx context.Context, to, text string) Result {
	if c.apiKey == "" {
		return Result{Error: ErrNotConfigured.Error()}
	}

	body, err := json.Marshal(sendRequest{To: to, Message: text, From: c.senderID})
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Error: fmt.Sprintf("gateway unreachable: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{Error: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Error: fmt.Sprintf("gateway error: %d - %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var out sendResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return Result{Error: fmt.Sprintf("decode response: %v", err)}
		}
	}
	id := out.MessageID
	if id == "" {
		id = out.ID
	}
	return Result{Success: true, MessageID: id}
}

// FormatMessage wraps an admin reply with the signature and the link back to
// the web chat.
func FormatMessage(content, websiteURL string) string {
	return fmt.Sprintf("Hilbert: %s\n\nThis is the only way to reach me. Reply at: %s\n\nEnter your MTN number to chat with me.",
		strings.TrimSpace(content), strings.TrimRight(websiteURL, "/"))
}
