package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tbourn/smsbridge-chat/internal/client"
)

// savedSession is what login leaves on disk for later commands.
type savedSession struct {
	Server         string `json:"server"`
	Token          string `json:"token"`
	ProfileID      string `json:"profile_id"`
	PhoneNumber    string `json:"phone_number"`
	IsAdmin        bool   `json:"is_admin"`
	AdminProfileID string `json:"admin_profile_id,omitempty"`
}

var errNoSession = errors.New("not logged in (run `smsbridge login <phone>` first)")

func defaultSessionPath() string {
	if p := os.Getenv("SMSBRIDGE_SESSION"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".smsbridge-session.json"
	}
	return filepath.Join(dir, "smsbridge", "session.json")
}

func loadSession(path string) (*savedSession, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s savedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	if s.Token == "" {
		return nil, errNoSession
	}
	return &s, nil
}

// saveSession writes the token with owner-only permissions.
func saveSession(path string, c *client.Client, auth *client.Auth) error {
	s := savedSession{
		Server:         c.BaseURL(),
		Token:          auth.Token,
		ProfileID:      auth.Session.ProfileID,
		PhoneNumber:    auth.Session.PhoneNumber,
		IsAdmin:        auth.IsAdmin,
		AdminProfileID: auth.AdminProfileID,
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
