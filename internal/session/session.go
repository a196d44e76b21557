// Package session keeps the logged-in user id in a server-side store.
// The browser only holds a signed cookie with the session id.
package session

import (
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	cookieName = "session"
	userIDKey  = "user_id"
)

// Options configures the filesystem store.
type Options struct {
	Dir    string // empty means os.TempDir()
	Key    []byte // empty means a random key, so sessions do not survive a restart
	MaxAge time.Duration
	Secure bool
}

func init() {
	// flash messages are stored as []any
	gob.Register([]any{})
}

// Manager reads and writes browser sessions.
type Manager struct {
	store *sessions.FilesystemStore
}

// NewManager creates the session store in opts.Dir.
func NewManager(opts Options) (*Manager, error) {
	key := opts.Key
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("session.NewManager -> failed to generate key")
		}
	}
	if opts.MaxAge < time.Second {
		return nil, fmt.Errorf("session.NewManager -> max age %s too short", opts.MaxAge)
	}

	store := sessions.NewFilesystemStore(opts.Dir, key)
	store.MaxAge(int(opts.MaxAge.Seconds()))
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = opts.Secure
	store.Options.SameSite = http.SameSiteLaxMode

	return &Manager{store: store}, nil
}

// UserID returns the logged-in user. An unreadable or expired cookie counts as logged out.
func (m *Manager) UserID(r *http.Request) (int64, bool) {
	s, err := m.store.Get(r, cookieName)
	if err != nil {
		return 0, false
	}
	id, ok := s.Values[userIDKey].(int64)
	return id, ok
}

// Start issues a brand new session for userID. The old session id, if any,
// is never reused.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, userID int64) error {
	s := sessions.NewSession(m.store, cookieName)
	opts := *m.store.Options
	s.Options = &opts
	s.IsNew = true
	s.Values[userIDKey] = userID

	if err := s.Save(r, w); err != nil {
		return fmt.Errorf("session.Start -> %w", err)
	}
	return nil
}

// Clear deletes the stored session and expires the cookie.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	s, _ := m.store.Get(r, cookieName)
	s.Values = make(map[any]any)
	s.Options.MaxAge = -1

	if err := s.Save(r, w); err != nil {
		return fmt.Errorf("session.Clear -> %w", err)
	}
	return nil
}

// AddFlash queues a one-time message for the next page.
func (m *Manager) AddFlash(w http.ResponseWriter, r *http.Request, msg string) error {
	s, err := m.store.Get(r, cookieName)
	if err != nil {
		return fmt.Errorf("session.AddFlash -> %w", err)
	}
	s.AddFlash(msg)
	if err = s.Save(r, w); err != nil {
		return fmt.Errorf("session.AddFlash -> %w", err)
	}
	return nil
}

// Flashes pops queued messages.
func (m *Manager) Flashes(w http.ResponseWriter, r *http.Request) ([]string, error) {
	s, err := m.store.Get(r, cookieName)
	if err != nil {
		return nil, fmt.Errorf("session.Flashes -> %w", err)
	}
	raw := s.Flashes()
	if len(raw) == 0 {
		return nil, nil
	}
	if err = s.Save(r, w); err != nil {
		return nil, fmt.Errorf("session.Flashes -> %w", err)
	}

	msgs := make([]string, 0, len(raw))
	for _, f := range raw {
		if msg, ok := f.(string); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}
