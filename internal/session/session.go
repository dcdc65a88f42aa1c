// Package session keeps the per-dialog state of USSD sessions between
// requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// State is one position of the dialog. Implementations register themselves
// with Register so sessions can be persisted.
type State interface {
	StateName() string
}

type decoder func(json.RawMessage) (State, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]decoder{}
)

// Register makes T decodable from its name. It panics on duplicate names.
func Register[T State](name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("session: state registered twice: " + name)
	}
	registry[name] = func(raw json.RawMessage) (State, error) {
		var v T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
}

// Account is the authenticated user and wallet bound to a session.
type Account struct {
	UserID       string `json:"user_id"`
	WalletID     string `json:"wallet_id"`
	Address      string `json:"address"`
	EncryptedKey string `json:"encrypted_key,omitempty"`
}

// Session is one USSD dialog.
type Session struct {
	ID           string
	PhoneNumber  string
	State        State
	Account      *Account
	LastActivity time.Time
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) { s.LastActivity = now.UTC() }

// Expired reports whether the session has been idle longer than idle.
func (s *Session) Expired(now time.Time, idle time.Duration) bool {
	return now.Sub(s.LastActivity) > idle
}

type envelope struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wire struct {
	ID           string    `json:"id"`
	PhoneNumber  string    `json:"phone_number"`
	State        *envelope `json:"state,omitempty"`
	Account      *Account  `json:"account,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// MarshalJSON encodes State as {"name": ..., "data": ...}.
func (s Session) MarshalJSON() ([]byte, error) {
	w := wire{ID: s.ID, PhoneNumber: s.PhoneNumber, Account: s.Account, LastActivity: s.LastActivity}
	if s.State != nil {
		data, err := json.Marshal(s.State)
		if err != nil {
			return nil, err
		}
		w.State = &envelope{Name: s.State.StateName(), Data: data}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a session written by MarshalJSON.
func (s *Session) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Session{ID: w.ID, PhoneNumber: w.PhoneNumber, Account: w.Account, LastActivity: w.LastActivity}
	if w.State == nil {
		return nil
	}
	registryMu.RLock()
	decode, ok := registry[w.State.Name]
	registryMu.RUnlock()
	if !ok {
		return fmt.Errorf("session: unknown state %q", w.State.Name)
	}
	state, err := decode(w.State.Data)
	if err != nil {
		return fmt.Errorf("session: decode state %q: %w", w.State.Name, err)
	}
	s.State = state
	return nil
}

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// SweepExpired removes sessions idle longer than idle and reports how many.
	SweepExpired(ctx context.Context, now time.Time, idle time.Duration) (int, error)
}
