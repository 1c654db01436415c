package models

import "time"

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionIdle    SessionState = "idle"
	SessionClosed  SessionState = "closed"
	SessionExpired SessionState = "expired"
)

// Session is one conversation's persisted state: its identity, the
// provider/model it targets, and bookkeeping used by the retention sweep.
type Session struct {
	ID         string       `json:"id"`
	Key        string       `json:"key,omitempty"`
	State      SessionState `json:"state"`
	Provider   string       `json:"provider"`
	Model      string       `json:"model"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	ExpiresAt  time.Time    `json:"expires_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SessionKey builds the canonical lookup key for a (provider, external ID)
// pair, mirroring the teacher's session-keying convention.
func SessionKey(provider, externalID string) string {
	return provider + ":" + externalID
}
