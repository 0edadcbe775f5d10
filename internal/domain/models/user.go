package models

import "time"

// User is an account allowed to use the inventory.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastSignInAt *time.Time `json:"lastSignInAt,omitempty"`
}

// Session is an authenticated sign-in. Token is only set when the session is issued.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"uid"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"token,omitempty"`
}

// SessionEventType enumerates session lifecycle notifications.
type SessionEventType string

const (
	SessionSignedUp  SessionEventType = "signed_up"
	SessionSignedIn  SessionEventType = "signed_in"
	SessionSignedOut SessionEventType = "signed_out"
)

// SessionEvent is delivered to session change listeners.
type SessionEvent struct {
	Type    SessionEventType
	Session Session
	At      time.Time
}
