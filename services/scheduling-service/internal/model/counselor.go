package model

import "time"

// Counselor is the subset of the counselor record the scheduling core touches:
// identity, calendar credentials, and the working-hours window slots are cut from.
type Counselor struct {
	ID           string
	Name         string
	Email        string
	Timezone     string // IANA name; empty means the configured default
	WorkStart    string // "HH:MM", local to Timezone
	WorkEnd      string // "HH:MM"
	AccessToken  string
	RefreshToken string
	TokenExpiry  *time.Time
	CalendarID   string // defaults to Email when tokens are first stored
	Connected    bool
	OAuthState   string // single-use nonce, cleared once the callback consumes it
}

// CalendarConnected reports whether the counselor can be treated as connected.
// A stale Connected flag without a refresh token on file counts as disconnected.
func (c *Counselor) CalendarConnected() bool {
	return c.Connected && c.RefreshToken != ""
}
