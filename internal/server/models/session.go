package models

import "time"

// UnknownDevice is the sentinel device label used when a client supplies no
// descriptor (missing User-Agent).
const UnknownDevice = "unknown device"

// RefreshSession tracks one live refresh token per (account, device) pair.
// A new login or refresh for the same device supersedes the prior record.
type RefreshSession struct {
	ID        string
	AccountID string
	Token     string
	Device    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *RefreshSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
