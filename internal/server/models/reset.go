package models

import "time"

// ResetRequest is a hashed, time-limited one-time token permitting password
// replacement without the old password. Multiple requests may coexist per
// account; all are invalidated together once one succeeds.
type ResetRequest struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the request is past its expiry at the given time.
func (r *ResetRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
