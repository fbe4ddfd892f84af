// Package models defines the persistent entities of the account-identity
// subsystem. Account is the aggregate root; RefreshSession, ResetRequest and
// PendingEmailChange each reference exactly one Account.
package models

import "time"

// Account is a single identity record.
//
// ActivationCode and ActivationLink are both set while the email is
// unverified and both nil once verification completes. The same pair is
// regenerated and reused for the email-change confirmation flow.
type Account struct {
	ID             string
	Email          string
	Username       string
	PasswordHash   string
	EmailVerified  bool
	ActivationCode *string
	ActivationLink *string
	CreatedAt      time.Time
}
