package models

import "time"

// PendingEmailChange holds a proposed new address for an account. The new
// email must be unique across this table and across accounts. Confirmation
// rides the account's activation code/link pair.
type PendingEmailChange struct {
	ID        string
	AccountID string
	NewEmail  string
	CreatedAt time.Time
}
