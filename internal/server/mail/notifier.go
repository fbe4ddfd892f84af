// Package mail defines the outbound notification boundary of the credential
// service and its SMTP and logging implementations.
package mail

import "context"

// Notifier dispatches account emails. Implementations are best-effort: the
// credential service logs failures but never fails a user-facing operation
// because a notification could not be delivered.
type Notifier interface {
	// SendActivationCode mails the 6-digit confirmation code.
	SendActivationCode(ctx context.Context, email, code string) error

	// SendResetPasswordLink mails the one-time password-reset link.
	SendResetPasswordLink(ctx context.Context, email, link string) error

	// SendChangeEmailLink mails the email-change confirmation link to the
	// account's current address.
	SendChangeEmailLink(ctx context.Context, email, link string) error
}
