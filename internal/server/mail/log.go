package mail

import (
	"context"

	"github.com/DmitriyEfimov15/mobcon-server/internal/logging"
)

// LogNotifier writes notifications to the structured log instead of sending
// mail. Used in development when no SMTP address is configured.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l.With("module", "mail")}
}

func (n *LogNotifier) SendActivationCode(ctx context.Context, email, code string) error {
	n.logger.Info(ctx, "activation code", "to", email, "code", code)
	return nil
}

func (n *LogNotifier) SendResetPasswordLink(ctx context.Context, email, link string) error {
	n.logger.Info(ctx, "reset password link", "to", email, "link", link)
	return nil
}

func (n *LogNotifier) SendChangeEmailLink(ctx context.Context, email, link string) error {
	n.logger.Info(ctx, "change email link", "to", email, "link", link)
	return nil
}
