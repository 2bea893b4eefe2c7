package notifications

import (
	"context"

	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"gopkg.in/gomail.v2"
)

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendAlert(ctx context.Context, alert *models.Alert) error
	SendDigest(ctx context.Context, digest *models.LogDigest) error
	DigestEnabled() bool
}

// Messenger delivers private messages on the forum
type Messenger interface {
	SendMessage(ctx context.Context, to, subject, text string) error
}

// MailSender delivers composed email. *gomail.Dialer satisfies it.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}
