package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/config"
	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service handles sending notifications via various channels
type Service struct {
	config    *config.Config
	client    *resty.Client
	messenger Messenger
	mailer    MailSender
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service. Operator alerts go out as
// private messages through messenger; email and Teams are used when
// configured.
func NewService(cfg *config.Config, messenger Messenger) *Service {
	s := &Service{
		config:    cfg,
		client:    resty.New().SetTimeout(30 * time.Second),
		messenger: messenger,
	}
	if cfg.NotificationEmail != "" {
		s.mailer = gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	}
	return s
}

// WithMailer replaces the SMTP dialer
func (s *Service) WithMailer(mailer MailSender) *Service {
	s.mailer = mailer
	return s
}

// DigestEnabled reports whether the weekly log digest can be delivered
func (s *Service) DigestEnabled() bool {
	return s.mailer != nil && s.config.NotificationEmail != ""
}

// SendAlert tells every operator that the bot hit an unexpected error
func (s *Service) SendAlert(ctx context.Context, alert *models.Alert) error {
	var errors []string

	if s.messenger != nil {
		for _, operator := range s.config.Operators {
			if err := s.messenger.SendMessage(ctx, operator, alert.Subject, alert.Detail); err != nil {
				logrus.Errorf("Failed to message operator %s: %v", operator, err)
				errors = append(errors, fmt.Sprintf("Message to %s: %v", operator, err))
			}
		}
	}

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, s.buildAlertCard(alert)); err != nil {
			logrus.Errorf("Failed to send Teams alert: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		}
	}

	if s.DigestEnabled() {
		m := s.newMessage(alert.Subject)
		m.SetBody("text/plain", alert.Detail)
		if err := s.mailer.DialAndSend(m); err != nil {
			logrus.Errorf("Failed to send alert email: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	logrus.Infof("Sent operator alert: %s", alert.Subject)
	return nil
}

// SendDigest emails the outcome log with the file attached. A Teams summary
// follows when a webhook is configured.
func (s *Service) SendDigest(ctx context.Context, digest *models.LogDigest) error {
	if !s.DigestEnabled() {
		return fmt.Errorf("email delivery is not configured")
	}

	htmlBody, err := s.buildDigestHTML(digest)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := s.newMessage(DigestSubject(digest.WeekOf))
	m.SetBody("text/plain", s.buildDigestText(digest))
	m.AddAlternative("text/html", htmlBody)
	data := digest.Data
	m.Attach(digest.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}))

	if err := s.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logrus.Infof("Sent log digest %s to %s", digest.Filename, s.config.NotificationEmail)

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, s.buildDigestCard(digest)); err != nil {
			logrus.Warnf("Failed to send Teams digest summary: %v", err)
		}
	}
	return nil
}

// DigestSubject is the subject line of the weekly log email
func DigestSubject(weekOf time.Time) string {
	return fmt.Sprintf("WikiHowLink Bot Log for Week of %s", weekOf.Format("2006-01-02"))
}

func (s *Service) newMessage(subject string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	return m
}

func (s *Service) sendToTeams(ctx context.Context, message *TeamsMessage) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildAlertCard(alert *models.Alert) *TeamsMessage {
	return &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: "d13438",
		Title:      alert.Subject,
		Text:       fmt.Sprintf("Raised %s", alert.CreatedAt.Format("2006-01-02 15:04:05 UTC")),
		Sections: []TeamsSection{{
			ActivityTitle: "Detail",
			ActivityText:  "```\n" + alert.Detail + "\n```",
			Markdown:      true,
		}},
	}
}

func (s *Service) buildDigestCard(digest *models.LogDigest) *TeamsMessage {
	var facts []TeamsFact
	for _, label := range sortedLabels(digest.Counts) {
		facts = append(facts, TeamsFact{Name: label, Value: fmt.Sprintf("%d", digest.Counts[label])})
	}

	return &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   DigestSubject(digest.WeekOf),
		Text:    fmt.Sprintf("Full log emailed as %s", digest.Filename),
		Sections: []TeamsSection{{
			ActivityTitle: "Outcomes",
			Facts:         facts,
			Markdown:      true,
		}},
	}
}

func (s *Service) buildDigestHTML(digest *models.LogDigest) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>WikiHowLink Bot Log</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
    </style>
</head>
<body>
    <h1>WikiHowLink Bot Log</h1>
    <p>Week of {{.WeekOf.Format "January 2, 2006"}}</p>

    <div class="summary">
        <h2>Outcomes</h2>
        {{range $label := labels .Counts}}
            <p><strong>{{$label}}:</strong> {{index $.Counts $label}}</p>
        {{else}}
            <p>No posts were moderated.</p>
        {{end}}
    </div>

    <p>The full log is attached as <code>{{.Filename}}</code>.</p>
</body>
</html>
`

	t, err := template.New("digest").Funcs(template.FuncMap{"labels": sortedLabels}).Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, digest); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildDigestText(digest *models.LogDigest) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("%s\n\n", DigestSubject(digest.WeekOf)))
	text.WriteString("OUTCOMES\n")
	text.WriteString("========\n")

	labels := sortedLabels(digest.Counts)
	if len(labels) == 0 {
		text.WriteString("No posts were moderated.\n")
	}
	for _, label := range labels {
		text.WriteString(fmt.Sprintf("%s: %d\n", label, digest.Counts[label]))
	}

	text.WriteString(fmt.Sprintf("\nThe full log is attached as %s.\n", digest.Filename))
	return text.String()
}

func sortedLabels(counts map[string]int) []string {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
