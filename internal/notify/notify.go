// Package notify delivers run-completion notifications over Telegram or
// email, per SPEC_FULL.md section 4.15. Adapted from the teacher's
// notifications package: same HTTP bot API / net/smtp transport, but the
// NotificationType enum and message templates are re-pointed at
// extraction outcomes instead of tape/backup events.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/rosevale/vmxtract/internal/config"
	"github.com/rosevale/vmxtract/internal/model"
)

// NotificationType identifies what kind of run outcome is being reported.
type NotificationType string

const (
	NotifyExtractionComplete NotificationType = "extraction_complete"
	NotifyExtractionFailed   NotificationType = "extraction_failed"
	NotifyBackupEncrypted    NotificationType = "backup_encrypted"
	NotifyDependencyMissing  NotificationType = "dependency_missing"
)

// Notification is one outbound message, built from a RunSummary.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Summary   model.RunSummary
	Timestamp time.Time
}

// FromEvent builds a Notification from a NotificationEvent, choosing the
// type from the run's exit code.
func FromEvent(ev model.NotificationEvent) Notification {
	t := NotifyExtractionComplete
	switch ev.Summary.ExitCode {
	case 4:
		t = NotifyBackupEncrypted
	case 6:
		t = NotifyDependencyMissing
	default:
		if ev.Summary.ExitCode != 0 {
			t = NotifyExtractionFailed
		}
	}
	return Notification{
		Type:      t,
		Title:     ev.Title,
		Message:   ev.Message,
		Summary:   ev.Summary,
		Timestamp: time.Now(),
	}
}

// Notifier fans a Notification out to every enabled channel. Disabled
// channels never perform network I/O, exactly like the teacher's
// telegram/email services gate on IsEnabled.
type Notifier struct {
	telegram *TelegramService
	email    *EmailService
}

// NewNotifier builds a Notifier from the configured channels.
func NewNotifier(cfg config.NotificationsConfig) *Notifier {
	return &Notifier{
		telegram: NewTelegramService(cfg.Telegram),
		email:    NewEmailService(cfg.Email),
	}
}

// SendRunSummary delivers notification to every enabled channel, collecting the first
// error encountered but still attempting every channel.
func (n *Notifier) SendRunSummary(ctx context.Context, notification Notification) error {
	var firstErr error
	if n.telegram.IsEnabled() {
		if err := n.telegram.Send(ctx, notification); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if n.email.IsEnabled() {
		if err := n.email.Send(ctx, notification); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TelegramService delivers notifications via the Telegram bot HTTP API.
type TelegramService struct {
	cfg        config.TelegramConfig
	httpClient *http.Client
}

// NewTelegramService builds a TelegramService for the given config.
func NewTelegramService(cfg config.TelegramConfig) *TelegramService {
	return &TelegramService{cfg: cfg, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// IsEnabled reports whether Telegram delivery is configured and enabled.
func (s *TelegramService) IsEnabled() bool {
	return s.cfg.Enabled && s.cfg.BotToken != "" && s.cfg.ChatID != ""
}

// Send delivers notification via Telegram. A no-op when disabled.
func (s *TelegramService) Send(ctx context.Context, notification Notification) error {
	if !s.IsEnabled() {
		return nil
	}
	text := formatTelegramMessage(notification)

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.cfg.BotToken)
	body, err := json.Marshal(struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}{ChatID: s.cfg.ChatID, Text: text, ParseMode: "MarkdownV2"})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API error: %s", errResp.Description)
	}
	return nil
}

func emojiFor(t NotificationType) string {
	switch t {
	case NotifyExtractionComplete:
		return "✅"
	case NotifyExtractionFailed:
		return "❌"
	case NotifyBackupEncrypted:
		return "\U0001F512"
	case NotifyDependencyMissing:
		return "⚠️"
	default:
		return "\U0001F4E2"
	}
}

func formatTelegramMessage(n Notification) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("%s *%s*\n\n", emojiFor(n.Type), escapeMarkdown(n.Title)))
	buf.WriteString(escapeMarkdown(n.Message))
	buf.WriteString(fmt.Sprintf("\n\n*Converted:* %d  *Failed:* %d  *Skipped:* %d",
		n.Summary.Converted, n.Summary.Failed, n.Summary.Skipped))
	buf.WriteString(fmt.Sprintf("\n\n_Sent at %s_", escapeMarkdown(n.Timestamp.Format("2006-01-02 15:04:05"))))
	return buf.String()
}

func escapeMarkdown(s string) string {
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	result := s
	for _, c := range specialChars {
		result = strings.ReplaceAll(result, c, "\\"+c)
	}
	return result
}

// EmailService delivers notifications over SMTP.
type EmailService struct {
	cfg config.EmailConfig
}

// NewEmailService builds an EmailService for the given config.
func NewEmailService(cfg config.EmailConfig) *EmailService {
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.FromName == "" {
		cfg.FromName = "vmxtract"
	}
	return &EmailService{cfg: cfg}
}

// IsEnabled reports whether email delivery is configured and enabled.
func (s *EmailService) IsEnabled() bool {
	return s.cfg.Enabled && s.cfg.SMTPHost != "" && s.cfg.ToEmails != ""
}

// Send delivers notification over SMTP. A no-op when disabled.
func (s *EmailService) Send(ctx context.Context, notification Notification) error {
	if !s.IsEnabled() {
		return nil
	}

	subject := fmt.Sprintf("[vmxtract] %s", notification.Title)
	body := formatEmailBody(notification)

	to := strings.Split(s.cfg.ToEmails, ",")
	for i := range to {
		to[i] = strings.TrimSpace(to[i])
	}

	msg := buildMIMEMessage(s.cfg.FromName, s.cfg.FromEmail, to, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)

	if s.cfg.UseTLS {
		return sendMailTLS(addr, s.cfg.SMTPHost, auth, s.cfg.FromEmail, to, msg, s.cfg.SkipVerify)
	}
	return smtp.SendMail(addr, auth, s.cfg.FromEmail, to, msg)
}

func buildMIMEMessage(fromName, fromEmail string, to []string, subject, htmlBody string) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, fromEmail))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	buf.WriteString(htmlBody)
	return buf.Bytes()
}

func formatEmailBody(n Notification) string {
	return fmt.Sprintf(`<html><body>
<h2>%s</h2>
<p>%s</p>
<table>
<tr><td><b>Converted</b></td><td>%d</td></tr>
<tr><td><b>Failed</b></td><td>%d</td></tr>
<tr><td><b>Skipped</b></td><td>%d</td></tr>
<tr><td><b>Exit code</b></td><td>%d</td></tr>
</table>
</body></html>`, n.Title, n.Message, n.Summary.Converted, n.Summary.Failed, n.Summary.Skipped, n.Summary.ExitCode)
}

func sendMailTLS(addr, serverName string, auth smtp.Auth, from string, to []string, msg []byte, skipVerify bool) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: serverName, InsecureSkipVerify: skipVerify})
	if err != nil {
		return fmt.Errorf("failed to dial SMTP over TLS: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, serverName)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
