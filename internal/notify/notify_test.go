package notify

import (
	"context"
	"testing"

	"github.com/rosevale/vmxtract/internal/config"
	"github.com/rosevale/vmxtract/internal/model"
)

func TestTelegramDisabledByDefault(t *testing.T) {
	s := NewTelegramService(config.TelegramConfig{})
	if s.IsEnabled() {
		t.Error("expected Telegram to be disabled without bot token/chat id")
	}
}

func TestTelegramDisabledSendIsNoop(t *testing.T) {
	s := NewTelegramService(config.TelegramConfig{Enabled: false, BotToken: "x", ChatID: "y"})
	if err := s.Send(context.Background(), Notification{Title: "t", Message: "m"}); err != nil {
		t.Errorf("expected no error from disabled Send, got %v", err)
	}
}

func TestEmailDisabledByDefault(t *testing.T) {
	s := NewEmailService(config.EmailConfig{})
	if s.IsEnabled() {
		t.Error("expected email to be disabled without SMTP host/recipients")
	}
}

func TestEmailDisabledSendIsNoop(t *testing.T) {
	s := NewEmailService(config.EmailConfig{Enabled: false, SMTPHost: "smtp.example.com", ToEmails: "a@example.com"})
	if err := s.Send(context.Background(), Notification{Title: "t", Message: "m"}); err != nil {
		t.Errorf("expected no error from disabled Send, got %v", err)
	}
}

func TestNotifierSendRunSummaryWithAllChannelsDisabled(t *testing.T) {
	n := NewNotifier(config.NotificationsConfig{})
	err := n.SendRunSummary(context.Background(), Notification{Title: "Run complete", Message: "done"})
	if err != nil {
		t.Errorf("expected no error when all channels disabled, got %v", err)
	}
}

func TestFromEventPicksTypeFromExitCode(t *testing.T) {
	n := FromEvent(model.NotificationEvent{Summary: model.RunSummary{ExitCode: 4}})
	if n.Type != NotifyBackupEncrypted {
		t.Errorf("Type = %v, want NotifyBackupEncrypted", n.Type)
	}

	n = FromEvent(model.NotificationEvent{Summary: model.RunSummary{ExitCode: 0}})
	if n.Type != NotifyExtractionComplete {
		t.Errorf("Type = %v, want NotifyExtractionComplete", n.Type)
	}

	n = FromEvent(model.NotificationEvent{Summary: model.RunSummary{ExitCode: 1}})
	if n.Type != NotifyExtractionFailed {
		t.Errorf("Type = %v, want NotifyExtractionFailed", n.Type)
	}
}

func TestEscapeMarkdownEscapesSpecialChars(t *testing.T) {
	got := escapeMarkdown("hello.world!")
	want := "hello\\.world\\!"
	if got != want {
		t.Errorf("escapeMarkdown = %q, want %q", got, want)
	}
}
