package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

func sampleAction() approval.PendingAction {
	return approval.PendingAction{
		ID:     "a1b2c3d4",
		Tool:   "write_file",
		Risk:   policy.RiskSensitive,
		Effect: "Write 2 bytes to sandbox/<hello>.txt",
		Status: approval.StatusPending,
	}
}

type fakeBot struct {
	sent    []tgbotapi.MessageConfig
	failFor map[string]bool
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, msg)
	if f.failFor[msg.ParseMode] {
		return tgbotapi.Message{}, errors.New("bad request: can't parse entities")
	}
	return tgbotapi.Message{}, nil
}

func newTestTelegram(t *testing.T, bot *fakeBot) *Telegram {
	t.Helper()
	tg, err := NewTelegram("123:abc", "42")
	if err != nil {
		t.Fatalf("NewTelegram error: %v", err)
	}
	tg.newBot = func(string) (botSender, error) { return bot, nil }
	return tg
}

func TestNewTelegram_Validates(t *testing.T) {
	if _, err := NewTelegram("", "42"); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := NewTelegram("123:abc", "not-a-number"); err == nil {
		t.Fatal("expected error for invalid chat id")
	}
}

func TestTelegram_SendsEscapedHTML(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(t, bot)

	if err := tg.NotifyPending(context.Background(), sampleAction()); err != nil {
		t.Fatalf("NotifyPending error: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 || msg.ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("unexpected message config: chat=%d mode=%q", msg.ChatID, msg.ParseMode)
	}
	if !strings.Contains(msg.Text, "&lt;hello&gt;") {
		t.Fatalf("expected escaped effect, got %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "approve('a1b2c3d4')") {
		t.Fatalf("expected approval instructions, got %q", msg.Text)
	}
}

func TestTelegram_FallsBackToPlainText(t *testing.T) {
	bot := &fakeBot{failFor: map[string]bool{tgbotapi.ModeHTML: true}}
	tg := newTestTelegram(t, bot)

	if err := tg.NotifyPending(context.Background(), sampleAction()); err != nil {
		t.Fatalf("NotifyPending error: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected HTML attempt and plain retry, got %d", len(bot.sent))
	}
	if bot.sent[1].ParseMode != "" || !strings.Contains(bot.sent[1].Text, "<hello>") {
		t.Fatalf("unexpected fallback message: %+v", bot.sent[1])
	}
}

func TestTelegram_ReportsInitAndSendFailures(t *testing.T) {
	tg, err := NewTelegram("123:abc", "42")
	if err != nil {
		t.Fatalf("NewTelegram error: %v", err)
	}
	tg.newBot = func(string) (botSender, error) { return nil, errors.New("unauthorized") }
	if err := tg.NotifyPending(context.Background(), sampleAction()); err == nil {
		t.Fatal("expected init failure")
	}

	bot := &fakeBot{failFor: map[string]bool{tgbotapi.ModeHTML: true, "": true}}
	tg = newTestTelegram(t, bot)
	if err := tg.NotifyPending(context.Background(), sampleAction()); err == nil {
		t.Fatal("expected send failure")
	}
}

func TestTelegram_CanceledContext(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(t, bot)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tg.NotifyPending(ctx, sampleAction()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(bot.sent) != 0 {
		t.Fatal("expected nothing sent")
	}
}

func TestLog_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if err := NewLog(logger).NotifyPending(context.Background(), sampleAction()); err != nil {
		t.Fatalf("NotifyPending error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "action_id=a1b2c3d4") || !strings.Contains(out, "tool=write_file") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) NotifyPending(context.Context, approval.PendingAction) error {
	f.calls++
	return errors.New("down")
}

func TestMulti_NotifiesAllAndJoinsErrors(t *testing.T) {
	first := &failingNotifier{}
	second := &failingNotifier{}
	multi := Multi{first, nil, NewLog(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))), second}

	err := multi.NotifyPending(context.Background(), sampleAction())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected every notifier to be called, got %d and %d", first.calls, second.calls)
	}

	if err := (Multi{}).NotifyPending(context.Background(), sampleAction()); err != nil {
		t.Fatalf("expected nil error for empty multi, got %v", err)
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText(sampleAction())
	want := "Approval required [a1b2c3d4] write_file (SENSITIVE)\nWrite 2 bytes to sandbox/<hello>.txt\nUse approve('a1b2c3d4') to execute or deny('a1b2c3d4') to reject."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
