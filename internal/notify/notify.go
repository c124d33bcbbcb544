// Package notify tells humans that an action is waiting for approval.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/MEKXH/gatekeeper/internal/approval"
)

// Notifier is implemented by every notification target.
type Notifier interface {
	NotifyPending(ctx context.Context, action approval.PendingAction) error
}

// Log writes pending actions to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) NotifyPending(ctx context.Context, action approval.PendingAction) error {
	l.logger.InfoContext(ctx, "action awaiting approval",
		"action_id", action.ID,
		"tool", action.Tool,
		"risk", action.Risk,
		"effect", action.Effect,
	)
	return nil
}

// Multi fans a notification out to several targets and joins their errors.
type Multi []Notifier

func (m Multi) NotifyPending(ctx context.Context, action approval.PendingAction) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyPending(ctx, action); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PlainText renders a pending action for channels without markup.
func PlainText(action approval.PendingAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval required [%s] %s (%s)\n", action.ID, action.Tool, action.Risk)
	if action.Effect != "" {
		fmt.Fprintf(&b, "%s\n", action.Effect)
	}
	fmt.Fprintf(&b, "Use approve('%s') to execute or deny('%s') to reject.", action.ID, action.ID)
	return b.String()
}

func renderHTML(action approval.PendingAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Approval required</b> <code>%s</code>\n", html.EscapeString(action.ID))
	fmt.Fprintf(&b, "<b>%s</b> [%s]\n", html.EscapeString(action.Tool), html.EscapeString(string(action.Risk)))
	if action.Effect != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(action.Effect))
	}
	fmt.Fprintf(&b, "Use <code>approve('%s')</code> to execute or <code>deny('%s')</code> to reject.",
		html.EscapeString(action.ID), html.EscapeString(action.ID))
	return b.String()
}
