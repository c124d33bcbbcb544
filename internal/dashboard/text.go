// Package dashboard renders engine snapshots for humans.
package dashboard

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MEKXH/gatekeeper/internal/engine"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

// RecentLimit is how many audit records the dashboard shows.
const RecentLimit = 10

const (
	detailWidth = 60
	ruleWidth   = 60
)

// Text renders snap without color, for tool results and /dashboard.txt.
func Text(snap engine.Snapshot) string {
	return Render(lipgloss.NewRenderer(io.Discard), snap)
}

// Render renders snap with the styles of r. A renderer bound to a terminal
// adds color.
func Render(r *lipgloss.Renderer, snap engine.Snapshot) string {
	var (
		titleStyle   = r.NewStyle().Bold(true).Foreground(lipgloss.Color("#58A6FF"))
		sectionStyle = r.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
		toolStyle    = r.NewStyle().Width(15).MarginRight(2)
		badgeStyle   = r.NewStyle().Width(12).MarginRight(2)
		actionStyle  = r.NewStyle().Width(26).MarginRight(2)
		timeStyle    = r.NewStyle().Width(20).MarginRight(2)
		decStyle     = r.NewStyle().Width(17).MarginRight(2)
		riskStyle    = r.NewStyle().Width(10).MarginRight(2)
		mutedStyle   = r.NewStyle().Foreground(lipgloss.Color("241"))
	)

	var b strings.Builder
	line := strings.Repeat("=", ruleWidth)

	b.WriteString(line + "\n")
	b.WriteString("  " + titleStyle.Render("MCP GATEKEEPER DASHBOARD") + "\n")
	b.WriteString(line + "\n")

	fmt.Fprintf(&b, "\n%s\n", sectionStyle.Render(fmt.Sprintf("--- POLICY (%s) ---", orDash(snap.Policy.Source))))
	for _, rule := range snap.Policy.Rules {
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			toolStyle.Render(rule.Tool),
			badgeStyle.Render(RiskBadge(rule.Risk)),
			actionStyle.Render("action="+string(rule.Action)),
			fmt.Sprintf("approvable=%t", rule.Approvable),
		)
		if rule.Locked {
			row += "  " + mutedStyle.Render("[locked]")
		}
		b.WriteString("  " + row + "\n")
	}
	fmt.Fprintf(&b, "  %s\n", mutedStyle.Render("sandbox root: "+snap.SandboxRoot))

	fmt.Fprintf(&b, "\n%s\n", sectionStyle.Render(fmt.Sprintf("--- PENDING ACTIONS (%d) ---", len(snap.Pending))))
	if len(snap.Pending) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, action := range snap.Pending {
		fmt.Fprintf(&b, "  [%s] %s %s  ->  %s\n", action.ID, RiskBadge(action.Risk), action.Tool, action.Effect)
		fmt.Fprintf(&b, "           created: %s\n", action.CreatedAt.Format(time.RFC3339))
	}

	fmt.Fprintf(&b, "\n%s\n", sectionStyle.Render(fmt.Sprintf("--- RECENT AUDIT (%d of %d total) ---", len(snap.Recent), snap.AuditTotal)))
	if len(snap.Recent) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, rec := range snap.Recent {
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			timeStyle.Render(rec.Time.Format(time.RFC3339)),
			toolStyle.Render(rec.Tool),
			decStyle.Render(string(rec.Decision)),
			riskStyle.Render(rec.Risk),
			clip(rec.Detail, detailWidth),
		)
		b.WriteString("  " + row + "\n")
	}

	b.WriteString("\n" + line)
	return b.String()
}

// RiskBadge renders a risk level as "[RISK]".
func RiskBadge(risk policy.RiskLevel) string {
	if risk == "" {
		return "[?]"
	}
	return "[" + string(risk) + "]"
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
