package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#8E4EC6")).
			Padding(0, 1).
			MarginBottom(1)

	colHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8E4EC6")).
			Bold(true).
			MarginRight(1)

	sepStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)

	safeColor      = lipgloss.Color("#2E8B57")
	sensitiveColor = lipgloss.Color("#D7A100")
	dangerousColor = lipgloss.Color("#D0342C")
	mutedColor     = lipgloss.Color("241")
)

type column struct {
	title string
	width int
}

// cell is one rendered value; a zero color keeps the terminal default.
type cell struct {
	text  string
	color lipgloss.Color
}

func printTable(title string, cols []column, rows [][]cell) {
	fmt.Println(headerStyle.Render(title))

	headers := make([]string, 0, len(cols))
	separators := make([]string, 0, len(cols))
	for _, c := range cols {
		headers = append(headers, colHeaderStyle.Width(c.width).Render(c.title))
		separators = append(separators, sepStyle.Render(strings.Repeat("─", c.width)))
	}
	fmt.Printf("  %s\n", lipgloss.JoinHorizontal(lipgloss.Top, headers...))
	fmt.Printf("  %s\n", lipgloss.JoinHorizontal(lipgloss.Top, separators...))

	for _, row := range rows {
		rendered := make([]string, 0, len(cols))
		for i, c := range cols {
			if i >= len(row) {
				break
			}
			style := lipgloss.NewStyle().Width(c.width).MarginRight(1)
			if row[i].color != "" {
				style = style.Foreground(row[i].color)
			}
			rendered = append(rendered, style.Render(truncate(row[i].text, c.width)))
		}
		fmt.Printf("  %s\n", lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}
	fmt.Println()
}

func riskColor(risk string) lipgloss.Color {
	switch strings.ToUpper(risk) {
	case "SAFE":
		return safeColor
	case "SENSITIVE":
		return sensitiveColor
	case "DANGEROUS":
		return dangerousColor
	default:
		return mutedColor
	}
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
