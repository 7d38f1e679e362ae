package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type SummaryRow struct {
	Label string
	Value string
}

// RenderSummary lays rows out as a two-column table. Widths are measured in
// terminal cells so values such as "©" or emoji stay aligned.
func RenderSummary(rows []SummaryRow) string {
	labelWidth, valueWidth := 0, 0
	for _, row := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(row.Label))
		valueWidth = max(valueWidth, lipgloss.Width(row.Value))
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, hline)
	for _, row := range rows {
		label := labelStyle.Width(labelWidth).Render(row.Label)
		value := valueStyle.Width(valueWidth).Render(row.Value)
		lines = append(lines, fmt.Sprintf("%s | %s", label, value))
	}
	lines = append(lines, hline)

	return strings.Join(lines, "\n")
}

var valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
