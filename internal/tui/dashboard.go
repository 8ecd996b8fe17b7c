package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/charmbracelet/lipgloss"
)

var counterStatuses = []models.TaskStatus{
	models.StatusPending,
	models.StatusInProgress,
	models.StatusCompleted,
	models.StatusFailed,
}

func renderDashboard(s Snapshot, width int) string {
	cardW := 18
	if width >= 100 {
		cardW = 20
	}
	cards := make([]string, 0, len(counterStatuses))
	for _, st := range counterStatuses {
		cards = append(cards, renderCounter(string(st), s.Counts[st], statusStyle(st), cardW))
	}
	summary := lipgloss.JoinHorizontal(lipgloss.Top, cards...)

	info := lipgloss.JoinVertical(lipgloss.Left,
		panelHeaderStyle.Render("Gateway"),
		fmt.Sprintf("%s %s", dimStyle.Render("uptime   "), s.Uptime.Truncate(time.Second)),
		fmt.Sprintf("%s %d", dimStyle.Render("schedules"), s.Schedules),
		fmt.Sprintf("%s %d", dimStyle.Render("tasks    "), len(s.Tasks)),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Padding(0, 1).Render(summary),
		panelStyle.Width(max(20, width-2)).Render(info),
	)
}

func renderCounter(label string, count int, style lipgloss.Style, width int) string {
	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Center,
			style.Bold(true).Render(fmt.Sprintf("%d", count)),
			dimStyle.Render(strings.ToUpper(strings.ReplaceAll(label, "_", " "))),
		),
	) + "  "
}

func statusStyle(s models.TaskStatus) lipgloss.Style {
	switch s {
	case models.StatusCompleted:
		return okStyle
	case models.StatusFailed, models.StatusCancelled:
		return failStyle
	case models.StatusInProgress:
		return runningStyle
	default:
		return pendingStyle
	}
}

func statusBadge(s models.TaskStatus) string {
	bg := slate
	switch s {
	case models.StatusCompleted:
		bg = green
	case models.StatusFailed, models.StatusCancelled:
		bg = red
	case models.StatusInProgress:
		bg = blue
	}
	return lipgloss.NewStyle().Foreground(bgDark).Background(bg).Padding(0, 1).Render(string(s))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n+1:]
}
