package tui

import (
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/charmbracelet/lipgloss"
)

// TasksModel lists tasks with a movable cursor and a detail pane.
type TasksModel struct {
	tasks  []models.Task
	cursor int
	width  int
	height int
}

func (m *TasksModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetTasks replaces the list, keeping the cursor on the same task id when
// it is still present.
func (m *TasksModel) SetTasks(tasks []models.Task) {
	selected := ""
	if m.cursor < len(m.tasks) {
		selected = m.tasks[m.cursor].ID
	}
	m.tasks = tasks
	m.cursor = 0
	for i, t := range tasks {
		if t.ID == selected {
			m.cursor = i
			break
		}
	}
}

// Selected returns the task under the cursor.
func (m *TasksModel) Selected() (models.Task, bool) {
	if m.cursor >= len(m.tasks) {
		return models.Task{}, false
	}
	return m.tasks[m.cursor], true
}

func (m *TasksModel) HandleKey(key string) {
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(0, len(m.tasks)-1)
	}
}

func (m TasksModel) View() string {
	width := max(20, m.width-2)
	if len(m.tasks) == 0 {
		return panelStyle.Width(width).Render(dimStyle.Render("No tasks yet. Run: repomaint index <url>"))
	}

	limit := max(3, m.height-12)
	start := 0
	if m.cursor >= limit {
		start = m.cursor - limit + 1
	}
	var rows strings.Builder
	for i := start; i < len(m.tasks) && i < start+limit; i++ {
		t := m.tasks[i]
		row := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(28).Foreground(ink).Render(truncate(t.ID, 26)),
			lipgloss.NewStyle().Width(11).Foreground(slate).Render(t.Kind),
			lipgloss.NewStyle().Width(15).Render(statusBadge(t.Status)),
			dimStyle.Render(truncate(t.Message, max(10, width-60))),
		)
		if i == m.cursor {
			row = selectedRowStyle.Render(row)
		}
		rows.WriteString(row + "\n")
	}

	list := panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left,
		panelHeaderStyle.Render("Tasks"),
		dimStyle.Render("ID                          Kind       Status         Message"),
		rows.String(),
	))
	return lipgloss.JoinVertical(lipgloss.Left, list, m.detail(width))
}

func (m TasksModel) detail(width int) string {
	t, ok := m.Selected()
	if !ok {
		return ""
	}
	lines := []string{
		panelHeaderStyle.Render(t.ID),
		dimStyle.Render("created  ") + t.CreatedAt.Format("2006-01-02 15:04:05"),
		dimStyle.Render("updated  ") + t.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
	if t.ResultID != "" {
		lines = append(lines, dimStyle.Render("result   ")+t.ResultID)
	}
	if t.Error != "" {
		lines = append(lines, failStyle.Render("error    "+t.Error))
	}
	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
