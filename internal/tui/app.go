// Package tui is a terminal monitor for a running gateway.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Snapshot is one poll of the gateway.
type Snapshot struct {
	Counts    map[models.TaskStatus]int
	Schedules int
	Uptime    time.Duration
	Tasks     []models.Task
}

// Source loads snapshots.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Tab represents a TUI navigation tab.
type Tab int

const (
	TabDashboard Tab = iota
	TabTasks
)

var tabNames = []string{"Dashboard", "Tasks"}

// DefaultRefresh is the poll interval when none is given.
const DefaultRefresh = 5 * time.Second

type snapshotMsg struct {
	snap Snapshot
	err  error
	at   time.Time
}

type tickMsg struct{}

// App is the root bubbletea model.
type App struct {
	src       Source
	target    string
	refresh   time.Duration
	width     int
	height    int
	activeTab Tab
	snap      Snapshot
	err       error
	lastLoad  time.Time
	loaded    bool
	tasks     TasksModel
}

// NewApp creates the monitor. target is shown in the header.
func NewApp(src Source, target string, refresh time.Duration) *App {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &App{src: src, target: target, refresh: refresh}
}

// Run starts the bubbletea program.
func (a *App) Run() error {
	_, err := tea.NewProgram(a, tea.WithAltScreen()).Run()
	return err
}

func (a *App) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), a.refresh)
		defer cancel()
		snap, err := a.src.Snapshot(ctx)
		return snapshotMsg{snap: snap, err: err, at: time.Now()}
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.loadCmd()
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.tasks.SetSize(max(20, msg.Width-2), max(8, msg.Height-7))

	case snapshotMsg:
		a.loaded = true
		a.err = msg.err
		if msg.err == nil {
			a.snap = msg.snap
			a.lastLoad = msg.at
			a.tasks.SetTasks(msg.snap.Tasks)
		}
		return a, tea.Tick(a.refresh, func(time.Time) tea.Msg { return tickMsg{} })

	case tickMsg:
		return a, a.loadCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "1":
			a.activeTab = TabDashboard
		case "2":
			a.activeTab = TabTasks
		case "tab", "shift+tab":
			a.activeTab = (a.activeTab + 1) % Tab(len(tabNames))
		case "r":
			return a, a.loadCmd()
		default:
			if a.activeTab == TabTasks {
				a.tasks.HandleKey(msg.String())
			}
		}
	}
	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	var content string
	switch {
	case !a.loaded:
		content = panelStyle.Width(max(20, a.width-4)).Render("Contacting " + a.target + "...")
	case a.activeTab == TabTasks:
		content = a.tasks.View()
	default:
		content = renderDashboard(a.snap, a.width-2)
	}

	contentBox := lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		MaxHeight(max(1, a.height-4)).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left,
		a.renderHeader(),
		a.renderTabs(),
		contentBox,
		a.renderStatus(),
	)
}

func (a *App) renderHeader() string {
	row := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("repomaint"),
		"  ",
		dimStyle.Render(a.target),
		"  ",
		mutedBadgeStyle.Render(" "+tabNames[a.activeTab]+" "),
	)
	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(line).
		Width(a.width).
		Padding(0, 1).
		Render(row)
}

func (a *App) renderTabs() string {
	parts := make([]string, 0, 2*len(tabNames))
	for i, name := range tabNames {
		label := fmt.Sprintf("%d:%s", i+1, name)
		if Tab(i) == a.activeTab {
			parts = append(parts, lipgloss.NewStyle().Bold(true).Foreground(accent).Render(label))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
		if i < len(tabNames)-1 {
			parts = append(parts, dimStyle.Render("  ·  "))
		}
	}
	return lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, parts...))
}

func (a *App) renderStatus() string {
	updated := "never"
	if !a.lastLoad.IsZero() {
		updated = a.lastLoad.Format("15:04:05")
	}
	text := "tab switch  r refresh  q quit  updated " + updated
	style := lipgloss.NewStyle().Width(a.width).Padding(0, 1).Foreground(slateDim)
	if a.err != nil {
		text = "error: " + a.err.Error()
		style = style.Foreground(red)
	}
	return style.Render(text)
}
