// Package tui renders the patient chart in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/brizzai/fhir-chart/internal/chart"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TabLoadedMsg carries the result of loading one tab.
type TabLoadedMsg struct {
	Result chart.Result
}

// AppModel is the chart viewer. Tabs load concurrently on start and on reload.
type AppModel struct {
	ctx    context.Context
	loader *chart.Loader
	state  *chart.State

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	tables  map[chart.TabID]table.Model

	active int
	width  int
	height int
}

// NewAppModel creates the chart viewer for the patient of loader.
func NewAppModel(ctx context.Context, loader *chart.Loader) AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)

	tables := make(map[chart.TabID]table.Model)
	for _, id := range chart.TabIDs() {
		if t, ok := newTable(id); ok {
			tables[id] = t
		}
	}

	return AppModel{
		ctx:     ctx,
		loader:  loader,
		state:   chart.NewState(),
		keys:    newKeyMap(),
		help:    help.New(),
		spinner: s,
		tables:  tables,
	}
}

// Run starts the chart viewer and blocks until the user quits.
func Run(ctx context.Context, loader *chart.Loader) error {
	p := tea.NewProgram(NewAppModel(ctx, loader), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init starts loading every tab.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadAll())
}

// loadAll marks every tab as loading and returns the commands loading them.
func (m AppModel) loadAll() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(chart.Tabs))
	for _, id := range chart.TabIDs() {
		m.state.Begin(id)
		cmds = append(cmds, loadTab(m.ctx, m.loader, id))
	}
	return tea.Batch(cmds...)
}

func loadTab(ctx context.Context, loader *chart.Loader, tab chart.TabID) tea.Cmd {
	return func() tea.Msg {
		return TabLoadedMsg{Result: loader.Load(ctx, tab)}
	}
}

// ActiveTab returns the id of the selected tab.
func (m AppModel) ActiveTab() chart.TabID {
	return chart.Tabs[m.active].ID
}

// State returns the chart state.
func (m AppModel) State() *chart.State {
	return m.state
}

// Update handles key presses, load results and window resizes.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.next):
			m.active = (m.active + 1) % len(chart.Tabs)
			return m, nil
		case key.Matches(msg, m.keys.prev):
			m.active = (m.active + len(chart.Tabs) - 1) % len(chart.Tabs)
			return m, nil
		case key.Matches(msg, m.keys.reload):
			wasLoading := m.state.IsLoading()
			cmd := m.loadAll()
			if !wasLoading {
				cmd = tea.Batch(cmd, m.spinner.Tick)
			}
			return m, cmd
		}

	case TabLoadedMsg:
		m.state.Apply(msg.Result)
		if t, ok := m.tables[msg.Result.Tab]; ok && msg.Result.Err == nil {
			t.SetRows(rowsFor(msg.Result))
			t.GotoTop()
			m.tables[msg.Result.Tab] = t
		}
		return m, nil

	case spinner.TickMsg:
		if !m.state.IsLoading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		// title, tab bar, description, help and margins
		h := msg.Height - 12
		if h < 3 {
			h = 3
		}
		for id, t := range m.tables {
			t.SetHeight(h)
			m.tables[id] = t
		}
		return m, nil
	}

	// Scrolling goes to the table of the active tab
	if t, ok := m.tables[m.ActiveTab()]; ok {
		var cmd tea.Cmd
		t, cmd = t.Update(msg)
		m.tables[m.ActiveTab()] = t
		return m, cmd
	}
	return m, nil
}

// View renders the title, the tab bar, the active tab and the help line.
func (m AppModel) View() string {
	title := titleStyle.Render("Patient Chart")
	if id := m.loader.PatientID(); id != "" {
		title = lipgloss.JoinHorizontal(lipgloss.Top, title, " ", descriptionStyle.Render("Patient/"+id))
	}

	tab := chart.Tabs[m.active]
	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		m.tabBar(),
		descriptionStyle.Render(tab.Description),
		"",
		m.tabView(tab.ID),
		"",
		m.help.View(m.keys),
	)
	return docStyle.Render(content)
}

func (m AppModel) tabBar() string {
	tabs := make([]string, 0, len(chart.Tabs))
	for i, t := range chart.Tabs {
		label := fmt.Sprintf("%s %s", t.Icon, t.Label)
		if m.state.Tab(t.ID).Loading {
			label += " " + m.spinner.View()
		}
		if i == m.active {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)
}

func (m AppModel) tabView(id chart.TabID) string {
	ts := m.state.Tab(id)
	if !ts.Loaded {
		if ts.Loading {
			return fmt.Sprintf("%s Loading %s...", m.spinner.View(), strings.ToLower(id.Tab().Label))
		}
		return ""
	}
	if ts.Result.Err != nil {
		return errorMessageStyle(fmt.Sprintf("Failed to load %s: %v", strings.ToLower(id.Tab().Label), ts.Result.Err))
	}

	if id == chart.TabDemographics {
		return demographicsPanel(ts.Result.Patient, m.width)
	}

	t, ok := m.tables[id]
	if !ok {
		return ""
	}
	if len(t.Rows()) == 0 {
		return emptyMessageStyle(emptyMessage(id))
	}
	view := t.View()
	if total := ts.Result.Total; total != nil && *total > len(t.Rows()) {
		view = lipgloss.JoinVertical(lipgloss.Left, view,
			emptyMessageStyle(fmt.Sprintf("Showing %d of %d", len(t.Rows()), *total)))
	}
	return view
}
