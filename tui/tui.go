// Package tui provides an interactive terminal review screen for a library
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luinbytes/iconic/bundle"
	"github.com/luinbytes/iconic/workspace"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2)

	itemStyle = lipgloss.NewStyle().PaddingLeft(4)

	cursorStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	checkedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	uncheckedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA"))

	dupStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Strikethrough(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	pickerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// Library is what the review screen edits.
type Library interface {
	List(q workspace.Query) []bundle.Bundle
	Categories() []string
	Counts() workspace.Counts
	QuickTag(ids []string, category string) (int, error)
	SetTags(ids []string, tags []string) (int, error)
	ToggleDuplicate(id string, ids ...string) (bool, error)
}

// keyMap defines keybindings for the TUI
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Toggle    key.Binding
	ToggleAll key.Binding
	Tag       key.Binding
	Clear     key.Binding
	Duplicate key.Binding
	Filter    key.Binding
	Sort      key.Binding
	Search    key.Binding
	Confirm   key.Binding
	Cancel    key.Binding
	Quit      key.Binding
	Help      key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "move up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "move down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("space", " "),
		key.WithHelp("space", "toggle selection"),
	),
	ToggleAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "select all visible"),
	),
	Tag: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "tag"),
	),
	Clear: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "clear tags"),
	),
	Duplicate: key.NewBinding(
		key.WithKeys("d", "delete"),
		key.WithHelp("d", "toggle duplicate"),
	),
	Filter: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "cycle filter"),
	),
	Sort: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "cycle sort"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "apply"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
}

// ShortHelp returns keybindings to be shown in the mini help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tag, k.Duplicate, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle, k.ToggleAll},
		{k.Tag, k.Clear, k.Duplicate},
		{k.Filter, k.Sort, k.Search, k.Help, k.Quit},
	}
}

type mode int

const (
	modeBrowse mode = iota
	modePick
	modeSearch
)

var filters = []workspace.StatusFilter{
	workspace.FilterAll,
	workspace.FilterUncategorized,
	workspace.FilterAnalyzed,
	workspace.FilterDuplicates,
	workspace.FilterError,
}

var sorts = []workspace.SortOrder{
	workspace.SortNone,
	workspace.SortNameAsc,
	workspace.SortNameDesc,
	workspace.SortDateNew,
	workspace.SortDateOld,
}

// Model is the TUI state
type Model struct {
	lib      Library
	rows     []bundle.Bundle
	selected map[string]bool
	cursor   int
	offset   int

	mode       mode
	pickCursor int
	search     textinput.Model

	filter int
	sort   int

	showHelp  bool
	quitting  bool
	width     int
	height    int
	keys      keyMap
	help      help.Model
	statusMsg string
	edits     int
}

// New creates a new TUI model
func New(lib Library) Model {
	ti := textinput.New()
	ti.Placeholder = "name contains..."
	ti.Prompt = "/ "
	m := Model{
		lib:      lib,
		selected: map[string]bool{},
		keys:     keys,
		help:     help.New(),
		search:   ti,
		height:   24,
	}
	m.reload()
	return m
}

func (m *Model) query() workspace.Query {
	return workspace.Query{
		Status: filters[m.filter],
		Search: m.search.Value(),
		Sort:   sorts[m.sort],
	}
}

// reload refreshes rows from the library, keeping the cursor in range.
func (m *Model) reload() {
	m.rows = m.lib.List(m.query())
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.scroll()
}

func (m *Model) pageSize() int {
	n := m.height - 8
	if n < 3 {
		n = 3
	}
	return n
}

func (m *Model) scroll() {
	page := m.pageSize()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
}

// targets returns the selected ids, or the row under the cursor.
func (m *Model) targets() []string {
	var ids []string
	for _, b := range m.rows {
		if m.selected[b.ID] {
			ids = append(ids, b.ID)
		}
	}
	if len(ids) == 0 && m.cursor < len(m.rows) {
		ids = []string{m.rows[m.cursor].ID}
	}
	return ids
}

func (m *Model) report(n int, err error, format string, args ...any) {
	if err != nil {
		m.statusMsg = errStyle.Render(err.Error())
		return
	}
	m.edits += n
	m.statusMsg = fmt.Sprintf(format, args...)
}

// Init initializes the TUI
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and user input
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.scroll()

	case tea.KeyMsg:
		switch m.mode {
		case modePick:
			return m.updatePicker(msg)
		case modeSearch:
			return m.updateSearch(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.scroll()
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
			m.scroll()
		}

	case key.Matches(msg, m.keys.Toggle):
		if m.cursor < len(m.rows) {
			id := m.rows[m.cursor].ID
			m.selected[id] = !m.selected[id]
			if !m.selected[id] {
				delete(m.selected, id)
			}
		}

	case key.Matches(msg, m.keys.ToggleAll):
		all := len(m.rows) > 0
		for _, b := range m.rows {
			if !m.selected[b.ID] {
				all = false
				break
			}
		}
		for _, b := range m.rows {
			if all {
				delete(m.selected, b.ID)
			} else {
				m.selected[b.ID] = true
			}
		}

	case key.Matches(msg, m.keys.Cancel):
		m.selected = map[string]bool{}

	case key.Matches(msg, m.keys.Tag):
		if len(m.rows) > 0 && len(m.lib.Categories()) > 0 {
			m.mode = modePick
			m.pickCursor = 0
		}

	case key.Matches(msg, m.keys.Clear):
		ids := m.targets()
		n, err := m.lib.SetTags(ids, nil)
		m.report(n, err, "Cleared tags on %d bundle(s)", n)
		m.reload()

	case key.Matches(msg, m.keys.Duplicate):
		ids := m.targets()
		if len(ids) > 0 {
			dup, err := m.lib.ToggleDuplicate(ids[0], ids[1:]...)
			verb := "Restored"
			if dup {
				verb = "Marked"
			}
			m.report(len(ids), err, "%s %d bundle(s) as duplicate", verb, len(ids))
			m.reload()
		}

	case key.Matches(msg, m.keys.Filter):
		m.filter = (m.filter + 1) % len(filters)
		m.reload()

	case key.Matches(msg, m.keys.Sort):
		m.sort = (m.sort + 1) % len(sorts)
		m.reload()

	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		return m, m.search.Focus()
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cats := m.lib.Categories()
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.mode = modeBrowse
	case key.Matches(msg, m.keys.Up):
		if m.pickCursor > 0 {
			m.pickCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.pickCursor < len(cats)-1 {
			m.pickCursor++
		}
	case key.Matches(msg, m.keys.Confirm):
		if m.pickCursor < len(cats) {
			cat := cats[m.pickCursor]
			n, err := m.lib.QuickTag(m.targets(), cat)
			m.report(n, err, "Categorized %d bundle(s) as %q", n, cat)
			m.selected = map[string]bool{}
			m.reload()
		}
		m.mode = modeBrowse
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm), key.Matches(msg, m.keys.Cancel):
		if key.Matches(msg, m.keys.Cancel) {
			m.search.SetValue("")
		}
		m.search.Blur()
		m.mode = modeBrowse
		m.reload()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.reload()
	return m, cmd
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return fmt.Sprintf("Goodbye! %d edit(s) made.\n", m.edits)
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render(" Iconic Review "))
	s.WriteString("\n\n")

	c := m.lib.Counts()
	s.WriteString(headerStyle.Render(fmt.Sprintf("%d bundles", c.Total)))
	s.WriteString(infoStyle.Render(fmt.Sprintf("  |  %d uncategorized  |  %d duplicates  |  filter: %s  |  sort: %s",
		c.Uncategorized, c.Duplicates, filters[m.filter], sortLabel(sorts[m.sort]))))
	s.WriteString("\n")
	if m.mode == modeSearch || m.search.Value() != "" {
		s.WriteString(m.search.View())
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if len(m.rows) == 0 {
		s.WriteString(infoStyle.Render("No bundles match."))
		s.WriteString("\n")
	} else {
		s.WriteString(m.renderRows())
	}

	if m.mode == modePick {
		s.WriteString("\n")
		s.WriteString(m.renderPicker())
		s.WriteString("\n")
	}

	if m.statusMsg != "" {
		s.WriteString("\n")
		s.WriteString(infoStyle.Render(m.statusMsg))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	if m.showHelp {
		s.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		s.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return s.String()
}

func (m Model) renderRows() string {
	var s strings.Builder
	end := m.offset + m.pageSize()
	if end > len(m.rows) {
		end = len(m.rows)
	}
	for i := m.offset; i < end; i++ {
		b := m.rows[i]
		var line strings.Builder

		if m.selected[b.ID] {
			line.WriteString(checkedStyle.Render("[✓] "))
		} else {
			line.WriteString(uncheckedStyle.Render("[ ] "))
		}

		name := b.Name
		if b.IsDuplicate {
			name = dupStyle.Render(name)
		}
		if i == m.cursor {
			line.WriteString(cursorStyle.Render("> " + name))
		} else {
			line.WriteString(itemStyle.Render(name))
		}

		tags := "untagged"
		if len(b.Tags) > 0 {
			tags = strings.Join(b.Tags, ", ")
		}
		line.WriteString(infoStyle.Render(fmt.Sprintf(" [%s] %s, %s", tags, b.Status, formatBytes(b.Size))))

		s.WriteString(line.String())
		s.WriteString("\n")
	}
	if len(m.rows) > end-m.offset {
		s.WriteString(infoStyle.Render(fmt.Sprintf("  %d-%d of %d", m.offset+1, end, len(m.rows))))
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) renderPicker() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("Tag %d bundle(s) as:", len(m.targets()))))
	s.WriteString("\n")
	for i, c := range m.lib.Categories() {
		if i == m.pickCursor {
			s.WriteString(cursorStyle.Render("> " + c))
		} else {
			s.WriteString(itemStyle.Render(c))
		}
		s.WriteString("\n")
	}
	return pickerStyle.Render(strings.TrimRight(s.String(), "\n"))
}

func sortLabel(o workspace.SortOrder) string {
	if o == workspace.SortNone {
		return "scan order"
	}
	return string(o)
}

// Run starts the review screen and returns the number of edits made.
func Run(lib Library) (int, error) {
	p := tea.NewProgram(New(lib), tea.WithAltScreen())
	m, err := p.Run()
	if err != nil {
		return 0, err
	}
	return m.(Model).edits, nil
}

// formatBytes formats bytes into human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

var _ Library = (*workspace.Workspace)(nil)
