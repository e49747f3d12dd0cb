package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/host"
)

// Controller receives the input the terminal produces.
type Controller interface {
	Dispatch(msg contract.Message)
	Reload()
}

type viewMsg struct {
	view contract.View
}

type statusMsg struct {
	status host.Status
}

type model struct {
	ctl       Controller
	keys      keyMap
	help      help.Model
	title     string
	path      string
	view      contract.View
	status    host.Status
	hasView   bool
	hasStatus bool
	reloading bool
}

func newModel(title, path string, ctl Controller) *model {
	return &model{
		ctl:   ctl,
		keys:  defaultKeys(),
		help:  help.New(),
		title: title,
		path:  path,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case viewMsg:
		m.view = msg.view
		m.hasView = true

	case statusMsg:
		m.status = msg.status
		m.hasStatus = true
		m.reloading = msg.status.Event == host.EventReloading
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Reload):
		if m.ctl != nil {
			m.ctl.Reload()
		}
		return nil
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil
	}

	if m.ctl == nil {
		return nil
	}
	for _, b := range m.view.Buttons() {
		if b.Key == msg.String() {
			m.ctl.Dispatch(b.Message)
			return nil
		}
	}
	if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
		m.ctl.Dispatch(contract.Message{Kind: contract.KindKey, Arg: int64(msg.Runes[0])})
	}
	return nil
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	if m.path != "" {
		b.WriteString(" ")
		b.WriteString(pathStyle.Render(m.path))
	}
	b.WriteString("\n")

	var body string
	switch {
	case m.reloading:
		// the previous view may describe state the new unit renders differently
		body = dimStyle.Render("reloading...")
	case !m.hasView:
		body = dimStyle.Render("loading...")
	default:
		body = renderView(m.view)
	}
	b.WriteString(bodyStyle.Render(body))
	b.WriteString("\n")

	if m.hasStatus {
		b.WriteString(renderStatus(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func renderView(v contract.View) string {
	var b strings.Builder
	for _, e := range v.Elements {
		switch e.Type {
		case contract.ElementText:
			b.WriteString(e.Text)
		case contract.ElementInt:
			b.WriteString(valueStyle.Render(strconv.FormatInt(e.Value, 10)))
		case contract.ElementBreak:
			b.WriteString("\n")
		case contract.ElementButton:
			b.WriteString(buttonStyle.Render(e.Key))
			b.WriteString(" ")
			b.WriteString(e.Text)
			b.WriteString("  ")
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func renderStatus(st host.Status) string {
	line := fmt.Sprintf("%s · gen %d", st.Event, st.Generation)
	if st.Unit != "" {
		line += " · " + st.Unit
	}
	if !st.Time.IsZero() {
		line += " · " + st.Time.Format("15:04:05")
	}
	if st.Err != nil {
		return errorStyle.Render(line + ": " + st.Err.Error())
	}
	return statusStyle.Render(line)
}
