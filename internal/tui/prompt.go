package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// prompt asks for the export or import file path.
type prompt struct {
	export bool
	input  textinput.Model
}

func (m *Model) openPrompt(export bool, path string) tea.Cmd {
	ti := textinput.New()
	ti.Prompt = "export to: "
	if !export {
		ti.Prompt = "import from: "
	}
	ti.CharLimit = 512
	ti.Width = 60
	ti.SetValue(path)
	ti.CursorEnd()
	ti.Focus()
	m.prompt = &prompt{export: export, input: ti}
	return textinput.Blink
}

func (m *Model) updatePrompt(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompt = nil
		return nil
	case tea.KeyEnter:
		p := m.prompt
		m.prompt = nil
		path := strings.TrimSpace(p.input.Value())
		if path == "" {
			return nil
		}
		return m.transfer(p.export, path)
	}
	var cmd tea.Cmd
	m.prompt.input, cmd = m.prompt.input.Update(msg)
	return cmd
}

func (m *Model) transfer(export bool, path string) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	if export {
		m.dash.status = status{statusInfo, "exporting..."}
		return func() tea.Msg {
			n, err := svc.Export(ctx, path)
			return transferMsg{export: true, path: path, n: n, err: err}
		}
	}
	m.dash.status = status{statusInfo, "importing..."}
	return func() tea.Msg {
		coins, err := svc.Import(ctx, path)
		return transferMsg{path: path, n: len(coins), err: err}
	}
}

func (p *prompt) View() string {
	return boxStyle.Render(p.input.View() + "\n" + dimStyle.Render("enter to confirm, esc to cancel"))
}
