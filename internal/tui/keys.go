package tui

import "github.com/charmbracelet/bubbles/key"

type dashboardKeys struct {
	Refresh  key.Binding
	Auto     key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Details  key.Binding
	Chart    key.Binding
	Export   key.Binding
	Import   key.Binding
	Quit     key.Binding
	Up, Down key.Binding
}

func (k dashboardKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Auto, k.Faster, k.Details, k.Chart, k.Export, k.Import, k.Quit}
}

func (k dashboardKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

type chartKeys struct {
	Timeframe key.Binding
	Live      key.Binding
	Refresh   key.Binding
	Backfill  key.Binding
	Faster    key.Binding
	Slower    key.Binding
	Back      key.Binding
}

func (k chartKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Timeframe, k.Live, k.Refresh, k.Backfill, k.Faster, k.Back}
}

func (k chartKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

type detailKeys struct {
	Chart key.Binding
	Back  key.Binding
}

func (k detailKeys) ShortHelp() []key.Binding { return []key.Binding{k.Chart, k.Back} }

func (k detailKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var (
	dashKeys = dashboardKeys{
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Auto:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto-refresh")),
		Faster:  key.NewBinding(key.WithKeys("-"), key.WithHelp("+/-", "interval")),
		Slower:  key.NewBinding(key.WithKeys("+", "=")),
		Details: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Chart:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "chart")),
		Export:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export")),
		Import:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "import")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Up:      key.NewBinding(key.WithKeys("up", "k")),
		Down:    key.NewBinding(key.WithKeys("down", "j")),
	}

	chKeys = chartKeys{
		Timeframe: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "timeframe")),
		Live:      key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "live")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Backfill:  key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "backfill 1d")),
		Faster:    key.NewBinding(key.WithKeys("-"), key.WithHelp("+/-", "poll interval")),
		Slower:    key.NewBinding(key.WithKeys("+", "=")),
		Back:      key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("esc", "back")),
	}

	detKeys = detailKeys{
		Chart: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "chart")),
		Back:  key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("esc", "back")),
	}
)
