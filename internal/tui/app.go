// Package tui is the terminal front end: a price table, a coin detail page
// and a candlestick chart.
package tui

import (
	"context"
	"time"

	"criptodash/internal/domain"
	"criptodash/internal/job"
	"criptodash/internal/service"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Services is what the views need from the price service.
type Services interface {
	Coins() []string
	RefreshPrices(ctx context.Context) (map[string]domain.PriceQuote, error)
	RefreshCoin(ctx context.Context, coin string) (domain.PriceQuote, error)
	CachedPrices(ctx context.Context) *service.CachedQuotes
	CoinDetail(ctx context.Context, coin string) service.DetailResult
	ChartFromStore(ctx context.Context, coin string, tf domain.Timeframe) service.ChartResult
	Backfill(ctx context.Context, coin string, days int) (int, error)
	LoadRefreshSettings(ctx context.Context, def service.RefreshSettings) service.RefreshSettings
	SaveRefreshSettings(ctx context.Context, rs service.RefreshSettings) error
	LoadChartSettings(ctx context.Context, def service.ChartSettings) service.ChartSettings
	SaveChartSettings(ctx context.Context, cs service.ChartSettings) error
	Export(ctx context.Context, path string) (int, error)
	Import(ctx context.Context, path string) ([]string, error)
}

type Options struct {
	RefreshInterval time.Duration
	ChartInterval   time.Duration
	ExportPath      string
}

const (
	intervalStep = 5 * time.Second
	minInterval  = time.Second
)

type view int

const (
	viewDashboard view = iota
	viewDetail
	viewChart
)

// Model is the root Bubble Tea model.
type Model struct {
	ctx    context.Context
	svc    Services
	loop   *job.Loop
	bridge *Bridge
	opts   Options

	view    view
	width   int
	height  int
	help    help.Model
	spinner spinner.Model

	dash   *dashboard
	detail *detailView
	chart  *chartView
	prompt *prompt

	chartSeq int
}

// New builds the model. Scheduler results reach it through bridge, which
// must be attached to the program before it runs.
func New(ctx context.Context, svc Services, loop *job.Loop, bridge *Bridge, opts Options) *Model {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 10 * time.Second
	}
	if opts.ChartInterval <= 0 {
		opts.ChartInterval = 10 * time.Second
	}
	m := &Model{
		ctx:     ctx,
		svc:     svc,
		loop:    loop,
		bridge:  bridge,
		opts:    opts,
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.dash = newDashboard(m)
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCached())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.dash.resize(msg.Width, msg.Height)
		if m.detail != nil {
			m.detail.resize(msg.Width, msg.Height)
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		if m.prompt != nil {
			return m, m.updatePrompt(msg)
		}
		switch m.view {
		case viewDetail:
			return m, m.updateDetailKeys(msg)
		case viewChart:
			return m, m.updateChartKeys(msg)
		default:
			return m, m.updateDashboardKeys(msg)
		}
	case cachedMsg:
		m.dash.applyCached(msg)
		return m, nil
	case pricesMsg:
		m.dash.applyPrices(msg)
		return m, nil
	case detailMsg:
		if m.detail != nil && m.detail.coin == msg.coin {
			m.detail.apply(msg.res)
		}
		return m, nil
	case chartSettingsMsg:
		if m.chart != nil && m.chart.id == msg.id {
			m.chart.applySettings(msg.settings)
			return m, m.redraw()
		}
		return m, nil
	case chartMsg:
		if m.chart != nil && m.chart.id == msg.id {
			m.chart.apply(msg)
		}
		return m, nil
	case backfillMsg:
		if m.chart != nil && m.chart.id == msg.id {
			if m.chart.applyBackfill(msg) {
				return m, m.redraw()
			}
		}
		return m, nil
	case transferMsg:
		m.dash.applyTransfer(msg)
		if !msg.export && msg.err == nil {
			return m, m.loadCached()
		}
		return m, nil
	case savedMsg:
		if msg.err != nil {
			m.dash.status = status{statusWarn, "could not save settings: " + service.UserMessage(msg.err)}
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) View() string {
	var body string
	switch m.view {
	case viewDetail:
		body = m.detail.View(m)
	case viewChart:
		body = m.chart.View(m)
	default:
		body = m.dash.View(m)
	}
	if m.prompt != nil {
		body = lipgloss.JoinVertical(lipgloss.Left, body, "", m.prompt.View())
	}
	return body
}

func (m *Model) quit() tea.Cmd {
	m.closeChart()
	m.dash.sched.Close()
	return tea.Quit
}

func (m *Model) loadCached() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	def := service.RefreshSettings{Interval: m.opts.RefreshInterval}
	return func() tea.Msg {
		return cachedMsg{
			cached:   svc.CachedPrices(ctx),
			settings: svc.LoadRefreshSettings(ctx, def),
		}
	}
}

func clampInterval(d time.Duration) time.Duration {
	if d < minInterval {
		return minInterval
	}
	return d
}
