package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"criptodash/internal/domain"
	"criptodash/internal/job"
	"criptodash/internal/service"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxRefreshInterval = time.Hour

type dashboard struct {
	table   table.Model
	sched   *job.Scheduler
	coins   []string
	quotes  map[string]domain.PriceQuote
	updated map[string]time.Time
	asOf    time.Time
	status  status
}

func newDashboard(m *Model) *dashboard {
	svc, bridge := m.svc, m.bridge
	fetch := func(ctx context.Context) func() {
		quotes, err := svc.RefreshPrices(ctx)
		msg := pricesMsg{quotes: quotes, err: err, at: time.Now()}
		return func() { bridge.Send(msg) }
	}

	cols := []table.Column{
		{Title: "Coin", Width: 12},
		{Title: "USD", Width: 16},
		{Title: "BRL", Width: 18},
		{Title: "24h", Width: 9},
		{Title: "Updated", Width: 9},
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(len(svc.Coins())+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	d := &dashboard{
		table: t,
		sched: job.NewScheduler(m.ctx, m.loop, job.Options{
			Name:     "dashboard",
			Interval: m.opts.RefreshInterval,
		}, fetch),
		coins:   svc.Coins(),
		quotes:  make(map[string]domain.PriceQuote),
		updated: make(map[string]time.Time),
		status:  status{statusInfo, "loading cached prices..."},
	}
	d.renderRows()
	return d
}

func (d *dashboard) resize(width, height int) {
	if h := height - 8; h > 3 && h < len(d.coins)+1 {
		d.table.SetHeight(h)
	}
}

func (d *dashboard) renderRows() {
	rows := make([]table.Row, 0, len(d.coins))
	for _, coin := range d.coins {
		q, ok := d.quotes[coin]
		if !ok {
			rows = append(rows, table.Row{coin, "-", "-", "-", "-"})
			continue
		}
		rows = append(rows, table.Row{
			coin,
			formatUSD(q.USD),
			formatBRL(q.BRL),
			changeCell(q.USD24hChange),
			shortClock(d.updated[coin]),
		})
	}
	d.table.SetRows(rows)
}

// changeCell is plain text: table cells are width-padded and styling would
// skew the padding.
func changeCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func shortClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04:05")
}

func (d *dashboard) selectedCoin() string {
	if i := d.table.Cursor(); i >= 0 && i < len(d.coins) {
		return d.coins[i]
	}
	return ""
}

func (d *dashboard) applyCached(msg cachedMsg) {
	if msg.cached != nil {
		for coin, q := range msg.cached.Quotes {
			d.quotes[coin] = q
			d.updated[coin] = msg.cached.AsOf
		}
		d.asOf = msg.cached.AsOf
		d.renderRows()
		src := "stored"
		if msg.cached.FromMirror {
			src = "mirrored"
		}
		d.status = status{statusInfo, fmt.Sprintf("showing %s prices from %s", src, formatClock(d.asOf))}
	} else {
		d.status = status{statusInfo, "no cached data, press r to refresh"}
	}

	d.sched.SetInterval(clampInterval(msg.settings.Interval))
	if msg.settings.AutoRefresh {
		d.sched.Enable()
	}
}

// applyPrices keeps the previous quotes on error.
func (d *dashboard) applyPrices(msg pricesMsg) {
	if msg.err != nil {
		d.status = status{statusErr, "error: " + service.UserMessage(msg.err)}
		return
	}
	for coin, q := range msg.quotes {
		d.quotes[coin] = q
		d.updated[coin] = msg.at
	}
	d.asOf = msg.at
	d.renderRows()
	d.status = status{statusOK, "updated at " + formatClock(msg.at)}
}

func (d *dashboard) applyTransfer(msg transferMsg) {
	switch {
	case msg.err != nil:
		d.status = status{statusErr, "error: " + service.UserMessage(msg.err)}
	case msg.export:
		d.status = status{statusOK, fmt.Sprintf("exported %d coins to %s", msg.n, msg.path)}
	default:
		d.status = status{statusOK, fmt.Sprintf("imported %d coins from %s", msg.n, msg.path)}
	}
}

func (m *Model) updateDashboardKeys(msg tea.KeyMsg) tea.Cmd {
	d := m.dash
	switch {
	case key.Matches(msg, dashKeys.Quit):
		return m.quit()
	case key.Matches(msg, dashKeys.Refresh):
		if d.sched.Trigger() {
			d.status = status{statusInfo, "loading prices..."}
		} else {
			d.status = status{statusWarn, "refresh already in progress"}
		}
		return nil
	case key.Matches(msg, dashKeys.Auto):
		if d.sched.Enabled() {
			d.sched.Disable()
			d.status = status{statusWarn, "auto-refresh off"}
		} else {
			d.sched.Enable()
			d.status = status{statusInfo, "auto-refresh on"}
		}
		return m.saveRefreshSettings()
	case key.Matches(msg, dashKeys.Slower):
		d.sched.SetInterval(min(d.sched.Interval()+intervalStep, maxRefreshInterval))
		return m.saveRefreshSettings()
	case key.Matches(msg, dashKeys.Faster):
		d.sched.SetInterval(max(d.sched.Interval()-intervalStep, intervalStep))
		return m.saveRefreshSettings()
	case key.Matches(msg, dashKeys.Details):
		if coin := d.selectedCoin(); coin != "" {
			return m.openDetail(coin)
		}
		return nil
	case key.Matches(msg, dashKeys.Chart):
		if coin := d.selectedCoin(); coin != "" {
			return m.openChart(coin)
		}
		return nil
	case key.Matches(msg, dashKeys.Export):
		return m.openPrompt(true, m.opts.ExportPath)
	case key.Matches(msg, dashKeys.Import):
		return m.openPrompt(false, m.opts.ExportPath)
	}

	var cmd tea.Cmd
	d.table, cmd = d.table.Update(msg)
	return cmd
}

func (m *Model) saveRefreshSettings() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	rs := service.RefreshSettings{AutoRefresh: m.dash.sched.Enabled(), Interval: m.dash.sched.Interval()}
	return func() tea.Msg {
		return savedMsg{err: svc.SaveRefreshSettings(ctx, rs)}
	}
}

func (d *dashboard) View(m *Model) string {
	auto := dimStyle.Render("off")
	if d.sched.Enabled() {
		auto = upStyle.Render("on")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("CriptoDash"),
		"   ",
		dimStyle.Render("auto-refresh: "), auto,
		dimStyle.Render(fmt.Sprintf(" every %s", d.sched.Interval())),
	)

	busy := ""
	if d.sched.InFlight() {
		busy = m.spinner.View() + " "
	}

	var b strings.Builder
	b.WriteString(header + "\n\n")
	b.WriteString(boxStyle.Render(d.table.View()) + "\n")
	b.WriteString(dimStyle.Render("last update: "+formatClock(d.asOf)) + "\n")
	b.WriteString(busy + d.status.View() + "\n\n")
	b.WriteString(m.help.View(dashKeys))
	return b.String()
}
