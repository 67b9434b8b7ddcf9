package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"criptodash/internal/candle"
	"criptodash/internal/domain"
	"criptodash/internal/job"
	"criptodash/internal/service"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultTimeframe = domain.Timeframe5m
	backfillDays     = 1
	maxPollInterval  = 5 * time.Minute
	chartRows        = 16
	axisWidth        = 14
)

type chartView struct {
	id    int
	coin  string
	tf    atomic.Value // domain.Timeframe, read by the fetch goroutine
	sched *job.Scheduler

	res        service.ChartResult
	loaded     bool
	backfill   bool
	emptyFetch bool // the one fetch for an empty store was requested
	status     status
}

func (c *chartView) timeframe() domain.Timeframe { return c.tf.Load().(domain.Timeframe) }

func (m *Model) openChart(coin string) tea.Cmd {
	m.closeChart()
	m.chartSeq++
	c := &chartView{
		id:     m.chartSeq,
		coin:   coin,
		status: status{statusInfo, "loading history..."},
	}
	c.tf.Store(defaultTimeframe)

	svc, bridge, id := m.svc, m.bridge, c.id
	fetch := func(ctx context.Context) func() {
		_, err := svc.RefreshCoin(ctx, coin)
		res := svc.ChartFromStore(ctx, coin, c.timeframe())
		msg := chartMsg{id: id, res: res, fetchErr: err, fetched: true, at: time.Now()}
		return func() { bridge.Send(msg) }
	}
	c.sched = job.NewScheduler(m.ctx, m.loop, job.Options{
		Name:     "chart:" + coin,
		Interval: m.opts.ChartInterval,
	}, fetch)

	m.chart = c
	m.view = viewChart

	ctx, def := m.ctx, service.ChartSettings{Interval: m.opts.ChartInterval, Timeframe: defaultTimeframe}
	return func() tea.Msg {
		return chartSettingsMsg{id: id, settings: svc.LoadChartSettings(ctx, def)}
	}
}

// closeChart stops live polling. A fetch already running finishes but its
// result is dropped.
func (m *Model) closeChart() {
	if m.chart == nil {
		return
	}
	m.chart.sched.Close()
	m.chart = nil
}

func (c *chartView) applySettings(cs service.ChartSettings) {
	if cs.Timeframe.Duration() > 0 {
		c.tf.Store(cs.Timeframe)
	}
	c.sched.SetInterval(clampInterval(cs.Interval))
}

// redraw rebuilds the chart from stored history without fetching.
func (m *Model) redraw() tea.Cmd {
	c := m.chart
	ctx, svc, id, coin, tf := m.ctx, m.svc, c.id, c.coin, c.timeframe()
	return func() tea.Msg {
		return chartMsg{id: id, res: svc.ChartFromStore(ctx, coin, tf), at: time.Now()}
	}
}

func (c *chartView) apply(msg chartMsg) {
	// a redraw queued before a timeframe switch is stale
	if msg.res.Timeframe != c.timeframe() {
		return
	}
	c.res = msg.res
	c.loaded = true
	switch {
	case msg.fetchErr != nil:
		c.status = status{statusErr, "error: " + service.UserMessage(msg.fetchErr)}
	case msg.res.FetchErr != nil:
		c.status = status{statusErr, "error: " + service.UserMessage(msg.res.FetchErr)}
	case msg.res.Kind == service.ChartEmpty && !msg.fetched && !c.emptyFetch:
		// one fetch per view, run by the scheduler so it shows as in flight
		c.emptyFetch = true
		c.sched.Trigger()
		c.status = status{statusInfo, "no history yet, fetching..."}
	case msg.res.Kind == service.ChartEmpty:
		c.status = status{statusWarn, "no history available"}
	case !msg.fetched && c.status.kind == statusOK:
		// keep the backfill or previous update message on a plain redraw
	default:
		c.status = status{statusOK, "updated at " + formatClock(msg.at)}
	}
}

// applyBackfill reports whether new history was stored.
func (c *chartView) applyBackfill(msg backfillMsg) bool {
	c.backfill = false
	if msg.err != nil {
		c.status = status{statusErr, "backfill failed: " + service.UserMessage(msg.err)}
		return false
	}
	c.status = status{statusOK, fmt.Sprintf("backfilled %d points", msg.n)}
	return msg.n > 0
}

func (m *Model) updateChartKeys(msg tea.KeyMsg) tea.Cmd {
	c := m.chart
	switch {
	case key.Matches(msg, chKeys.Back):
		m.closeChart()
		m.view = viewDashboard
		return nil
	case key.Matches(msg, chKeys.Timeframe):
		c.tf.Store(candle.NextTimeframe(c.timeframe()))
		return tea.Batch(m.redraw(), m.saveChartSettings())
	case key.Matches(msg, chKeys.Live):
		if c.sched.Enabled() {
			c.sched.Disable()
			c.status = status{statusWarn, "live off"}
		} else {
			c.sched.Enable()
			c.status = status{statusInfo, fmt.Sprintf("live every %s", c.sched.Interval())}
		}
		return nil
	case key.Matches(msg, chKeys.Refresh):
		if !c.sched.Trigger() {
			c.status = status{statusWarn, "update already in progress"}
		}
		return nil
	case key.Matches(msg, chKeys.Backfill):
		if c.backfill {
			return nil
		}
		c.backfill = true
		c.status = status{statusInfo, "backfilling..."}
		ctx, svc, id, coin := m.ctx, m.svc, c.id, c.coin
		return func() tea.Msg {
			n, err := svc.Backfill(ctx, coin, backfillDays)
			return backfillMsg{id: id, n: n, err: err}
		}
	case key.Matches(msg, chKeys.Slower):
		c.sched.SetInterval(min(c.sched.Interval()+intervalStep, maxPollInterval))
		return m.saveChartSettings()
	case key.Matches(msg, chKeys.Faster):
		c.sched.SetInterval(max(c.sched.Interval()-intervalStep, intervalStep))
		return m.saveChartSettings()
	}
	return nil
}

func (m *Model) saveChartSettings() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	cs := service.ChartSettings{Interval: m.chart.sched.Interval(), Timeframe: m.chart.timeframe()}
	return func() tea.Msg {
		return savedMsg{err: svc.SaveChartSettings(ctx, cs)}
	}
}

func (c *chartView) header() string {
	live := dimStyle.Render("off")
	if c.sched.Enabled() {
		live = upStyle.Render("on")
	}
	parts := []string{
		titleStyle.Render(c.coin + " / usd"),
		dimStyle.Render("tf ") + string(c.timeframe()),
		dimStyle.Render("live ") + live,
		dimStyle.Render("every ") + c.sched.Interval().String(),
	}
	switch c.res.Kind {
	case service.ChartCandles:
		last := c.res.Candles[len(c.res.Candles)-1]
		parts = append(parts, dimStyle.Render("close ")+formatUSD(last.Close))
		if c.res.HasEMA {
			parts = append(parts, infoStyle.Render("EMA9 ")+formatUSD(c.res.EMA))
		}
	case service.ChartLine:
		parts = append(parts, dimStyle.Render("last ")+formatUSD(c.res.Line[len(c.res.Line)-1].Price))
	}
	return strings.Join(parts, "   ")
}

func (c *chartView) View(m *Model) string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	cols := width - axisWidth - 4

	var body string
	switch {
	case !c.loaded:
		body = m.spinner.View() + " loading..."
	case c.res.Kind == service.ChartCandles:
		body = renderCandles(c.res.Candles, cols, chartRows)
	case c.res.Kind == service.ChartLine:
		body = dimStyle.Render("not enough data for candles, showing raw prices") + "\n" +
			renderLine(c.res.Line, cols, chartRows)
	default:
		body = dimStyle.Render("no history available")
	}

	busy := ""
	if c.sched.InFlight() || c.backfill {
		busy = m.spinner.View() + " "
	}
	return c.header() + "\n\n" + body + "\n\n" + busy + c.status.View() + "\n\n" + m.help.View(chKeys)
}

// priceScale maps prices onto rows, row 0 being the top.
type priceScale struct {
	lo, hi float64
	rows   int
}

func newScale(lo, hi float64, rows int) priceScale {
	if hi <= lo {
		pad := math.Abs(lo) * 0.01
		if pad == 0 {
			pad = 1
		}
		lo, hi = lo-pad, hi+pad
	}
	return priceScale{lo: lo, hi: hi, rows: rows}
}

func (s priceScale) row(p float64) int {
	r := int(math.Round((s.hi - p) / (s.hi - s.lo) * float64(s.rows-1)))
	return max(0, min(s.rows-1, r))
}

func (s priceScale) axis(r int) string {
	var label string
	switch r {
	case 0:
		label = formatUSD(s.hi)
	case s.rows / 2:
		label = formatUSD(s.hi - (s.hi-s.lo)/2)
	case s.rows - 1:
		label = formatUSD(s.lo)
	}
	return dimStyle.Width(axisWidth).Align(lipgloss.Right).Render(label) + " ┤"
}

// renderCandles draws one column per bar, newest on the right.
func renderCandles(bars []domain.CandleBar, cols, rows int) string {
	if cols < 1 {
		cols = 1
	}
	if len(bars) > cols {
		bars = bars[len(bars)-cols:]
	}
	lo, hi := bars[0].Low, bars[0].High
	for _, b := range bars {
		lo, hi = math.Min(lo, b.Low), math.Max(hi, b.High)
	}
	sc := newScale(lo, hi, rows)

	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, len(bars))
		for i := range grid[r] {
			grid[r][i] = " "
		}
	}
	for i, b := range bars {
		style := upStyle
		if b.Close < b.Open {
			style = downStyle
		}
		top, bottom := sc.row(b.High), sc.row(b.Low)
		bodyTop, bodyBottom := sc.row(math.Max(b.Open, b.Close)), sc.row(math.Min(b.Open, b.Close))
		for r := top; r <= bottom; r++ {
			ch := "│"
			if r >= bodyTop && r <= bodyBottom {
				ch = "┃"
			}
			grid[r][i] = style.Render(ch)
		}
	}
	return joinGrid(grid, sc)
}

// renderLine samples points evenly across the available columns.
func renderLine(points []candle.Point, cols, rows int) string {
	if cols < 1 {
		cols = 1
	}
	n := min(len(points), cols)
	lo, hi := points[0].Price, points[0].Price
	for _, p := range points {
		lo, hi = math.Min(lo, p.Price), math.Max(hi, p.Price)
	}
	sc := newScale(lo, hi, rows)

	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, n)
		for i := range grid[r] {
			grid[r][i] = " "
		}
	}
	for i := 0; i < n; i++ {
		p := points[i*len(points)/n]
		if i == n-1 {
			p = points[len(points)-1]
		}
		grid[sc.row(p.Price)][i] = infoStyle.Render("•")
	}
	return joinGrid(grid, sc)
}

func joinGrid(grid [][]string, sc priceScale) string {
	lines := make([]string, len(grid))
	for r, row := range grid {
		lines[r] = sc.axis(r) + strings.Join(row, "")
	}
	return strings.Join(lines, "\n")
}
