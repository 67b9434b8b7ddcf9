package tui

import (
	"fmt"
	"slices"
	"strings"

	"criptodash/internal/domain"
	"criptodash/internal/service"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const descriptionRunes = 600

type detailView struct {
	coin    string
	loading bool
	res     service.DetailResult
	vp      viewport.Model
}

func newDetailView(coin string, width, height int) *detailView {
	d := &detailView{coin: coin, loading: true, vp: viewport.New(80, 20)}
	d.resize(width, height)
	return d
}

func (d *detailView) resize(width, height int) {
	if width > 4 {
		d.vp.Width = width - 4
	}
	if height > 8 {
		d.vp.Height = height - 6
	}
	if !d.loading {
		d.vp.SetContent(d.content())
	}
}

func (d *detailView) apply(res service.DetailResult) {
	d.loading = false
	d.res = res
	d.vp.SetContent(d.content())
	d.vp.GotoTop()
}

func (m *Model) openDetail(coin string) tea.Cmd {
	m.detail = newDetailView(coin, m.width, m.height)
	m.view = viewDetail
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		return detailMsg{coin: coin, res: svc.CoinDetail(ctx, coin)}
	}
}

func (m *Model) updateDetailKeys(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, detKeys.Back):
		m.detail = nil
		m.view = viewDashboard
		return nil
	case key.Matches(msg, detKeys.Chart):
		coin := m.detail.coin
		m.detail = nil
		return m.openChart(coin)
	}
	var cmd tea.Cmd
	m.detail.vp, cmd = m.detail.vp.Update(msg)
	return cmd
}

func (d *detailView) content() string {
	if d.res.Detail != nil {
		return detailContent(d.res.Detail)
	}

	var b strings.Builder
	msg := "details unavailable"
	if d.res.Err != nil {
		msg += ": " + service.UserMessage(d.res.Err)
	}
	b.WriteString(bannerStyle.Render(msg) + "\n\n")
	if d.res.Cached == nil {
		b.WriteString(dimStyle.Render("no stored prices for " + d.coin))
		return b.String()
	}
	q := d.res.Cached.Quote
	b.WriteString(dimStyle.Render("last stored prices, "+formatClock(d.res.Cached.ObservedAt)) + "\n\n")
	b.WriteString(field("USD", formatUSD(q.USD)))
	b.WriteString(field("BRL", formatBRL(q.BRL)))
	b.WriteString(field("24h", formatChange(q.USD24hChange)))
	return b.String()
}

func detailContent(cd *domain.CoinDetail) string {
	var b strings.Builder
	b.WriteString(field("Name", cd.Name))
	b.WriteString(field("Symbol", strings.ToUpper(cd.Symbol)))
	if v, ok := cd.CurrentPrice["usd"]; ok {
		b.WriteString(field("USD", formatUSD(v)))
	}
	if v, ok := cd.CurrentPrice["brl"]; ok {
		b.WriteString(field("BRL", formatBRL(&v)))
	}
	b.WriteString(field("Market cap", formatMarketCap(cd.MarketCap["usd"])))
	if cd.HasChange24h {
		ch := cd.Change24hPct
		b.WriteString(field("24h", formatChange(&ch)))
	}
	if hp := cd.Homepage(); hp != "" {
		b.WriteString(field("Homepage", hp))
	}
	if img := firstOf(cd.Images, "large", "thumb", "small"); img != "" {
		b.WriteString(field("Image", img))
	}
	if !cd.LastUpdated.IsZero() {
		b.WriteString(field("Updated", formatClock(cd.LastUpdated)))
	}
	desc := plainText(description(cd.Description), descriptionRunes)
	if desc == "" {
		desc = dimStyle.Render("no description available")
	}
	b.WriteString("\n" + desc + "\n")
	return b.String()
}

func firstOf(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}

// description prefers English and otherwise takes any non-empty language,
// lowest key first.
func description(m map[string]string) string {
	if v := m["en"]; v != "" {
		return v
	}
	langs := make([]string, 0, len(m))
	for k, v := range m {
		if v != "" {
			langs = append(langs, k)
		}
	}
	if len(langs) == 0 {
		return ""
	}
	slices.Sort(langs)
	return m[langs[0]]
}

func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value) + "\n"
}

func (d *detailView) View(m *Model) string {
	title := titleStyle.Render(fmt.Sprintf("%s details", d.coin))
	body := m.spinner.View() + " loading..."
	if !d.loading {
		body = d.vp.View()
	}
	return title + "\n\n" + body + "\n\n" + m.help.View(detKeys)
}
