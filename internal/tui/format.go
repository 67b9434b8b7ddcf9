package tui

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	usdPrinter = message.NewPrinter(language.AmericanEnglish)
	brlPrinter = message.NewPrinter(language.BrazilianPortuguese)
)

// priceDecimals keeps sub-dollar coins readable.
func priceDecimals(v float64) int {
	switch {
	case v == 0:
		return 2
	case v < 0.01:
		return 6
	case v < 1:
		return 4
	default:
		return 2
	}
}

func formatUSD(v float64) string {
	return "$" + usdPrinter.Sprintf(fmt.Sprintf("%%.%df", priceDecimals(v)), v)
}

func formatBRL(v *float64) string {
	if v == nil {
		return "-"
	}
	return "R$ " + brlPrinter.Sprintf(fmt.Sprintf("%%.%df", priceDecimals(*v)), *v)
}

func formatMarketCap(v float64) string {
	if v <= 0 {
		return "-"
	}
	return "$" + usdPrinter.Sprintf("%.0f", v)
}

func formatChange(v *float64) string {
	if v == nil {
		return "-"
	}
	s := fmt.Sprintf("%+.2f%%", *v)
	if *v < 0 {
		return downStyle.Render(s)
	}
	return upStyle.Render(s)
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// plainText strips markup from a CoinGecko description and cuts it to max
// runes.
func plainText(s string, max int) string {
	s = html.UnescapeString(htmlTag.ReplaceAllString(s, ""))
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > max {
		return strings.TrimSpace(string(r[:max])) + "…"
	}
	return s
}
