package service

import (
	"context"
	"strconv"
	"time"

	"criptodash/internal/domain"

	"github.com/charmbracelet/log"
)

const (
	SettingAutoRefresh     = "auto_refresh"
	SettingRefreshInterval = "refresh_interval"
	SettingChartInterval   = "chart_interval"
	SettingChartTimeframe  = "chart_timeframe"
)

// RefreshSettings is the persisted dashboard auto-refresh state.
type RefreshSettings struct {
	AutoRefresh bool
	Interval    time.Duration
}

// ChartSettings is the persisted chart polling state.
type ChartSettings struct {
	Interval  time.Duration
	Timeframe domain.Timeframe
}

// LoadRefreshSettings overlays stored values on def. Unreadable or
// malformed values keep the default.
func (s *PriceService) LoadRefreshSettings(ctx context.Context, def RefreshSettings) RefreshSettings {
	out := def
	if v, ok := s.setting(ctx, SettingAutoRefresh); ok {
		out.AutoRefresh = v == "1"
	}
	if d, ok := s.secondsSetting(ctx, SettingRefreshInterval); ok {
		out.Interval = d
	}
	return out
}

func (s *PriceService) SaveRefreshSettings(ctx context.Context, rs RefreshSettings) error {
	auto := "0"
	if rs.AutoRefresh {
		auto = "1"
	}
	if err := s.store.SetSetting(ctx, SettingAutoRefresh, auto); err != nil {
		return err
	}
	return s.store.SetSetting(ctx, SettingRefreshInterval, secondsString(rs.Interval))
}

func (s *PriceService) LoadChartSettings(ctx context.Context, def ChartSettings) ChartSettings {
	out := def
	if d, ok := s.secondsSetting(ctx, SettingChartInterval); ok {
		out.Interval = d
	}
	if v, ok := s.setting(ctx, SettingChartTimeframe); ok && domain.Timeframe(v).Duration() > 0 {
		out.Timeframe = domain.Timeframe(v)
	}
	return out
}

func (s *PriceService) SaveChartSettings(ctx context.Context, cs ChartSettings) error {
	if err := s.store.SetSetting(ctx, SettingChartInterval, secondsString(cs.Interval)); err != nil {
		return err
	}
	return s.store.SetSetting(ctx, SettingChartTimeframe, string(cs.Timeframe))
}

func (s *PriceService) setting(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.store.GetSetting(ctx, key)
	if err != nil {
		log.Warnf("setting %s unreadable: %v", key, err)
		return "", false
	}
	return v, ok
}

func (s *PriceService) secondsSetting(ctx context.Context, key string) (time.Duration, bool) {
	v, ok := s.setting(ctx, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		log.Warnf("setting %s=%q ignored", key, v)
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func secondsString(d time.Duration) string {
	return strconv.Itoa(int(d / time.Second))
}
