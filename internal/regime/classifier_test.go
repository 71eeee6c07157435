package regime_test

import (
	"testing"
	"time"

	"github.com/finsight/finsight/internal/regime"
	"github.com/finsight/finsight/pkg/types"
	"github.com/shopspring/decimal"
)

func TestClassifyUnknownOnShortWindow(t *testing.T) {
	c := regime.New(types.DefaultRegimeConfig())
	ctx := c.Classify(make([]types.Bar, 5))
	if ctx.Regime != types.RegimeUnknown {
		t.Errorf("regime = %s, want unknown for a short window", ctx.Regime)
	}
}

func TestClassifyTrendingUp(t *testing.T) {
	c := regime.New(types.DefaultRegimeConfig())
	now := time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC) // Monday, "mid"

	var window []types.Bar
	price := 100.0
	for i := 0; i < 40; i++ {
		price *= 1.01 // steady 1% per bar uptrend
		window = append(window, types.Bar{
			Instant: now.Add(time.Duration(i) * time.Hour),
			Open:    decimal.NewFromFloat(price),
			High:    decimal.NewFromFloat(price * 1.001),
			Low:     decimal.NewFromFloat(price * 0.999),
			Close:   decimal.NewFromFloat(price),
			Volume:  decimal.NewFromInt(1000),
		})
	}

	ctx := c.Classify(window)
	if ctx.Regime != types.RegimeTrendingUp && ctx.Regime != types.RegimeBreakout {
		t.Errorf("regime = %s, want trending_up (or breakout, since a steady uptrend closes near its high)", ctx.Regime)
	}
	if ctx.TimeOfDay != types.TimeMid {
		t.Errorf("timeOfDay = %s, want mid for hour 11", ctx.TimeOfDay)
	}
	if ctx.DayOfWeek != 1 {
		t.Errorf("dayOfWeek = %d, want 1 (Monday)", ctx.DayOfWeek)
	}
}
