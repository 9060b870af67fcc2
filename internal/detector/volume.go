package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/provider"
)

const (
	// recentHours is the width of the anomaly evaluation window.
	recentHours = 6

	// minHourlyBuckets is the minimum bucket count for a usable baseline.
	minHourlyBuckets = 24
)

// VolumeAnomalyOptions configures the volume anomaly detector.
type VolumeAnomalyOptions struct {
	// ZScoreThreshold is the number of standard deviations above the
	// historical mean required to flag (default 3.0).
	ZScoreThreshold float64

	// LookbackDays is the baseline history window (default 7).
	LookbackDays int

	// MinTrades is the smallest sample the detector will analyze (default 50).
	MinTrades int

	// SampleLimit caps the number of trades fetched per market (default 5000).
	SampleLimit int

	// MinVolume24h filters the default high-volume market set (default 10000).
	MinVolume24h float64

	// MarketLimit caps the default market set (default 50).
	MarketLimit int
}

func (o VolumeAnomalyOptions) withDefaults() VolumeAnomalyOptions {
	if o.ZScoreThreshold == 0 {
		o.ZScoreThreshold = 3.0
	}
	if o.LookbackDays == 0 {
		o.LookbackDays = 7
	}
	if o.MinTrades == 0 {
		o.MinTrades = 50
	}
	if o.SampleLimit == 0 {
		o.SampleLimit = 5000
	}
	if o.MinVolume24h == 0 {
		o.MinVolume24h = 10000
	}
	if o.MarketLimit == 0 {
		o.MarketLimit = 50
	}
	return o
}

// VolumeAnomalyDetector flags markets whose recent trading volume deviates
// abnormally from their own historical baseline.
type VolumeAnomalyDetector struct {
	markets MarketSource
	trades  TradeSource
	opts    VolumeAnomalyOptions
	now     func() time.Time
}

// NewVolumeAnomalyDetector creates a volume anomaly detector.
func NewVolumeAnomalyDetector(markets MarketSource, trades TradeSource, opts VolumeAnomalyOptions) *VolumeAnomalyDetector {
	return &VolumeAnomalyDetector{
		markets: markets,
		trades:  trades,
		opts:    opts.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Scan analyzes the given markets, defaulting to high-volume markets. At
// most one alert is emitted per market. A fetch failure for one market is
// logged and skipped; sibling markets still run.
func (d *VolumeAnomalyDetector) Scan(ctx context.Context, markets []model.Market) ([]model.Alert, error) {
	if markets == nil {
		var err error
		markets, err = d.markets.GetHighVolumeMarkets(ctx, d.opts.MinVolume24h, d.opts.MarketLimit)
		if err != nil {
			return nil, err
		}
	}

	var alerts []model.Alert
	for _, market := range markets {
		alert, err := d.AnalyzeMarket(ctx, market)
		if err != nil {
			log.Warn().Err(err).Str("market", market.Slug).Msg("volume_market_skipped")
			continue
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	model.SortAlerts(alerts)
	return alerts, nil
}

// AnalyzeMarket checks a single market's recent volume against its trailing
// baseline. Returns nil when the sample is insufficient or no anomaly is
// found. Provider errors propagate to the caller unchanged.
func (d *VolumeAnomalyDetector) AnalyzeMarket(ctx context.Context, market model.Market) (*model.Alert, error) {
	trades, err := d.trades.GetTrades(ctx, provider.TradeQuery{
		Market: market.ConditionID,
		Limit:  d.opts.SampleLimit,
	})
	if err != nil {
		return nil, err
	}

	if len(trades) < d.opts.MinTrades {
		return nil, nil
	}

	now := d.now()
	lookbackStart := now.Add(-time.Duration(d.opts.LookbackDays) * 24 * time.Hour)

	hourly := hourlyVolumes(trades, lookbackStart, now)
	if len(hourly) < minHourlyBuckets {
		return nil, nil
	}

	recentVolume := 0.0
	for _, v := range hourly[len(hourly)-recentHours:] {
		recentVolume += v
	}
	historical := hourly[:len(hourly)-recentHours]
	if len(historical) == 0 {
		return nil, nil
	}

	meanVolume := mean(historical)
	stdVolume := 1.0
	if len(historical) > 1 {
		stdVolume = sampleStdDev(historical)
	}
	// A flat baseline would divide by zero; substitute a tenth of the mean
	// so the statistic stays meaningful.
	if stdVolume == 0 {
		stdVolume = meanVolume * 0.1
		if stdVolume == 0 {
			stdVolume = 1
		}
	}

	recentHourlyAvg := recentVolume / recentHours
	zScore := (recentHourlyAvg - meanVolume) / stdVolume

	if zScore < d.opts.ZScoreThreshold {
		return nil, nil
	}

	expected := meanVolume * recentHours
	multiplier := 0.0
	if meanVolume > 0 {
		multiplier = recentVolume / expected
	}

	stats := model.VolumeStats{
		MarketID:      market.ConditionID,
		CurrentVolume: recentVolume,
		MeanVolume:    expected,
		StdVolume:     stdVolume * recentHours,
		ZScore:        zScore,
		PeriodStart:   now.Add(-recentHours * time.Hour),
		PeriodEnd:     now,
	}

	return &model.Alert{
		SignalType:  model.SignalVolumeAnomaly,
		Severity:    d.severity(zScore, recentVolume, market, now),
		Market:      market,
		Description: fmt.Sprintf("Volume spike: %.1fx standard deviation above normal", zScore),
		Details: model.VolumeAnomalyDetails{
			ZScore:            zScore,
			RecentVolumeUSD:   recentVolume,
			ExpectedVolumeUSD: expected,
			StdVolumeUSD:      stdVolume * recentHours,
			PeriodHours:       recentHours,
			VolumeMultiplier:  multiplier,
			Stats:             stats,
		},
		Timestamp: now,
	}, nil
}

// hourlyVolumes buckets USD volume into fixed one-hour buckets from start
// to now. Trades before start are discarded.
func hourlyVolumes(trades []model.Trade, start, now time.Time) []float64 {
	hours := int(now.Sub(start).Hours()) + 1
	if hours < 1 {
		return nil
	}

	buckets := make([]float64, hours)
	for _, trade := range trades {
		if trade.Timestamp.Before(start) {
			continue
		}
		index := int(trade.Timestamp.Sub(start).Hours())
		if index >= 0 && index < len(buckets) {
			buckets[index] += trade.USDValue
		}
	}
	return buckets
}

// severity maps the anomaly to a tier via a weighted point score.
func (d *VolumeAnomalyDetector) severity(zScore, volume float64, market model.Market, now time.Time) model.Severity {
	score := 0

	switch {
	case zScore >= 6:
		score += 4
	case zScore >= 5:
		score += 3
	case zScore >= 4:
		score += 2
	case zScore >= 3:
		score += 1
	}

	switch {
	case volume >= 100000:
		score += 2
	case volume >= 50000:
		score += 1
	}

	if market.EndDate != nil {
		hoursToEnd := market.EndDate.Sub(now).Hours()
		switch {
		case hoursToEnd > 0 && hoursToEnd <= 24:
			score += 2
		case hoursToEnd > 0 && hoursToEnd <= 72:
			score += 1
		}
	}

	switch {
	case score >= 6:
		return model.SeverityCritical
	case score >= 4:
		return model.SeverityHigh
	case score >= 2:
		return model.SeverityMedium
	}
	return model.SeverityLow
}
