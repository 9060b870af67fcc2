package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/provider"
)

// minTradesForPercentile is the smallest sample with a usable size
// distribution; markets with fewer trades produce no alerts.
const minTradesForPercentile = 10

// LargeTradeOptions configures the large trade detector. Zero values take
// the defaults documented on each field.
type LargeTradeOptions struct {
	// SizePercentile flags trades above this percentile of the market's
	// own size distribution (default 95).
	SizePercentile float64

	// TimeWindowHours is the monitored window before resolution (default 24).
	TimeWindowHours int

	// MinTradeUSD is the absolute USD floor below which trades are never
	// flagged (default 1000).
	MinTradeUSD float64

	// HighConfidencePrice is the price above which a bet counts as
	// high-confidence (default 0.85).
	HighConfidencePrice float64

	// SampleLimit caps the number of trades fetched per market (default 2000).
	SampleLimit int

	// MarketLimit caps the default closing-soon market set (default 50).
	MarketLimit int
}

func (o LargeTradeOptions) withDefaults() LargeTradeOptions {
	if o.SizePercentile == 0 {
		o.SizePercentile = 95
	}
	if o.TimeWindowHours == 0 {
		o.TimeWindowHours = 24
	}
	if o.MinTradeUSD == 0 {
		o.MinTradeUSD = 1000
	}
	if o.HighConfidencePrice == 0 {
		o.HighConfidencePrice = 0.85
	}
	if o.SampleLimit == 0 {
		o.SampleLimit = 2000
	}
	if o.MarketLimit == 0 {
		o.MarketLimit = 50
	}
	return o
}

// LargeTradeDetector flags individual trades that are statistical outliers
// by size, weighted by proximity to resolution and price confidence.
type LargeTradeDetector struct {
	markets MarketSource
	trades  TradeSource
	opts    LargeTradeOptions
	now     func() time.Time
}

// NewLargeTradeDetector creates a large trade detector.
func NewLargeTradeDetector(markets MarketSource, trades TradeSource, opts LargeTradeOptions) *LargeTradeDetector {
	return &LargeTradeDetector{
		markets: markets,
		trades:  trades,
		opts:    opts.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Scan analyzes the given markets, defaulting to markets closing within the
// detector's time window. A fetch failure for one market is logged and
// skipped; sibling markets still run.
func (d *LargeTradeDetector) Scan(ctx context.Context, markets []model.Market) ([]model.Alert, error) {
	if markets == nil {
		var err error
		markets, err = d.markets.GetMarketsClosingSoon(ctx, d.opts.TimeWindowHours, d.opts.MarketLimit)
		if err != nil {
			return nil, err
		}
	}

	var alerts []model.Alert
	for _, market := range markets {
		marketAlerts, err := d.AnalyzeMarket(ctx, market)
		if err != nil {
			log.Warn().Err(err).Str("market", market.Slug).Msg("large_trade_market_skipped")
			continue
		}
		alerts = append(alerts, marketAlerts...)
	}

	model.SortAlerts(alerts)
	return alerts, nil
}

// AnalyzeMarket flags abnormally large trades in a single market. Provider
// errors propagate to the caller unchanged.
func (d *LargeTradeDetector) AnalyzeMarket(ctx context.Context, market model.Market) ([]model.Alert, error) {
	trades, err := d.trades.GetTrades(ctx, provider.TradeQuery{
		Market: market.ConditionID,
		Limit:  d.opts.SampleLimit,
	})
	if err != nil {
		return nil, err
	}

	if len(trades) < minTradesForPercentile {
		return nil, nil
	}

	sizes := make([]float64, len(trades))
	for i, t := range trades {
		sizes[i] = t.USDValue
	}

	// The threshold comes from the whole fetched sample, not just the
	// recent window.
	threshold := percentileValue(sizes, d.opts.SizePercentile)
	floor := threshold
	if d.opts.MinTradeUSD > floor {
		floor = d.opts.MinTradeUSD
	}

	now := d.now()
	windowStart := now.Add(-time.Duration(d.opts.TimeWindowHours) * time.Hour)

	var alerts []model.Alert
	for _, trade := range trades {
		if trade.Timestamp.Before(windowStart) {
			continue
		}
		if trade.USDValue < floor {
			continue
		}

		percentile := percentileRank(sizes, trade.USDValue)
		severity := d.severity(trade, market, percentile)

		var hoursToResolution *float64
		if market.EndDate != nil {
			h := market.EndDate.Sub(trade.Timestamp).Hours()
			hoursToResolution = &h
		}

		alerts = append(alerts, model.Alert{
			SignalType: model.SignalLargeTradeBeforeResolution,
			Severity:   severity,
			Market:     market,
			Description: fmt.Sprintf("Large $%.0f trade on %s at %.1f%%",
				trade.USDValue, trade.Outcome, trade.Price*100),
			Details: model.LargeTradeDetails{
				TradeUSD:              trade.USDValue,
				TradeSize:             trade.Size,
				Price:                 trade.Price,
				Outcome:               trade.Outcome,
				Percentile:            percentile,
				TimeToResolutionHours: hoursToResolution,
				Wallet:                trade.Wallet,
				TxHash:                trade.TransactionHash,
			},
			Timestamp: trade.Timestamp,
			Trades:    []model.Trade{trade},
			Wallets:   []string{trade.Wallet},
		})
	}

	return alerts, nil
}

// severity maps trade characteristics to a tier via a weighted point score.
// The point table is the detector's calibration; tests pin it exactly.
func (d *LargeTradeDetector) severity(trade model.Trade, market model.Market, percentile float64) model.Severity {
	score := 0

	// Size percentile rank within the sample
	switch {
	case percentile >= 99:
		score += 3
	case percentile >= 97:
		score += 2
	case percentile >= 95:
		score += 1
	}

	// Price confidence (betting at extreme prices)
	switch {
	case trade.Price >= d.opts.HighConfidencePrice:
		score += 2
	case trade.Price >= 0.75:
		score += 1
	}

	// Urgency: time between the trade and resolution
	if market.EndDate != nil {
		hours := market.EndDate.Sub(trade.Timestamp).Hours()
		switch {
		case hours <= 2:
			score += 3
		case hours <= 6:
			score += 2
		case hours <= 12:
			score += 1
		}
	}

	// Absolute USD size
	switch {
	case trade.USDValue >= 50000:
		score += 2
	case trade.USDValue >= 10000:
		score += 1
	}

	switch {
	case score >= 7:
		return model.SeverityCritical
	case score >= 5:
		return model.SeverityHigh
	case score >= 3:
		return model.SeverityMedium
	}
	return model.SeverityLow
}
