// Package detector implements the three scanners that turn raw trade and
// market records into ranked, severity-scored alerts.
package detector

import (
	"context"

	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/provider"
)

// MarketSource supplies market metadata. Implemented by provider.GammaClient.
type MarketSource interface {
	GetHighVolumeMarkets(ctx context.Context, minVolume24h float64, limit int) ([]model.Market, error)
	GetMarketsClosingSoon(ctx context.Context, hours, limit int) ([]model.Market, error)
}

// TradeSource supplies executed trades. Implemented by provider.DataClient.
type TradeSource interface {
	GetTrades(ctx context.Context, q provider.TradeQuery) ([]model.Trade, error)
}
