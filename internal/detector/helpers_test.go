package detector

import (
	"context"
	"time"

	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/provider"
)

// fakeMarketSource serves a fixed market list.
type fakeMarketSource struct {
	markets []model.Market
	err     error
}

func (f *fakeMarketSource) GetHighVolumeMarkets(ctx context.Context, minVolume24h float64, limit int) ([]model.Market, error) {
	return f.markets, f.err
}

func (f *fakeMarketSource) GetMarketsClosingSoon(ctx context.Context, hours, limit int) ([]model.Market, error) {
	return f.markets, f.err
}

// fakeTradeSource serves trades keyed by market, with optional per-market
// errors.
type fakeTradeSource struct {
	byMarket map[string][]model.Trade
	errFor   map[string]error
}

func (f *fakeTradeSource) GetTrades(ctx context.Context, q provider.TradeQuery) ([]model.Trade, error) {
	if err, ok := f.errFor[q.Market]; ok {
		return nil, err
	}
	return f.byMarket[q.Market], nil
}

func ptrTime(t time.Time) *time.Time { return &t }

func buyTrade(wallet, marketID string, usd, price float64, ts time.Time) model.Trade {
	size := usd / price
	return model.Trade{
		Wallet:    wallet,
		MarketID:  marketID,
		Side:      model.SideBuy,
		Outcome:   "Yes",
		Size:      size,
		Price:     price,
		USDValue:  usd,
		Timestamp: ts,
	}
}
