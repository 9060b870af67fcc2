package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polysentry/tracker/internal/detector"
	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/provider"
)

type fakeMarketSource struct {
	markets []model.Market
}

func (f *fakeMarketSource) GetHighVolumeMarkets(ctx context.Context, minVolume24h float64, limit int) ([]model.Market, error) {
	return f.markets, nil
}

func (f *fakeMarketSource) GetMarketsClosingSoon(ctx context.Context, hours, limit int) ([]model.Market, error) {
	return f.markets, nil
}

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

func buyTrade(wallet, marketID string, usd, price float64, ts time.Time) model.Trade {
	return model.Trade{
		Wallet:    wallet,
		MarketID:  marketID,
		Side:      model.SideBuy,
		Outcome:   "Yes",
		Size:      usd / price,
		Price:     price,
		USDValue:  usd,
		Timestamp: ts,
	}
}

// newTestScanner wires all three detectors over the same fake trade source.
func newTestScanner(trades *fakeTradeSource, workers int) *Scanner {
	markets := &fakeMarketSource{}
	large := detector.NewLargeTradeDetector(markets, trades, detector.LargeTradeOptions{})
	volume := detector.NewVolumeAnomalyDetector(markets, trades, detector.VolumeAnomalyOptions{})
	cluster := detector.NewWalletClusterDetector(markets, trades, detector.WalletClusterOptions{})
	return New(large, volume, cluster, workers)
}

func TestScanMergesAndSorts(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(time.Hour)
	market := model.Market{ConditionID: "0xhot", Slug: "hot", EndDate: &end}

	var trades []model.Trade
	for i := 0; i < 9; i++ {
		trades = append(trades, buyTrade("0xsmall", "0xhot", 100, 0.5, now.Add(-time.Hour)))
	}
	trades = append(trades, buyTrade("0xwhale", "0xhot", 50000, 0.9, now.Add(-30*time.Minute)))

	scanner := newTestScanner(&fakeTradeSource{byMarket: map[string][]model.Trade{
		"0xhot": trades,
	}}, 4)

	alerts := scanner.Scan(context.Background(), []model.Market{market})
	if len(alerts) == 0 {
		t.Fatal("expected at least the large trade alert")
	}

	found := false
	for _, alert := range alerts {
		if alert.SignalType == model.SignalLargeTradeBeforeResolution {
			found = true
		}
	}
	if !found {
		t.Error("large trade alert missing from merged output")
	}

	for i := 1; i < len(alerts); i++ {
		if alerts[i].Score() > alerts[i-1].Score() {
			t.Fatalf("alerts not sorted by descending score at index %d", i)
		}
	}
}

func TestScanIsolatesFailedUnits(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(time.Hour)
	good := model.Market{ConditionID: "0xgood", Slug: "good", EndDate: &end}
	bad := model.Market{ConditionID: "0xbad", Slug: "bad"}

	var trades []model.Trade
	for i := 0; i < 9; i++ {
		trades = append(trades, buyTrade("0xsmall", "0xgood", 100, 0.5, now.Add(-time.Hour)))
	}
	trades = append(trades, buyTrade("0xwhale", "0xgood", 50000, 0.9, now.Add(-30*time.Minute)))

	scanner := newTestScanner(&fakeTradeSource{
		byMarket: map[string][]model.Trade{"0xgood": trades},
		errFor:   map[string]error{"0xbad": errors.New("boom")},
	}, 2)

	alerts := scanner.Scan(context.Background(), []model.Market{bad, good})
	if len(alerts) == 0 {
		t.Fatal("healthy market's alerts were lost to a failed sibling")
	}
	for _, alert := range alerts {
		if alert.Market.ConditionID == "0xbad" {
			t.Errorf("unexpected alert from failed market: %+v", alert)
		}
	}
}

// Identical inputs must produce identical output regardless of worker count.
func TestScanDeterministicAcrossWorkerCounts(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(time.Hour)

	byMarket := make(map[string][]model.Trade)
	var markets []model.Market
	for _, id := range []string{"0xm1", "0xm2", "0xm3"} {
		markets = append(markets, model.Market{ConditionID: id, Slug: id, EndDate: &end})
		var trades []model.Trade
		for i := 0; i < 9; i++ {
			trades = append(trades, buyTrade("0xsmall", id, 100, 0.5, now.Add(-time.Hour)))
		}
		trades = append(trades, buyTrade("0xwhale-"+id, id, 50000, 0.9, now.Add(-30*time.Minute)))
		byMarket[id] = trades
	}

	source := &fakeTradeSource{byMarket: byMarket}
	serial := newTestScanner(source, 1).Scan(context.Background(), markets)
	parallel := newTestScanner(source, 8).Scan(context.Background(), markets)

	if len(serial) != len(parallel) {
		t.Fatalf("alert counts differ: %d vs %d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i].Market.ConditionID != parallel[i].Market.ConditionID ||
			serial[i].SignalType != parallel[i].SignalType ||
			serial[i].Severity != parallel[i].Severity {
			t.Fatalf("alert %d differs between worker counts", i)
		}
	}
}
