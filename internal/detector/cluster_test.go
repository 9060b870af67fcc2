package detector

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/polysentry/tracker/internal/model"
)

// clusterBase is aligned to a 30-minute bucket boundary so trades within
// the following half hour share a bucket.
var clusterBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clusterMarkets() []model.Market {
	return []model.Market{
		{ConditionID: "0xm1", Question: "Market one?", Slug: "m1"},
		{ConditionID: "0xm2", Question: "Market two?", Slug: "m2"},
		{ConditionID: "0xm3", Question: "Market three?", Slug: "m3"},
	}
}

// coordinatedTrades puts every wallet on the buy side of every market within
// one time bucket.
func coordinatedTrades(wallets []string, marketIDs []string, usdEach float64) map[string][]model.Trade {
	byMarket := make(map[string][]model.Trade)
	for mi, marketID := range marketIDs {
		ts := clusterBase.Add(time.Duration(mi) * time.Hour)
		for wi, wallet := range wallets {
			trade := buyTrade(wallet, marketID, usdEach, 0.6, ts.Add(time.Duration(wi)*time.Minute))
			byMarket[marketID] = append(byMarket[marketID], trade)
		}
	}
	return byMarket
}

func TestWalletClusterCoordinatedGroup(t *testing.T) {
	wallets := []string{"0xa", "0xb", "0xc", "0xd"}
	markets := clusterMarkets()
	byMarket := coordinatedTrades(wallets, []string{"0xm1", "0xm2", "0xm3"}, 5000)

	d := NewWalletClusterDetector(&fakeMarketSource{}, &fakeTradeSource{byMarket: byMarket}, WalletClusterOptions{})

	alerts, err := d.Scan(context.Background(), markets)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 cluster alert, got %d", len(alerts))
	}

	alert := alerts[0]
	if alert.SignalType != model.SignalWalletCluster {
		t.Errorf("signal = %s", alert.SignalType)
	}

	details, ok := alert.Details.(model.ClusterDetails)
	if !ok {
		t.Fatalf("details type = %T", alert.Details)
	}
	if details.ClusterSize != 4 {
		t.Errorf("cluster size = %d, want 4", details.ClusterSize)
	}
	if details.MarketsCount != 3 {
		t.Errorf("markets count = %d, want 3", details.MarketsCount)
	}
	if math.Abs(details.CoordinationScore-1.0) > 1e-9 {
		t.Errorf("coordination = %v, want 1.0", details.CoordinationScore)
	}
	if details.TotalVolumeUSD != 60000 {
		t.Errorf("total volume = %v, want 60000", details.TotalVolumeUSD)
	}

	// 4 wallets (1) + $60k volume (2) + coordination 1.0 (2) + 3 markets (1)
	// = 6 points.
	if alert.Severity != model.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", alert.Severity)
	}

	// Anchored on the first market the cluster was seen in.
	if alert.Market.ConditionID != "0xm1" {
		t.Errorf("anchor market = %s, want 0xm1", alert.Market.ConditionID)
	}
	if len(alert.Wallets) != 4 {
		t.Errorf("wallets = %v", alert.Wallets)
	}
}

func TestWalletClusterSingleSharedMarket(t *testing.T) {
	// Two wallets trading together repeatedly, but only in one market.
	byMarket := coordinatedTrades([]string{"0xa", "0xb", "0xc"}, []string{"0xm1"}, 5000)

	d := NewWalletClusterDetector(&fakeMarketSource{}, &fakeTradeSource{byMarket: byMarket}, WalletClusterOptions{})

	alerts, err := d.Scan(context.Background(), clusterMarkets()[:1])
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts below the shared-market minimum, got %d", len(alerts))
	}
}

func TestWalletClusterOppositeSides(t *testing.T) {
	// Same buckets, same markets, but the pair always takes opposite sides.
	byMarket := make(map[string][]model.Trade)
	for mi, marketID := range []string{"0xm1", "0xm2"} {
		ts := clusterBase.Add(time.Duration(mi) * time.Hour)
		buy := buyTrade("0xa", marketID, 5000, 0.6, ts)
		sell := buyTrade("0xb", marketID, 5000, 0.6, ts.Add(time.Minute))
		sell.Side = model.SideSell
		byMarket[marketID] = append(byMarket[marketID], buy, sell)
	}

	d := NewWalletClusterDetector(&fakeMarketSource{}, &fakeTradeSource{byMarket: byMarket}, WalletClusterOptions{})

	alerts, err := d.Scan(context.Background(), clusterMarkets()[:2])
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts for opposite-side trading, got %d", len(alerts))
	}
}

func TestWalletClusterBelowMinSize(t *testing.T) {
	// A perfectly coordinated pair is still below the minimum cluster size.
	byMarket := coordinatedTrades([]string{"0xa", "0xb"}, []string{"0xm1", "0xm2"}, 5000)

	d := NewWalletClusterDetector(&fakeMarketSource{}, &fakeTradeSource{byMarket: byMarket}, WalletClusterOptions{})

	alerts, err := d.Scan(context.Background(), clusterMarkets()[:2])
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts below the minimum cluster size, got %d", len(alerts))
	}
}

func TestWalletClusterLooseSameSide(t *testing.T) {
	// A wallet that both buys and sells in a bucket still counts as
	// same-side with a buyer, because side sets intersect.
	byMarket := make(map[string][]model.Trade)
	for mi, marketID := range []string{"0xm1", "0xm2"} {
		ts := clusterBase.Add(time.Duration(mi) * time.Hour)
		mixedBuy := buyTrade("0xa", marketID, 5000, 0.6, ts)
		mixedSell := buyTrade("0xa", marketID, 5000, 0.6, ts.Add(time.Minute))
		mixedSell.Side = model.SideSell
		buyer2 := buyTrade("0xb", marketID, 5000, 0.6, ts.Add(2*time.Minute))
		buyer3 := buyTrade("0xc", marketID, 5000, 0.6, ts.Add(3*time.Minute))
		byMarket[marketID] = append(byMarket[marketID], mixedBuy, mixedSell, buyer2, buyer3)
	}

	d := NewWalletClusterDetector(&fakeMarketSource{}, &fakeTradeSource{byMarket: byMarket}, WalletClusterOptions{})

	alerts, err := d.Scan(context.Background(), clusterMarkets()[:2])
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	details := alerts[0].Details.(model.ClusterDetails)
	if details.ClusterSize != 3 {
		t.Errorf("cluster size = %d, want 3", details.ClusterSize)
	}
	if math.Abs(details.CoordinationScore-1.0) > 1e-9 {
		t.Errorf("coordination = %v, want 1.0", details.CoordinationScore)
	}
}

func TestWalletClusterDeterministic(t *testing.T) {
	wallets := []string{"0xa", "0xb", "0xc", "0xd"}
	markets := clusterMarkets()
	byMarket := coordinatedTrades(wallets, []string{"0xm1", "0xm2", "0xm3"}, 5000)

	d := NewWalletClusterDetector(&fakeMarketSource{}, &fakeTradeSource{byMarket: byMarket}, WalletClusterOptions{})

	first, err := d.Scan(context.Background(), markets)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	second, err := d.Scan(context.Background(), markets)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("alert counts = %d, %d", len(first), len(second))
	}
	if !reflect.DeepEqual(first[0].Wallets, second[0].Wallets) {
		t.Errorf("wallet order differs: %v vs %v", first[0].Wallets, second[0].Wallets)
	}
	firstDetails := first[0].Details.(model.ClusterDetails)
	secondDetails := second[0].Details.(model.ClusterDetails)
	if !reflect.DeepEqual(firstDetails, secondDetails) {
		t.Errorf("details differ between identical runs")
	}
}

func TestWalletClusterSkipsFailedMarket(t *testing.T) {
	wallets := []string{"0xa", "0xb", "0xc"}
	byMarket := coordinatedTrades(wallets, []string{"0xm1", "0xm2"}, 5000)

	d := NewWalletClusterDetector(&fakeMarketSource{}, &fakeTradeSource{
		byMarket: byMarket,
		errFor:   map[string]error{"0xm3": errors.New("boom")},
	}, WalletClusterOptions{})

	alerts, err := d.Scan(context.Background(), clusterMarkets())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("expected the surviving markets to still cluster, got %d alerts", len(alerts))
	}
}
