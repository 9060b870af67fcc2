package detector

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/polysentry/tracker/internal/model"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newLargeTradeDetector pins the clock so window math is reproducible.
func newLargeTradeDetector(trades *fakeTradeSource, opts LargeTradeOptions) *LargeTradeDetector {
	d := NewLargeTradeDetector(&fakeMarketSource{}, trades, opts)
	d.now = func() time.Time { return testNow }
	return d
}

func TestLargeTradeSingleOutlier(t *testing.T) {
	market := model.Market{
		ConditionID: "0xmarket",
		Question:    "Will it happen?",
		Slug:        "will-it-happen",
		EndDate:     ptrTime(testNow.Add(1 * time.Hour)),
	}

	// Nine routine $100 trades plus one $50k high-confidence bet placed
	// 30 minutes before resolution window close.
	var trades []model.Trade
	for i := 0; i < 9; i++ {
		trades = append(trades, buyTrade("0xsmall", "0xmarket", 100, 0.5,
			testNow.Add(-time.Duration(i+1)*time.Hour)))
	}
	big := buyTrade("0xwhale", "0xmarket", 50000, 0.9, testNow.Add(-30*time.Minute))
	trades = append(trades, big)

	d := newLargeTradeDetector(&fakeTradeSource{byMarket: map[string][]model.Trade{
		"0xmarket": trades,
	}}, LargeTradeOptions{})

	alerts, err := d.AnalyzeMarket(context.Background(), market)
	if err != nil {
		t.Fatalf("AnalyzeMarket: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	alert := alerts[0]
	if alert.SignalType != model.SignalLargeTradeBeforeResolution {
		t.Errorf("signal = %s", alert.SignalType)
	}
	// 90th percentile rank, 0.9 price, 1.5h to resolution, $50k size:
	// 0 + 2 + 3 + 2 = 7 points.
	if alert.Severity != model.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", alert.Severity)
	}
	if len(alert.Wallets) != 1 || alert.Wallets[0] != "0xwhale" {
		t.Errorf("wallets = %v", alert.Wallets)
	}

	details, ok := alert.Details.(model.LargeTradeDetails)
	if !ok {
		t.Fatalf("details type = %T", alert.Details)
	}
	if details.Percentile != 90 {
		t.Errorf("percentile = %v, want 90", details.Percentile)
	}
	if details.TradeUSD != 50000 {
		t.Errorf("trade usd = %v", details.TradeUSD)
	}
	if details.TimeToResolutionHours == nil {
		t.Fatal("expected time to resolution")
	}
	if math.Abs(*details.TimeToResolutionHours-1.5) > 1e-9 {
		t.Errorf("hours to resolution = %v, want 1.5", *details.TimeToResolutionHours)
	}
	if !alert.Timestamp.Equal(big.Timestamp) {
		t.Errorf("alert timestamp = %v, want trade timestamp %v", alert.Timestamp, big.Timestamp)
	}
}

func TestLargeTradeInsufficientSample(t *testing.T) {
	market := model.Market{ConditionID: "0xthin"}

	var trades []model.Trade
	for i := 0; i < 9; i++ {
		trades = append(trades, buyTrade("0xw", "0xthin", 90000, 0.9, testNow.Add(-time.Hour)))
	}

	d := newLargeTradeDetector(&fakeTradeSource{byMarket: map[string][]model.Trade{
		"0xthin": trades,
	}}, LargeTradeOptions{})

	alerts, err := d.AnalyzeMarket(context.Background(), market)
	if err != nil {
		t.Fatalf("AnalyzeMarket: %v", err)
	}
	if alerts != nil {
		t.Errorf("expected no alerts below minimum sample, got %d", len(alerts))
	}
}

func TestLargeTradeOutsideWindow(t *testing.T) {
	market := model.Market{ConditionID: "0xold"}

	// The outlier is above threshold but older than the monitored window.
	var trades []model.Trade
	for i := 0; i < 9; i++ {
		trades = append(trades, buyTrade("0xsmall", "0xold", 100, 0.5, testNow.Add(-time.Hour)))
	}
	trades = append(trades, buyTrade("0xwhale", "0xold", 50000, 0.9, testNow.Add(-25*time.Hour)))

	d := newLargeTradeDetector(&fakeTradeSource{byMarket: map[string][]model.Trade{
		"0xold": trades,
	}}, LargeTradeOptions{})

	alerts, err := d.AnalyzeMarket(context.Background(), market)
	if err != nil {
		t.Fatalf("AnalyzeMarket: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected 0 alerts, got %d", len(alerts))
	}
}

func TestLargeTradeBelowAbsoluteFloor(t *testing.T) {
	market := model.Market{ConditionID: "0xquiet"}

	// Relative outlier in a quiet market, but under the USD floor.
	var trades []model.Trade
	for i := 0; i < 9; i++ {
		trades = append(trades, buyTrade("0xsmall", "0xquiet", 10, 0.5, testNow.Add(-time.Hour)))
	}
	trades = append(trades, buyTrade("0xbigger", "0xquiet", 500, 0.5, testNow.Add(-time.Hour)))

	d := newLargeTradeDetector(&fakeTradeSource{byMarket: map[string][]model.Trade{
		"0xquiet": trades,
	}}, LargeTradeOptions{})

	alerts, err := d.AnalyzeMarket(context.Background(), market)
	if err != nil {
		t.Fatalf("AnalyzeMarket: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected 0 alerts under the USD floor, got %d", len(alerts))
	}
}

func TestLargeTradeErrorPropagates(t *testing.T) {
	wantErr := errors.New("upstream down")

	d := newLargeTradeDetector(&fakeTradeSource{errFor: map[string]error{
		"0xbroken": wantErr,
	}}, LargeTradeOptions{})

	_, err := d.AnalyzeMarket(context.Background(), model.Market{ConditionID: "0xbroken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected propagated error, got %v", err)
	}
}

func TestLargeTradeScanSkipsFailedMarket(t *testing.T) {
	good := model.Market{ConditionID: "0xgood", EndDate: ptrTime(testNow.Add(time.Hour))}
	bad := model.Market{ConditionID: "0xbad"}

	var trades []model.Trade
	for i := 0; i < 9; i++ {
		trades = append(trades, buyTrade("0xsmall", "0xgood", 100, 0.5, testNow.Add(-time.Hour)))
	}
	trades = append(trades, buyTrade("0xwhale", "0xgood", 50000, 0.9, testNow.Add(-30*time.Minute)))

	d := newLargeTradeDetector(&fakeTradeSource{
		byMarket: map[string][]model.Trade{"0xgood": trades},
		errFor:   map[string]error{"0xbad": errors.New("boom")},
	}, LargeTradeOptions{})

	alerts, err := d.Scan(context.Background(), []model.Market{bad, good})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected the healthy market's alert, got %d alerts", len(alerts))
	}
	if alerts[0].Market.ConditionID != "0xgood" {
		t.Errorf("alert market = %s", alerts[0].Market.ConditionID)
	}
}

func TestLargeTradeSeverityTable(t *testing.T) {
	d := newLargeTradeDetector(&fakeTradeSource{}, LargeTradeOptions{})

	end := testNow.Add(30 * time.Hour)
	market := model.Market{ConditionID: "0xm", EndDate: &end}

	// Low-signal trade: p95 rank, low price, far from resolution, small size.
	low := buyTrade("0xw", "0xm", 2000, 0.5, testNow)
	if got := d.severity(low, market, 95); got != model.SeverityLow {
		t.Errorf("1 point = %s, want LOW", got)
	}

	// p97 and price 0.75: 2 + 1 = 3 points.
	medium := buyTrade("0xw", "0xm", 2000, 0.75, testNow)
	if got := d.severity(medium, market, 97); got != model.SeverityMedium {
		t.Errorf("3 points = %s, want MEDIUM", got)
	}

	// p99, high-confidence price, $10k: 3 + 2 + 1 = 6 points.
	high := buyTrade("0xw", "0xm", 10000, 0.9, testNow)
	if got := d.severity(high, market, 99); got != model.SeverityHigh {
		t.Errorf("6 points = %s, want HIGH", got)
	}

	// Add resolution within 2 hours: 3 + 2 + 3 + 2 = 10 points.
	soon := testNow.Add(time.Hour)
	urgent := model.Market{ConditionID: "0xm", EndDate: &soon}
	critical := buyTrade("0xw", "0xm", 50000, 0.9, testNow)
	if got := d.severity(critical, urgent, 99); got != model.SeverityCritical {
		t.Errorf("10 points = %s, want CRITICAL", got)
	}
}
