package ingest

import (
	"strconv"
	"testing"
	"time"

	"github.com/polysentry/tracker/internal/model"
)

func TestParseLastTradePrice(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := []byte(`{
		"event_type": "last_trade_price",
		"market": "0xcondition",
		"asset_id": "123456",
		"price": "0.62",
		"size": "150",
		"side": "buy",
		"timestamp": "` + unixMillis(ts) + `"
	}`)

	trades, eventType, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if eventType != "last_trade_price" {
		t.Errorf("event type = %s", eventType)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	trade := trades[0]
	if trade.MarketID != "0xcondition" {
		t.Errorf("market = %s", trade.MarketID)
	}
	if trade.Side != model.SideBuy {
		t.Errorf("side = %s", trade.Side)
	}
	if trade.Price != 0.62 || trade.Size != 150 {
		t.Errorf("price/size = %v/%v", trade.Price, trade.Size)
	}
	if trade.USDValue != 150*0.62 {
		t.Errorf("usd value = %v", trade.USDValue)
	}
	if !trade.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", trade.Timestamp, ts)
	}
}

func TestParseBookEventArray(t *testing.T) {
	raw := []byte(`[
		{"event_type": "book", "market": "0xm1", "asset_id": "1", "last_trade_price": "0.55", "timestamp": "1748772000000"},
		{"event_type": "book", "market": "0xm2", "asset_id": "2", "last_trade_price": "0"},
		{"event_type": "book", "market": "0xm3", "asset_id": "3"}
	]`)

	trades, eventType, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if eventType != "book" {
		t.Errorf("event type = %s", eventType)
	}
	// Only the event with a positive last trade price yields a tape entry.
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].MarketID != "0xm1" || trades[0].Price != 0.55 {
		t.Errorf("trade = %+v", trades[0])
	}
	// Book events carry no size.
	if trades[0].USDValue != 0 {
		t.Errorf("usd value = %v, want 0", trades[0].USDValue)
	}
}

func TestParseNonTradeMessage(t *testing.T) {
	trades, eventType, err := parseMessage([]byte(`{"event_type": "tick_size_change", "market": "0xm"}`))
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected no trades, got %d", len(trades))
	}
	if eventType != "tick_size_change" {
		t.Errorf("event type = %s", eventType)
	}
}

func TestParseGarbageFrame(t *testing.T) {
	if _, _, err := parseMessage([]byte(`not json`)); err == nil {
		t.Error("expected an error for a garbage frame")
	}
}

func TestParseEventTimeFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	got := parseEventTime("")
	after := time.Now().UTC()

	if got.Before(before) || got.After(after) {
		t.Errorf("fallback time %v outside [%v, %v]", got, before, after)
	}
}

func unixMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
