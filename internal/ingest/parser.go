// Package ingest maintains the live trade feed from the Polymarket CLOB
// websocket. It exists purely to drive the watch dashboard tape; detector
// inputs always come from the REST APIs.
package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/polysentry/tracker/internal/model"
)

// marketEvent is the envelope shared by book, price_change and
// last_trade_price events on the market channel.
type marketEvent struct {
	EventType string `json:"event_type"`
	Market    string `json:"market"`
	AssetID   string `json:"asset_id"`
	Timestamp string `json:"timestamp"`

	// last_trade_price fields
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`

	// book fields
	LastTradePrice string `json:"last_trade_price"`
}

// parseMessage extracts trade activity from a raw websocket frame. Events
// arrive both as single objects and as arrays; anything that is not trade
// activity comes back as a bare event type with no trades.
func parseMessage(data []byte) ([]model.Trade, string, error) {
	var events []marketEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single marketEvent
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, "", fmt.Errorf("unrecognized frame: %w", err)
		}
		events = []marketEvent{single}
	}

	if len(events) == 0 {
		return nil, "", nil
	}

	var trades []model.Trade
	for _, ev := range events {
		if t, ok := tradeFromEvent(ev); ok {
			trades = append(trades, t)
		}
	}
	return trades, events[0].EventType, nil
}

// tradeFromEvent converts one event into a tape entry. Only events that carry
// an execution price produce a trade; book snapshots without a last trade
// price are connection chatter.
func tradeFromEvent(ev marketEvent) (model.Trade, bool) {
	switch ev.EventType {
	case "last_trade_price":
		price := parseDecimal(ev.Price)
		if price <= 0 {
			return model.Trade{}, false
		}
		size := parseDecimal(ev.Size)
		return model.Trade{
			MarketID:  ev.Market,
			Side:      parseSide(ev.Side),
			Size:      size,
			Price:     price,
			USDValue:  size * price,
			Timestamp: parseEventTime(ev.Timestamp),
		}, true
	case "book", "price_change":
		price := parseDecimal(ev.LastTradePrice)
		if price <= 0 {
			return model.Trade{}, false
		}
		// Book events report the last execution price but not its size, so
		// the tape entry carries price only.
		return model.Trade{
			MarketID:  ev.Market,
			Price:     price,
			Timestamp: parseEventTime(ev.Timestamp),
		}, true
	}
	return model.Trade{}, false
}

func parseSide(s string) model.Side {
	switch strings.ToUpper(s) {
	case "BUY":
		return model.SideBuy
	case "SELL":
		return model.SideSell
	}
	return ""
}

func parseDecimal(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseEventTime decodes the event timestamp, which the CLOB sends as unix
// milliseconds in a string. A missing or garbled value falls back to now.
func parseEventTime(s string) time.Time {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e12 {
			return time.UnixMilli(ts).UTC()
		}
		return time.Unix(ts, 0).UTC()
	}
	return time.Now().UTC()
}
