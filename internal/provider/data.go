package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/model"
)

// DefaultDataURL is the Polymarket Data API endpoint.
const DefaultDataURL = "https://data-api.polymarket.com"

// maxTradeLimit is the Data API's per-request cap.
const maxTradeLimit = 10000

// DataClient fetches executed trades from the Polymarket Data API.
type DataClient struct {
	baseURL string
	client  *Client
}

// NewDataClient creates a DataClient. An empty baseURL uses the production
// endpoint; a nil client gets default transport options.
func NewDataClient(baseURL string, client *Client) *DataClient {
	if baseURL == "" {
		baseURL = DefaultDataURL
	}
	if client == nil {
		client = NewClient(ClientOptions{})
	}
	return &DataClient{baseURL: baseURL, client: client}
}

// TradeQuery filters the trades endpoint.
type TradeQuery struct {
	Market    string     // condition ID
	User      string     // wallet address
	Side      model.Side // BUY or SELL
	MinAmount float64    // minimum USD value
	Limit     int
	Offset    int
}

// tradeResponse is the Data API wire format for a trade.
type tradeResponse struct {
	ProxyWallet     string    `json:"proxyWallet"`
	User            string    `json:"user"`
	ConditionID     string    `json:"conditionId"`
	Slug            string    `json:"slug"`
	Title           string    `json:"title"`
	Side            string    `json:"side"`
	Outcome         string    `json:"outcome"`
	OutcomeIndex    int       `json:"outcomeIndex"`
	Size            flexFloat `json:"size"`
	Price           flexFloat `json:"price"`
	Timestamp       int64     `json:"timestamp"`
	TransactionHash string    `json:"transactionHash"`
}

// GetTrades fetches trades matching the query, newest first.
func (d *DataClient) GetTrades(ctx context.Context, q TradeQuery) ([]model.Trade, error) {
	if q.Limit == 0 {
		q.Limit = 1000
	}
	if q.Limit > maxTradeLimit {
		q.Limit = maxTradeLimit
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	if q.Market != "" {
		params.Set("market", q.Market)
	}
	if q.User != "" {
		params.Set("user", q.User)
	}
	if q.Side != "" {
		params.Set("side", string(q.Side))
	}
	if q.MinAmount > 0 {
		params.Set("filterType", "CASH")
		params.Set("filterAmount", strconv.FormatFloat(q.MinAmount, 'f', -1, 64))
	}

	var raw []json.RawMessage
	if err := d.client.GetJSON(ctx, d.baseURL+"/trades?"+params.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}

	// Decode per record so a single malformed trade never aborts the batch.
	trades := make([]model.Trade, 0, len(raw))
	for _, rawItem := range raw {
		var item tradeResponse
		if err := json.Unmarshal(rawItem, &item); err != nil {
			log.Debug().Err(err).Msg("trade_record_dropped")
			continue
		}
		trade, ok := parseTrade(item)
		if !ok {
			log.Debug().Str("tx", item.TransactionHash).Msg("trade_record_dropped")
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// GetTradesForMarkets fetches trades for each market and concatenates them.
func (d *DataClient) GetTradesForMarkets(ctx context.Context, marketIDs []string, limitPerMarket int) ([]model.Trade, error) {
	if limitPerMarket == 0 {
		limitPerMarket = 500
	}

	var all []model.Trade
	for _, id := range marketIDs {
		trades, err := d.GetTrades(ctx, TradeQuery{Market: id, Limit: limitPerMarket})
		if err != nil {
			return nil, err
		}
		all = append(all, trades...)
	}
	return all, nil
}

// GetLargeTrades fetches trades for a market at or above a USD floor.
func (d *DataClient) GetLargeTrades(ctx context.Context, market string, minUSD float64, limit int) ([]model.Trade, error) {
	if limit == 0 {
		limit = 500
	}
	return d.GetTrades(ctx, TradeQuery{Market: market, MinAmount: minUSD, Limit: limit})
}

// GetWalletTrades fetches recent trades placed by a wallet.
func (d *DataClient) GetWalletTrades(ctx context.Context, wallet string, limit int) ([]model.Trade, error) {
	if limit == 0 {
		limit = 1000
	}
	return d.GetTrades(ctx, TradeQuery{User: wallet, Limit: limit})
}

// parseTrade converts a wire record into a Trade. Records without a valid
// side or timestamp are reported as malformed.
func parseTrade(raw tradeResponse) (model.Trade, bool) {
	side := model.Side(raw.Side)
	if side != model.SideBuy && side != model.SideSell {
		return model.Trade{}, false
	}
	if raw.Timestamp <= 0 {
		return model.Trade{}, false
	}

	wallet := raw.ProxyWallet
	if wallet == "" {
		wallet = raw.User
	}

	size := float64(raw.Size)
	price := float64(raw.Price)

	return model.Trade{
		TransactionHash: raw.TransactionHash,
		Wallet:          wallet,
		MarketID:        raw.ConditionID,
		MarketSlug:      raw.Slug,
		MarketQuestion:  raw.Title,
		Side:            side,
		Outcome:         raw.Outcome,
		OutcomeIndex:    raw.OutcomeIndex,
		Size:            size,
		Price:           price,
		USDValue:        size * price,
		Timestamp:       time.Unix(raw.Timestamp, 0).UTC(),
	}, true
}
