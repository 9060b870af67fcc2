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

// DefaultGammaURL is the Polymarket Gamma API endpoint.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

// GammaClient fetches market metadata from the Polymarket Gamma API.
type GammaClient struct {
	baseURL string
	client  *Client
}

// NewGammaClient creates a GammaClient. An empty baseURL uses the production
// endpoint; a nil client gets default transport options.
func NewGammaClient(baseURL string, client *Client) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	if client == nil {
		client = NewClient(ClientOptions{})
	}
	return &GammaClient{baseURL: baseURL, client: client}
}

// MarketQuery selects and orders markets.
type MarketQuery struct {
	Active    bool
	Closed    bool
	Limit     int
	Offset    int
	Order     string // volume24hr, volume, liquidity, endDate
	Ascending bool
}

// marketResponse is the Gamma API wire format for a market.
type marketResponse struct {
	ID            string      `json:"id"`
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	EndDate       string      `json:"endDate"`
	Volume        flexFloat   `json:"volume"`
	Volume24h     flexFloat   `json:"volume24hr"`
	Liquidity     flexFloat   `json:"liquidity"`
	Outcomes      flexStrings `json:"outcomes"`
	OutcomePrices flexFloats  `json:"outcomePrices"`
	Active        bool        `json:"active"`
}

// GetMarkets fetches markets matching the query.
func (g *GammaClient) GetMarkets(ctx context.Context, q MarketQuery) ([]model.Market, error) {
	if q.Limit == 0 {
		q.Limit = 100
	}
	if q.Order == "" {
		q.Order = "volume24hr"
	}

	params := url.Values{}
	params.Set("active", strconv.FormatBool(q.Active))
	params.Set("closed", strconv.FormatBool(q.Closed))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("order", q.Order)
	params.Set("ascending", strconv.FormatBool(q.Ascending))

	var raw []json.RawMessage
	if err := g.client.GetJSON(ctx, g.baseURL+"/markets?"+params.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}

	// Records are decoded one at a time so a single malformed market never
	// aborts the batch.
	markets := make([]model.Market, 0, len(raw))
	for _, rawItem := range raw {
		var item marketResponse
		if err := json.Unmarshal(rawItem, &item); err != nil {
			log.Debug().Err(err).Msg("market_record_dropped")
			continue
		}
		market, ok := parseMarket(item)
		if !ok {
			log.Debug().Str("slug", item.Slug).Msg("market_record_dropped")
			continue
		}
		markets = append(markets, market)
	}
	return markets, nil
}

// GetMarket fetches a single market by condition ID. Returns nil when the
// market does not exist.
func (g *GammaClient) GetMarket(ctx context.Context, conditionID string) (*model.Market, error) {
	var raw json.RawMessage
	err := g.client.GetJSON(ctx, g.baseURL+"/markets/"+url.PathEscape(conditionID), &raw)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch market %s: %w", conditionID, err)
	}

	// A malformed record yields an absent market, not an error.
	var item marketResponse
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, nil
	}
	market, ok := parseMarket(item)
	if !ok {
		return nil, nil
	}
	return &market, nil
}

// GetMarketBySlug fetches a market by its slug. Returns nil when no market
// matches.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (*model.Market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	var raw []json.RawMessage
	if err := g.client.GetJSON(ctx, g.baseURL+"/markets?"+params.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetch market by slug %s: %w", slug, err)
	}

	for _, rawItem := range raw {
		var item marketResponse
		if err := json.Unmarshal(rawItem, &item); err != nil {
			continue
		}
		if market, ok := parseMarket(item); ok {
			return &market, nil
		}
	}
	return nil, nil
}

// GetHighVolumeMarkets returns active markets whose 24h volume meets the
// minimum, sorted by 24h volume descending.
func (g *GammaClient) GetHighVolumeMarkets(ctx context.Context, minVolume24h float64, limit int) ([]model.Market, error) {
	if limit == 0 {
		limit = 50
	}

	markets, err := g.GetMarkets(ctx, MarketQuery{Active: true, Limit: limit, Order: "volume24hr"})
	if err != nil {
		return nil, err
	}

	out := make([]model.Market, 0, len(markets))
	for _, m := range markets {
		if m.Volume24h >= minVolume24h {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetMarketsClosingSoon returns active markets resolving within the given
// number of hours.
func (g *GammaClient) GetMarketsClosingSoon(ctx context.Context, hours, limit int) ([]model.Market, error) {
	if limit == 0 {
		limit = 50
	}

	now := time.Now().UTC()
	cutoff := now.Add(time.Duration(hours) * time.Hour)

	markets, err := g.GetMarkets(ctx, MarketQuery{Active: true, Limit: 200, Order: "endDate", Ascending: true})
	if err != nil {
		return nil, err
	}

	var closing []model.Market
	for _, m := range markets {
		if m.EndDate != nil && now.Before(*m.EndDate) && !m.EndDate.After(cutoff) {
			closing = append(closing, m)
		}
		if len(closing) >= limit {
			break
		}
	}
	return closing, nil
}

// GetActiveTokenIDs returns the deduplicated CLOB token IDs of active
// markets, used to subscribe the live trade stream.
func (g *GammaClient) GetActiveTokenIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))

	var raw []json.RawMessage
	if err := g.client.GetJSON(ctx, g.baseURL+"/markets?"+params.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetch active markets: %w", err)
	}

	seen := make(map[string]struct{})
	var tokenIDs []string
	for _, rawItem := range raw {
		var record struct {
			Slug         string      `json:"slug"`
			ClobTokenIDs flexStrings `json:"clobTokenIds"`
		}
		if err := json.Unmarshal(rawItem, &record); err != nil {
			log.Debug().Err(err).Msg("token_ids_record_dropped")
			continue
		}
		for _, id := range record.ClobTokenIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			tokenIDs = append(tokenIDs, id)
		}
	}
	return tokenIDs, nil
}

// parseMarket converts a wire record into a Market. A record without any
// usable identifier is reported as malformed.
func parseMarket(raw marketResponse) (model.Market, bool) {
	conditionID := raw.ConditionID
	if conditionID == "" {
		conditionID = raw.ID
	}
	if conditionID == "" {
		return model.Market{}, false
	}

	var endDate *time.Time
	if raw.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, raw.EndDate); err == nil {
			utc := t.UTC()
			endDate = &utc
		}
	}

	return model.Market{
		ConditionID:   conditionID,
		Question:      raw.Question,
		Slug:          raw.Slug,
		EndDate:       endDate,
		Volume:        float64(raw.Volume),
		Volume24h:     float64(raw.Volume24h),
		Liquidity:     float64(raw.Liquidity),
		Outcomes:      raw.Outcomes,
		OutcomePrices: raw.OutcomePrices,
		Active:        raw.Active,
	}, true
}
