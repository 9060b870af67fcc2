package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/provider"
)

const (
	// maxEvidenceTrades caps the trades attached to a cluster alert.
	maxEvidenceTrades = 50

	// maxDetailWallets caps the wallet list in alert details.
	maxDetailWallets = 10
)

// WalletClusterOptions configures the wallet cluster detector.
type WalletClusterOptions struct {
	// TimeWindow is the bucket width for considering trades coordinated
	// (default 30 minutes).
	TimeWindow time.Duration

	// MinClusterSize is the smallest wallet group that produces an alert
	// (default 3).
	MinClusterSize int

	// MinSharedMarkets is the number of distinct markets a pair must
	// co-occur in before an edge is considered (default 2).
	MinSharedMarkets int

	// CoordinationThreshold is the minimum same-side ratio for an edge
	// (default 0.7).
	CoordinationThreshold float64

	// SampleLimit caps trades fetched per market (default 1000).
	SampleLimit int

	// MinVolume24h filters the default high-volume market set (default 10000).
	MinVolume24h float64

	// MarketLimit caps the default market set (default 30).
	MarketLimit int
}

func (o WalletClusterOptions) withDefaults() WalletClusterOptions {
	if o.TimeWindow == 0 {
		o.TimeWindow = 30 * time.Minute
	}
	if o.MinClusterSize == 0 {
		o.MinClusterSize = 3
	}
	if o.MinSharedMarkets == 0 {
		o.MinSharedMarkets = 2
	}
	if o.CoordinationThreshold == 0 {
		o.CoordinationThreshold = 0.7
	}
	if o.SampleLimit == 0 {
		o.SampleLimit = 1000
	}
	if o.MinVolume24h == 0 {
		o.MinVolume24h = 10000
	}
	if o.MarketLimit == 0 {
		o.MarketLimit = 30
	}
	return o
}

// WalletClusterDetector discovers groups of wallets whose trading is
// mutually coordinated in timing and direction across markets.
type WalletClusterDetector struct {
	markets MarketSource
	trades  TradeSource
	opts    WalletClusterOptions
}

// NewWalletClusterDetector creates a wallet cluster detector.
func NewWalletClusterDetector(markets MarketSource, trades TradeSource, opts WalletClusterOptions) *WalletClusterDetector {
	return &WalletClusterDetector{
		markets: markets,
		trades:  trades,
		opts:    opts.withDefaults(),
	}
}

// activityIndex maps wallet -> market -> trades, preserving first-seen order
// of markets per wallet.
type activityIndex struct {
	byWallet map[string]*walletMarkets
}

type walletMarkets struct {
	trades      map[string][]model.Trade
	marketOrder []string
}

func buildActivityIndex(trades []model.Trade) *activityIndex {
	idx := &activityIndex{byWallet: make(map[string]*walletMarkets)}
	for _, trade := range trades {
		wm, ok := idx.byWallet[trade.Wallet]
		if !ok {
			wm = &walletMarkets{trades: make(map[string][]model.Trade)}
			idx.byWallet[trade.Wallet] = wm
		}
		if _, seen := wm.trades[trade.MarketID]; !seen {
			wm.marketOrder = append(wm.marketOrder, trade.MarketID)
		}
		wm.trades[trade.MarketID] = append(wm.trades[trade.MarketID], trade)
	}
	return idx
}

// Scan discovers coordinated wallet groups across the given markets,
// defaulting to high-volume markets. A fetch failure for one market is
// logged and skipped; sibling markets still contribute trades.
func (d *WalletClusterDetector) Scan(ctx context.Context, markets []model.Market) ([]model.Alert, error) {
	if markets == nil {
		var err error
		markets, err = d.markets.GetHighVolumeMarkets(ctx, d.opts.MinVolume24h, d.opts.MarketLimit)
		if err != nil {
			return nil, err
		}
	}

	var allTrades []model.Trade
	for _, market := range markets {
		trades, err := d.trades.GetTrades(ctx, provider.TradeQuery{
			Market: market.ConditionID,
			Limit:  d.opts.SampleLimit,
		})
		if err != nil {
			log.Warn().Err(err).Str("market", market.Slug).Msg("cluster_market_skipped")
			continue
		}
		allTrades = append(allTrades, trades...)
	}

	if len(allTrades) == 0 {
		return nil, nil
	}

	activity := buildActivityIndex(allTrades)
	graph := d.buildCotradeGraph(allTrades)
	clusters := d.findClusters(graph, activity)

	marketLookup := make(map[string]model.Market, len(markets))
	for _, m := range markets {
		marketLookup[m.ConditionID] = m
	}

	var alerts []model.Alert
	for _, cluster := range clusters {
		if alert := d.clusterAlert(cluster, activity, marketLookup); alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	model.SortAlerts(alerts)
	return alerts, nil
}

// pairStats accumulates co-occurrence evidence for one wallet pair.
type pairStats struct {
	count    int
	sameSide int
	markets  *orderedSet
}

// cellWallet is one wallet's activity within a (market, time-bucket) cell.
type cellWallet struct {
	hasBuy  bool
	hasSell bool
}

// bucketCell collects the wallets active in one (market, bucket) cell, in
// first-trade order.
type bucketCell struct {
	wallets map[string]*cellWallet
	order   []string
}

// buildCotradeGraph partitions trades by market and time bucket, then
// connects wallet pairs that co-occur in enough markets with a high enough
// same-side ratio. Pairwise comparison is bounded to within-cell wallets,
// which keeps the construction from going quadratic on the whole trade set.
func (d *WalletClusterDetector) buildCotradeGraph(trades []model.Trade) *cotradeGraph {
	bucketSeconds := int64(d.opts.TimeWindow / time.Second)

	// market -> bucket -> cell, with insertion-ordered key lists
	cells := make(map[string]map[int64]*bucketCell)
	var marketOrder []string
	bucketOrder := make(map[string][]int64)

	for _, trade := range trades {
		bucket := trade.Timestamp.Unix() / bucketSeconds

		marketCells, ok := cells[trade.MarketID]
		if !ok {
			marketCells = make(map[int64]*bucketCell)
			cells[trade.MarketID] = marketCells
			marketOrder = append(marketOrder, trade.MarketID)
		}

		cell, ok := marketCells[bucket]
		if !ok {
			cell = &bucketCell{wallets: make(map[string]*cellWallet)}
			marketCells[bucket] = cell
			bucketOrder[trade.MarketID] = append(bucketOrder[trade.MarketID], bucket)
		}

		w, ok := cell.wallets[trade.Wallet]
		if !ok {
			w = &cellWallet{}
			cell.wallets[trade.Wallet] = w
			cell.order = append(cell.order, trade.Wallet)
		}
		switch trade.Side {
		case model.SideBuy:
			w.hasBuy = true
		case model.SideSell:
			w.hasSell = true
		}
	}

	// Accumulate pair evidence across cells.
	pairs := make(map[pairKey]*pairStats)
	var pairOrder []pairKey

	for _, marketID := range marketOrder {
		for _, bucket := range bucketOrder[marketID] {
			cell := cells[marketID][bucket]
			for i, w1 := range cell.order {
				for _, w2 := range cell.order[i+1:] {
					key := makePairKey(w1, w2)
					stats, ok := pairs[key]
					if !ok {
						stats = &pairStats{markets: newOrderedSet()}
						pairs[key] = stats
						pairOrder = append(pairOrder, key)
					}
					stats.count++
					stats.markets.add(marketID)

					// Same-side proxy: the pair counts as coordinated in
					// this bucket when their side sets intersect, not only
					// on identical trades.
					s1, s2 := cell.wallets[w1], cell.wallets[w2]
					if (s1.hasBuy && s2.hasBuy) || (s1.hasSell && s2.hasSell) {
						stats.sameSide++
					}
				}
			}
		}
	}

	graph := newCotradeGraph()
	for _, key := range pairOrder {
		stats := pairs[key]
		if stats.markets.len() < d.opts.MinSharedMarkets {
			continue
		}
		coordination := 0.0
		if stats.count > 0 {
			coordination = float64(stats.sameSide) / float64(stats.count)
		}
		if coordination < d.opts.CoordinationThreshold {
			continue
		}
		graph.addEdge(key.A, key.B, edgeInfo{
			Weight:       stats.count,
			Markets:      stats.markets.values(),
			Coordination: coordination,
		})
	}
	return graph
}

// findClusters extracts connected components of sufficient size and computes
// their aggregate metrics.
func (d *WalletClusterDetector) findClusters(graph *cotradeGraph, activity *activityIndex) []model.WalletCluster {
	var clusters []model.WalletCluster

	for _, component := range graph.components() {
		if len(component) < d.opts.MinClusterSize {
			continue
		}

		markets := newOrderedSet()
		totalVolume := 0.0
		var firstSeen, lastSeen time.Time
		hasActivity := false

		for _, wallet := range component {
			wm, ok := activity.byWallet[wallet]
			if !ok {
				continue
			}
			for _, marketID := range wm.marketOrder {
				markets.add(marketID)
				for _, trade := range wm.trades[marketID] {
					totalVolume += trade.USDValue
					if !hasActivity || trade.Timestamp.Before(firstSeen) {
						firstSeen = trade.Timestamp
					}
					if !hasActivity || trade.Timestamp.After(lastSeen) {
						lastSeen = trade.Timestamp
					}
					hasActivity = true
				}
			}
		}

		// Mean coordination across intra-component edges
		coordSum, coordCount := 0.0, 0
		for i, w1 := range component {
			for _, w2 := range component[i+1:] {
				if info, ok := graph.edgeBetween(w1, w2); ok {
					coordSum += info.Coordination
					coordCount++
				}
			}
		}
		avgCoordination := 0.0
		if coordCount > 0 {
			avgCoordination = coordSum / float64(coordCount)
		}

		// A component with members but no timestamped trades should not
		// occur; dropped rather than emitting a zero-time alert.
		if !hasActivity {
			continue
		}

		clusters = append(clusters, model.WalletCluster{
			Wallets:           component,
			Markets:           markets.values(),
			TotalVolume:       totalVolume,
			CoordinationScore: avgCoordination,
			FirstSeen:         firstSeen,
			LastSeen:          lastSeen,
		})
	}
	return clusters
}

// clusterAlert assembles the alert for one cluster, anchored on the
// cluster's first discovered market. Returns nil when the anchor market
// cannot be resolved from the scanned set.
func (d *WalletClusterDetector) clusterAlert(cluster model.WalletCluster, activity *activityIndex, marketLookup map[string]model.Market) *model.Alert {
	if len(cluster.Markets) == 0 {
		return nil
	}

	market, ok := marketLookup[cluster.Markets[0]]
	if !ok {
		return nil
	}

	var evidence []model.Trade
	for _, wallet := range cluster.Wallets {
		wm, ok := activity.byWallet[wallet]
		if !ok {
			continue
		}
		for _, marketID := range cluster.Markets {
			evidence = append(evidence, wm.trades[marketID]...)
		}
	}
	if len(evidence) > maxEvidenceTrades {
		evidence = evidence[:maxEvidenceTrades]
	}

	detailWallets := cluster.Wallets
	if len(detailWallets) > maxDetailWallets {
		detailWallets = detailWallets[:maxDetailWallets]
	}

	return &model.Alert{
		SignalType: model.SignalWalletCluster,
		Severity:   d.severity(cluster),
		Market:     market,
		Description: fmt.Sprintf("Cluster of %d wallets trading together across %d markets",
			len(cluster.Wallets), len(cluster.Markets)),
		Details: model.ClusterDetails{
			ClusterSize:       len(cluster.Wallets),
			MarketsCount:      len(cluster.Markets),
			TotalVolumeUSD:    cluster.TotalVolume,
			CoordinationScore: cluster.CoordinationScore,
			FirstSeen:         cluster.FirstSeen,
			LastSeen:          cluster.LastSeen,
			WalletAddresses:   detailWallets,
		},
		Timestamp: cluster.LastSeen,
		Trades:    evidence,
		Wallets:   cluster.Wallets,
	}
}

// severity maps cluster characteristics to a tier via a weighted point score.
func (d *WalletClusterDetector) severity(cluster model.WalletCluster) model.Severity {
	score := 0

	switch {
	case len(cluster.Wallets) >= 10:
		score += 3
	case len(cluster.Wallets) >= 5:
		score += 2
	case len(cluster.Wallets) >= 3:
		score += 1
	}

	switch {
	case cluster.TotalVolume >= 100000:
		score += 3
	case cluster.TotalVolume >= 50000:
		score += 2
	case cluster.TotalVolume >= 10000:
		score += 1
	}

	switch {
	case cluster.CoordinationScore >= 0.9:
		score += 2
	case cluster.CoordinationScore >= 0.8:
		score += 1
	}

	switch {
	case len(cluster.Markets) >= 5:
		score += 2
	case len(cluster.Markets) >= 3:
		score += 1
	}

	switch {
	case score >= 8:
		return model.SeverityCritical
	case score >= 5:
		return model.SeverityHigh
	case score >= 3:
		return model.SeverityMedium
	}
	return model.SeverityLow
}
