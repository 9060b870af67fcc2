// Package model provides the core value types shared by the detection engine.
package model

import (
	"sort"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Severity is the tier assigned to an alert, ordered LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Score returns the numeric rank of a severity, used for sorting alerts.
func (s Severity) Score() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// SignalType identifies which detector produced an alert.
type SignalType string

const (
	SignalLargeTradeBeforeResolution SignalType = "LARGE_TRADE_BEFORE_RESOLUTION"
	SignalWalletCluster              SignalType = "WALLET_CLUSTER"
	SignalVolumeAnomaly              SignalType = "VOLUME_ANOMALY"
)

// Market is a prediction-market contract from the Gamma API.
type Market struct {
	// ConditionID is the unique market identifier
	ConditionID string

	// Question is the human-readable market question
	Question string

	// Slug is the URL slug for the market
	Slug string

	// EndDate is the resolution time as a naive UTC instant (nil when unknown)
	EndDate *time.Time

	// Volume is lifetime traded volume in USD
	Volume float64

	// Volume24h is USD volume over the trailing 24 hours
	Volume24h float64

	// Liquidity is current liquidity in USD
	Liquidity float64

	// Outcomes are the possible resolution labels, in order
	Outcomes []string

	// OutcomePrices are implied probabilities parallel to Outcomes
	OutcomePrices []float64

	// Active reports whether the market is still taking trades
	Active bool
}

// Trade is a single executed trade. Trades are immutable facts; they are
// aggregated but never mutated after construction.
type Trade struct {
	TransactionHash string
	Wallet          string
	MarketID        string
	MarketSlug      string
	MarketQuestion  string
	Side            Side
	Outcome         string
	OutcomeIndex    int

	// Size is the number of shares traded
	Size float64

	// Price is the per-share execution price (0-1 range for prediction markets)
	Price float64

	// USDValue is Size * Price
	USDValue float64

	Timestamp time.Time
}

// Alert is a detection result. Created by a detector, read-only thereafter.
type Alert struct {
	SignalType  SignalType
	Severity    Severity
	Market      Market
	Description string

	// Details carries signal-specific evidence; switch on SignalType
	// (or type-switch on the value) to select the variant.
	Details AlertDetails

	Timestamp time.Time

	// Trades is the evidentiary subset, capped for display
	Trades []Trade

	// Wallets are the involved addresses, uncapped
	Wallets []string
}

// Score returns the numeric ranking score derived from severity.
func (a Alert) Score() int {
	return a.Severity.Score()
}

// SortAlerts sorts alerts by descending score with a stable tie-break,
// so merged detector output has deterministic order.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Score() > alerts[j].Score()
	})
}

// WalletCluster is a group of wallets trading in coordinated patterns.
// Built fresh per scan by the cluster detector; not persisted across runs.
type WalletCluster struct {
	Wallets []string

	// Markets are the market IDs where coordination was detected
	Markets []string

	// TotalVolume is summed USD value across all member trades in all markets
	TotalVolume float64

	// CoordinationScore is the mean intra-cluster edge coordination, 0-1
	CoordinationScore float64

	FirstSeen time.Time
	LastSeen  time.Time
}

// VolumeStats describes one volume-anomaly evaluation window.
type VolumeStats struct {
	MarketID      string
	CurrentVolume float64
	MeanVolume    float64
	StdVolume     float64
	ZScore        float64
	PeriodStart   time.Time
	PeriodEnd     time.Time
}
