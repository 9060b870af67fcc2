package model

import "time"

// AlertDetails is the closed set of per-signal evidence payloads.
type AlertDetails interface {
	Signal() SignalType
}

// LargeTradeDetails is the evidence attached to a large-trade alert.
type LargeTradeDetails struct {
	TradeUSD  float64
	TradeSize float64
	Price     float64
	Outcome   string

	// Percentile is the trade's size rank within the sampled distribution, 0-100
	Percentile float64

	// TimeToResolutionHours is nil when the market has no end date
	TimeToResolutionHours *float64

	Wallet string
	TxHash string
}

func (LargeTradeDetails) Signal() SignalType { return SignalLargeTradeBeforeResolution }

// VolumeAnomalyDetails is the evidence attached to a volume-anomaly alert.
type VolumeAnomalyDetails struct {
	ZScore            float64
	RecentVolumeUSD   float64
	ExpectedVolumeUSD float64
	StdVolumeUSD      float64
	PeriodHours       int

	// VolumeMultiplier is recent volume over expected volume (0 when no baseline)
	VolumeMultiplier float64

	Stats VolumeStats
}

func (VolumeAnomalyDetails) Signal() SignalType { return SignalVolumeAnomaly }

// ClusterDetails is the evidence attached to a wallet-cluster alert.
type ClusterDetails struct {
	ClusterSize       int
	MarketsCount      int
	TotalVolumeUSD    float64
	CoordinationScore float64
	FirstSeen         time.Time
	LastSeen          time.Time

	// WalletAddresses is capped at 10 entries for display; the alert's
	// Wallets field carries the full list.
	WalletAddresses []string
}

func (ClusterDetails) Signal() SignalType { return SignalWalletCluster }
