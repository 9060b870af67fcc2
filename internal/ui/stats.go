package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/polysentry/tracker/internal/metrics"
	"github.com/polysentry/tracker/internal/model"
)

// ScanStatsView displays scan counters and stream health.
type ScanStatsView struct {
	textView *tview.TextView
}

// NewScanStatsView creates the stats panel.
func NewScanStatsView() *ScanStatsView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Scan Stats ").SetBorder(true)

	return &ScanStatsView{textView: textView}
}

// Widget returns the tview primitive.
func (v *ScanStatsView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the panel from a tracker snapshot.
func (v *ScanStatsView) Update(snapshot metrics.Snapshot) {
	v.textView.Clear()

	streamColor := "red"
	if snapshot.StreamStatus == "connected" {
		streamColor = "green"
	}

	lastScan := "never"
	if !snapshot.LastScanTime.IsZero() {
		lastScan = formatTimeAgo(snapshot.LastScanTime)
	}

	text := fmt.Sprintf(`[yellow]System[-]
Uptime: %s
Stream: [%s]%s[-]
Live Trades: %d

[yellow]Scans[-]
Total: %d
Markets Scanned: %d
Last Scan: %s (%.1fs, %d alerts)

[yellow]Alerts[-]
Total: %d
Large Trade: %d
Volume Anomaly: %d
Wallet Cluster: %d

[yellow]By Severity[-]
Critical: %d  High: %d
Medium: %d  Low: %d
`,
		formatDuration(snapshot.Uptime),
		streamColor, snapshot.StreamStatus,
		snapshot.LiveTrades,
		snapshot.ScansTotal,
		snapshot.MarketsScanned,
		lastScan, snapshot.LastScanDuration.Seconds(), snapshot.LastScanAlerts,
		snapshot.AlertsTotal,
		snapshot.AlertsBySignal[model.SignalLargeTradeBeforeResolution],
		snapshot.AlertsBySignal[model.SignalVolumeAnomaly],
		snapshot.AlertsBySignal[model.SignalWalletCluster],
		snapshot.AlertsBySeverity[model.SeverityCritical],
		snapshot.AlertsBySeverity[model.SeverityHigh],
		snapshot.AlertsBySeverity[model.SeverityMedium],
		snapshot.AlertsBySeverity[model.SeverityLow],
	)

	fmt.Fprint(v.textView, text)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func formatTimeAgo(t time.Time) string {
	elapsed := time.Since(t)
	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	return fmt.Sprintf("%.0fh ago", elapsed.Hours())
}
