// Package render formats alerts, markets, and trades for console output.
package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/polysentry/tracker/internal/model"
)

// FormatUSD formats a USD value with appropriate precision.
func FormatUSD(value float64) string {
	switch {
	case value >= 1_000_000:
		return fmt.Sprintf("$%.2fM", value/1_000_000)
	case value >= 1_000:
		return fmt.Sprintf("$%.1fK", value/1_000)
	}
	return fmt.Sprintf("$%.2f", value)
}

// FormatTimeUntil formats the time from now until t in human-readable form.
func FormatTimeUntil(t *time.Time, now time.Time) string {
	if t == nil {
		return "N/A"
	}

	total := int(t.Sub(now).Seconds())
	if total < 0 {
		return "Expired"
	}

	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 24 {
		return fmt.Sprintf("%dd %dh", hours/24, hours%24)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatWallet truncates a wallet address for display.
func FormatWallet(address string, length int) string {
	if len(address) <= length {
		return address
	}
	half := (length - 4) / 2
	return address[:half+2] + "..." + address[len(address)-half:]
}

// truncateText shortens text to max runs, appending an ellipsis.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// PrintAlert writes a detailed multi-line view of one alert.
func PrintAlert(w io.Writer, a model.Alert) {
	fmt.Fprintf(w, "[%s] %s\n", a.Severity, a.SignalType)
	fmt.Fprintf(w, "  Market:      %s\n", truncateText(a.Market.Question, 80))
	fmt.Fprintf(w, "  Description: %s\n", a.Description)

	switch d := a.Details.(type) {
	case model.LargeTradeDetails:
		fmt.Fprintf(w, "  Wallet:      %s\n", FormatWallet(d.Wallet, 12))
		fmt.Fprintf(w, "  Trade:       %s on %s\n", FormatUSD(d.TradeUSD), d.Outcome)
		fmt.Fprintf(w, "  Price:       %.1f%%\n", d.Price*100)
		fmt.Fprintf(w, "  Percentile:  %.1f%%\n", d.Percentile)
		if d.TimeToResolutionHours != nil {
			fmt.Fprintf(w, "  Resolves in: %.1fh\n", *d.TimeToResolutionHours)
		}
	case model.VolumeAnomalyDetails:
		fmt.Fprintf(w, "  Z-Score:     %.1f\n", d.ZScore)
		fmt.Fprintf(w, "  Recent:      %s\n", FormatUSD(d.RecentVolumeUSD))
		fmt.Fprintf(w, "  Expected:    %s\n", FormatUSD(d.ExpectedVolumeUSD))
		fmt.Fprintf(w, "  Multiplier:  %.1fx\n", d.VolumeMultiplier)
	case model.ClusterDetails:
		fmt.Fprintf(w, "  Cluster:     %d wallets\n", d.ClusterSize)
		fmt.Fprintf(w, "  Markets:     %d\n", d.MarketsCount)
		fmt.Fprintf(w, "  Volume:      %s\n", FormatUSD(d.TotalVolumeUSD))
		fmt.Fprintf(w, "  Coordination: %.0f%%\n", d.CoordinationScore*100)
	}

	fmt.Fprintf(w, "  Detected:    %s\n\n", a.Timestamp.Format("2006-01-02 15:04 UTC"))
}

// PrintAlertsSummary writes a summary table of the top alerts.
func PrintAlertsSummary(w io.Writer, alerts []model.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No suspicious activity detected.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tTYPE\tMARKET\tDETAIL\tTIME")

	for i, a := range alerts {
		if i >= 20 {
			break
		}

		var detail string
		switch d := a.Details.(type) {
		case model.LargeTradeDetails:
			detail = FormatUSD(d.TradeUSD)
		case model.VolumeAnomalyDetails:
			detail = fmt.Sprintf("z=%.1f", d.ZScore)
		case model.ClusterDetails:
			detail = fmt.Sprintf("%d wallets", d.ClusterSize)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.Severity,
			shortSignal(a.SignalType),
			truncateText(a.Market.Question, 40),
			detail,
			a.Timestamp.Format("15:04"),
		)
	}
	tw.Flush()
}

// shortSignal compacts a signal type for table display.
func shortSignal(s model.SignalType) string {
	switch s {
	case model.SignalLargeTradeBeforeResolution:
		return "LARGE TRADE"
	case model.SignalVolumeAnomaly:
		return "VOLUME"
	case model.SignalWalletCluster:
		return "CLUSTER"
	}
	return string(s)
}

// PrintMarket writes a multi-line view of one market.
func PrintMarket(w io.Writer, m model.Market, now time.Time) {
	fmt.Fprintln(w, m.Question)
	fmt.Fprintf(w, "  Slug:      %s\n", m.Slug)
	fmt.Fprintf(w, "  Volume:    %s (24h: %s)\n", FormatUSD(m.Volume), FormatUSD(m.Volume24h))
	fmt.Fprintf(w, "  Liquidity: %s\n", FormatUSD(m.Liquidity))

	if len(m.Outcomes) > 0 && len(m.OutcomePrices) > 0 {
		var prices []string
		for i, outcome := range m.Outcomes {
			if i >= len(m.OutcomePrices) {
				break
			}
			prices = append(prices, fmt.Sprintf("%s: %.1f%%", outcome, m.OutcomePrices[i]*100))
		}
		fmt.Fprintf(w, "  Prices:    %s\n", strings.Join(prices, ", "))
	}

	if m.EndDate != nil {
		fmt.Fprintf(w, "  Closes in: %s\n", FormatTimeUntil(m.EndDate, now))
	}
	fmt.Fprintln(w)
}

// PrintMarketsTable writes a summary table of markets.
func PrintMarketsTable(w io.Writer, markets []model.Market, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tMARKET\t24H VOLUME\tLIQUIDITY\tCLOSES IN")

	for i, m := range markets {
		if i >= 30 {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			i+1,
			truncateText(m.Question, 50),
			FormatUSD(m.Volume24h),
			FormatUSD(m.Liquidity),
			FormatTimeUntil(m.EndDate, now),
		)
	}
	tw.Flush()
}

// PrintWalletActivity writes a wallet's recent trades grouped by market.
func PrintWalletActivity(w io.Writer, address string, trades []model.Trade) {
	fmt.Fprintf(w, "Wallet: %s\n", FormatWallet(address, 20))
	fmt.Fprintf(w, "Found %d recent trades\n\n", len(trades))

	byMarket := make(map[string][]model.Trade)
	var order []string
	for _, t := range trades {
		question := truncateText(t.MarketQuestion, 50)
		if _, ok := byMarket[question]; !ok {
			order = append(order, question)
		}
		byMarket[question] = append(byMarket[question], t)
	}

	for _, question := range order {
		marketTrades := byMarket[question]
		total := 0.0
		for _, t := range marketTrades {
			total += t.USDValue
		}

		fmt.Fprintln(w, question)
		fmt.Fprintf(w, "  Trades: %d, Volume: %s\n", len(marketTrades), FormatUSD(total))

		for i, t := range marketTrades {
			if i >= 5 {
				fmt.Fprintf(w, "    ... and %d more\n", len(marketTrades)-5)
				break
			}
			fmt.Fprintf(w, "    %s %s @ %.1f%% (%s) %s\n",
				t.Side, t.Outcome, t.Price*100,
				FormatUSD(t.USDValue),
				t.Timestamp.Format("01/02 15:04"),
			)
		}
		fmt.Fprintln(w)
	}
}
