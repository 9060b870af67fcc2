package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/detector"
	"github.com/polysentry/tracker/internal/metrics"
	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/notify"
)

// WatcherOptions configures the continuous monitoring loop.
type WatcherOptions struct {
	Interval     time.Duration
	MinVolume24h float64
	MarketLimit  int

	// Cooldown suppresses re-notification of an already-seen alert key.
	Cooldown time.Duration
}

// Watcher repeatedly scans high-volume markets and forwards newly seen
// alerts. Scans run strictly one at a time; the loop sleeps between them.
type Watcher struct {
	scanner  *Scanner
	markets  detector.MarketSource
	tracker  *metrics.Tracker
	notifier notify.Notifier
	opts     WatcherOptions

	// onAlerts, when set, receives each scan's newly seen alerts (TUI hook)
	onAlerts func([]model.Alert)

	seen map[string]time.Time
}

// NewWatcher creates a Watcher.
func NewWatcher(scanner *Scanner, markets detector.MarketSource, tracker *metrics.Tracker, notifier notify.Notifier, opts WatcherOptions) *Watcher {
	if opts.Interval == 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.MarketLimit == 0 {
		opts.MarketLimit = 20
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = time.Hour
	}
	return &Watcher{
		scanner:  scanner,
		markets:  markets,
		tracker:  tracker,
		notifier: notifier,
		opts:     opts,
		seen:     make(map[string]time.Time),
	}
}

// SetAlertSink registers a callback for newly seen alerts.
func (w *Watcher) SetAlertSink(fn func([]model.Alert)) {
	w.onAlerts = fn
}

// Run executes scans until the context is cancelled. Scan failures are
// logged; the loop keeps going.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	w.runScan(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("watch_stopped")
			return
		case <-ticker.C:
			w.runScan(ctx)
		}
	}
}

// runScan performs one full scan and dispatches new alerts.
func (w *Watcher) runScan(ctx context.Context) {
	scanID := uuid.NewString()
	started := time.Now()
	log.Info().Str("scan_id", scanID).Msg("scan_started")

	markets, err := w.markets.GetHighVolumeMarkets(ctx, w.opts.MinVolume24h, w.opts.MarketLimit)
	if err != nil {
		log.Error().Err(err).Str("scan_id", scanID).Msg("market_fetch_failed")
		return
	}
	if len(markets) == 0 {
		log.Warn().Str("scan_id", scanID).Msg("no_markets_to_monitor")
		return
	}

	alerts := w.scanner.Scan(ctx, markets)
	duration := time.Since(started)

	if w.tracker != nil {
		w.tracker.RecordScan(len(markets), alerts, duration)
	}

	newAlerts := w.filterNew(alerts, started)
	log.Info().
		Str("scan_id", scanID).
		Int("markets", len(markets)).
		Int("alerts", len(alerts)).
		Int("new_alerts", len(newAlerts)).
		Dur("duration", duration).
		Msg("scan_complete")

	if len(newAlerts) == 0 {
		return
	}

	if w.onAlerts != nil {
		w.onAlerts(newAlerts)
	}

	if w.notifier != nil && w.notifier.IsConfigured() {
		if err := w.notifier.Send(ctx, newAlerts); err != nil {
			log.Warn().Err(err).Msg("notify_failed")
		}
	}
}

// filterNew drops alerts whose key was already seen within the cooldown and
// prunes expired entries.
func (w *Watcher) filterNew(alerts []model.Alert, now time.Time) []model.Alert {
	for key, seenAt := range w.seen {
		if now.Sub(seenAt) > w.opts.Cooldown {
			delete(w.seen, key)
		}
	}

	var fresh []model.Alert
	for _, alert := range alerts {
		key := alertKey(alert)
		if _, ok := w.seen[key]; ok {
			continue
		}
		w.seen[key] = now
		fresh = append(fresh, alert)
	}
	return fresh
}

// alertKey identifies an alert for deduplication across scans.
func alertKey(a model.Alert) string {
	return fmt.Sprintf("%s|%s|%s|%s", a.SignalType, a.Market.ConditionID, a.Severity, a.Description)
}
