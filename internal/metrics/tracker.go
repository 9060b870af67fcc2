// Package metrics provides scan statistics for the watch dashboard and
// Prometheus export.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polysentry/tracker/internal/model"
)

// Snapshot is a point-in-time view of tracker state for the TUI.
type Snapshot struct {
	ScansTotal       int64
	MarketsScanned   int64
	AlertsTotal      int64
	AlertsBySignal   map[model.SignalType]int64
	AlertsBySeverity map[model.Severity]int64
	LastScanTime     time.Time
	LastScanDuration time.Duration
	LastScanAlerts   int
	LiveTrades       int64
	StreamStatus     string
	Uptime           time.Duration
}

// Tracker provides thread-safe scan statistics plus Prometheus collectors.
type Tracker struct {
	mu               sync.RWMutex
	scansTotal       int64
	marketsScanned   int64
	alertsTotal      int64
	alertsBySignal   map[model.SignalType]int64
	alertsBySeverity map[model.Severity]int64
	lastScanTime     time.Time
	lastScanDuration time.Duration
	lastScanAlerts   int
	liveTrades       int64
	streamStatus     string
	startTime        time.Time

	promScans      prometheus.Counter
	promDuration   prometheus.Histogram
	promAlerts     *prometheus.CounterVec
	promLiveTrades prometheus.Counter
	promStream     prometheus.Gauge
}

// NewTracker creates a Tracker with collectors registered on the default
// Prometheus registry.
func NewTracker() *Tracker {
	return &Tracker{
		alertsBySignal:   make(map[model.SignalType]int64),
		alertsBySeverity: make(map[model.Severity]int64),
		streamStatus:     "disconnected",
		startTime:        time.Now(),

		promScans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_scans_total",
			Help: "Total number of completed scans",
		}),
		promDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_scan_duration_seconds",
			Help:    "Duration of full scans in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		promAlerts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_alerts_total",
			Help: "Total alerts emitted",
		}, []string{"signal", "severity"}),
		promLiveTrades: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_live_trades_total",
			Help: "Total trades received on the live stream",
		}),
		promStream: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_stream_connected",
			Help: "Whether the live trade stream is connected",
		}),
	}
}

// RecordScan records one completed scan.
func (t *Tracker) RecordScan(markets int, alerts []model.Alert, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.scansTotal++
	t.marketsScanned += int64(markets)
	t.lastScanTime = time.Now()
	t.lastScanDuration = duration
	t.lastScanAlerts = len(alerts)

	for _, alert := range alerts {
		t.alertsTotal++
		t.alertsBySignal[alert.SignalType]++
		t.alertsBySeverity[alert.Severity]++
		t.promAlerts.WithLabelValues(string(alert.SignalType), string(alert.Severity)).Inc()
	}

	t.promScans.Inc()
	t.promDuration.Observe(duration.Seconds())
}

// RecordLiveTrade records one trade received on the websocket stream.
func (t *Tracker) RecordLiveTrade() {
	t.mu.Lock()
	t.liveTrades++
	t.mu.Unlock()
	t.promLiveTrades.Inc()
}

// SetStreamStatus sets the live stream connection status.
func (t *Tracker) SetStreamStatus(status string) {
	t.mu.Lock()
	t.streamStatus = status
	t.mu.Unlock()

	if status == "connected" {
		t.promStream.Set(1)
	} else {
		t.promStream.Set(0)
	}
}

// Snapshot returns a point-in-time copy of the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bySignal := make(map[model.SignalType]int64, len(t.alertsBySignal))
	for k, v := range t.alertsBySignal {
		bySignal[k] = v
	}
	bySeverity := make(map[model.Severity]int64, len(t.alertsBySeverity))
	for k, v := range t.alertsBySeverity {
		bySeverity[k] = v
	}

	return Snapshot{
		ScansTotal:       t.scansTotal,
		MarketsScanned:   t.marketsScanned,
		AlertsTotal:      t.alertsTotal,
		AlertsBySignal:   bySignal,
		AlertsBySeverity: bySeverity,
		LastScanTime:     t.lastScanTime,
		LastScanDuration: t.lastScanDuration,
		LastScanAlerts:   t.lastScanAlerts,
		LiveTrades:       t.liveTrades,
		StreamStatus:     t.streamStatus,
		Uptime:           time.Since(t.startTime),
	}
}

// Serve exposes /metrics on the given port, blocking until the server fails.
func Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
