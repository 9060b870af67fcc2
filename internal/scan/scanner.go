// Package scan orchestrates the detectors over one market snapshot and runs
// the continuous watch loop.
package scan

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/detector"
	"github.com/polysentry/tracker/internal/model"
)

// Scanner runs all three detectors over a market snapshot using a bounded
// worker pool. Unit of work is (detector, market) for the per-market
// detectors and (cluster detector, whole set) for the cross-market one.
type Scanner struct {
	large   *detector.LargeTradeDetector
	volume  *detector.VolumeAnomalyDetector
	cluster *detector.WalletClusterDetector
	workers int
}

// New creates a Scanner. workers bounds concurrent fetches.
func New(large *detector.LargeTradeDetector, volume *detector.VolumeAnomalyDetector, cluster *detector.WalletClusterDetector, workers int) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{large: large, volume: volume, cluster: cluster, workers: workers}
}

// job is one independently computable unit of a scan.
type job struct {
	name string
	run  func(ctx context.Context) ([]model.Alert, error)
}

// Scan runs every detector over the snapshot and returns the merged alert
// list sorted by descending score. Results are collected in job order before
// the final stable sort, so parallel execution never leaks nondeterministic
// ordering. A failed unit is logged and skipped; siblings keep running.
func (s *Scanner) Scan(ctx context.Context, markets []model.Market) []model.Alert {
	var jobs []job
	for _, m := range markets {
		market := m
		jobs = append(jobs, job{
			name: "large_trade:" + market.Slug,
			run: func(ctx context.Context) ([]model.Alert, error) {
				return s.large.AnalyzeMarket(ctx, market)
			},
		})
	}
	for _, m := range markets {
		market := m
		jobs = append(jobs, job{
			name: "volume:" + market.Slug,
			run: func(ctx context.Context) ([]model.Alert, error) {
				alert, err := s.volume.AnalyzeMarket(ctx, market)
				if err != nil || alert == nil {
					return nil, err
				}
				return []model.Alert{*alert}, nil
			},
		})
	}
	jobs = append(jobs, job{
		name: "wallet_cluster",
		run: func(ctx context.Context) ([]model.Alert, error) {
			return s.cluster.Scan(ctx, markets)
		},
	})

	results := make([][]model.Alert, len(jobs))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				alerts, err := jobs[i].run(ctx)
				if err != nil {
					log.Warn().Err(err).Str("unit", jobs[i].name).Msg("scan_unit_failed")
					continue
				}
				results[i] = alerts
			}
		}()
	}

	for i := range jobs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	var merged []model.Alert
	for _, alerts := range results {
		merged = append(merged, alerts...)
	}
	model.SortAlerts(merged)
	return merged
}
