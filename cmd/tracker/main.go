// Package main is the entry point for the polysentry tracker CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/config"
	"github.com/polysentry/tracker/internal/detector"
	"github.com/polysentry/tracker/internal/ingest"
	"github.com/polysentry/tracker/internal/metrics"
	"github.com/polysentry/tracker/internal/model"
	"github.com/polysentry/tracker/internal/notify"
	"github.com/polysentry/tracker/internal/provider"
	"github.com/polysentry/tracker/internal/render"
	"github.com/polysentry/tracker/internal/scan"
	"github.com/polysentry/tracker/internal/ui"
)

const tradeChannelBuffer = 1000

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	log.Debug().
		Str("gamma_api_url", cfg.GammaAPIURL).
		Str("data_api_url", cfg.DataAPIURL).
		Str("clob_ws_url", cfg.CLOBWSURL).
		Str("telegram_token", cfg.MaskedTelegramToken()).
		Float64("size_percentile", cfg.SizePercentile).
		Float64("z_score_threshold", cfg.ZScoreThreshold).
		Int("min_cluster_size", cfg.MinClusterSize).
		Int("scan_workers", cfg.ScanWorkers).
		Msg("config_loaded")

	app := newApp(cfg)

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "scan":
		err = app.runScan(args)
	case "analyze":
		err = app.runAnalyze(args)
	case "wallet":
		err = app.runWallet(args)
	case "markets":
		err = app.runMarkets(args)
	case "watch":
		err = app.runWatch(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("command_failed")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: tracker <command> [flags]

commands:
  scan      run all detectors over high-volume markets
  analyze   run all detectors over a single market
  wallet    show recent activity for a wallet address
  markets   list high-volume or closing-soon markets
  watch     scan continuously, with optional dashboard and notifications
`)
}

// app bundles the API clients and detectors shared by the subcommands.
type app struct {
	cfg     *config.Config
	gamma   *provider.GammaClient
	data    *provider.DataClient
	large   *detector.LargeTradeDetector
	volume  *detector.VolumeAnomalyDetector
	cluster *detector.WalletClusterDetector
	scanner *scan.Scanner
}

func newApp(cfg *config.Config) *app {
	client := provider.NewClient(provider.ClientOptions{
		Timeout:         cfg.HTTPTimeout,
		RequestsPerSec:  cfg.RequestsPerSec,
		MaxRetryElapsed: cfg.MaxRetryElapsed,
	})

	gamma := provider.NewGammaClient(cfg.GammaAPIURL, client)
	data := provider.NewDataClient(cfg.DataAPIURL, client)

	large := detector.NewLargeTradeDetector(gamma, data, detector.LargeTradeOptions{
		SizePercentile:      cfg.SizePercentile,
		TimeWindowHours:     cfg.TradeWindowHours,
		MinTradeUSD:         cfg.MinTradeUSD,
		HighConfidencePrice: cfg.HighConfidencePrice,
		SampleLimit:         cfg.LargeTradeSampleLimit,
	})
	volume := detector.NewVolumeAnomalyDetector(gamma, data, detector.VolumeAnomalyOptions{
		ZScoreThreshold: cfg.ZScoreThreshold,
		LookbackDays:    cfg.LookbackDays,
		MinTrades:       cfg.MinTradesForBaseline,
		SampleLimit:     cfg.VolumeSampleLimit,
		MinVolume24h:    cfg.MinVolume24h,
	})
	cluster := detector.NewWalletClusterDetector(gamma, data, detector.WalletClusterOptions{
		TimeWindow:            cfg.CoordinationWindow,
		MinClusterSize:        cfg.MinClusterSize,
		MinSharedMarkets:      cfg.MinSharedMarkets,
		CoordinationThreshold: cfg.CoordinationThreshold,
		SampleLimit:           cfg.ClusterSampleLimit,
		MinVolume24h:          cfg.MinVolume24h,
	})

	return &app{
		cfg:     cfg,
		gamma:   gamma,
		data:    data,
		large:   large,
		volume:  volume,
		cluster: cluster,
		scanner: scan.New(large, volume, cluster, cfg.ScanWorkers),
	}
}

// runScan fetches the high-volume market snapshot and runs every detector
// over it once.
func (a *app) runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	limit := fs.Int("limit", a.cfg.ScanMarketLimit, "number of markets to scan")
	minVolume := fs.Float64("min-volume", a.cfg.MinVolume24h, "minimum 24h volume in USD")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	log.Info().Int("limit", *limit).Float64("min_volume_24h", *minVolume).Msg("scan_starting")

	markets, err := a.gamma.GetHighVolumeMarkets(ctx, *minVolume, *limit)
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}
	if len(markets) == 0 {
		fmt.Println("No markets matched the volume filter.")
		return nil
	}

	start := time.Now()
	alerts := a.scanner.Scan(ctx, markets)
	log.Info().
		Int("markets", len(markets)).
		Int("alerts", len(alerts)).
		Dur("duration", time.Since(start)).
		Msg("scan_complete")

	render.PrintAlertsSummary(os.Stdout, alerts)
	for i, alert := range alerts {
		if i >= 10 {
			break
		}
		render.PrintAlert(os.Stdout, alert)
	}
	return nil
}

// runAnalyze resolves one market by condition ID or slug and runs every
// detector against it.
func (a *app) runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: tracker analyze <condition-id-or-slug>")
	}
	id := fs.Arg(0)

	ctx, cancel := signalContext()
	defer cancel()

	market, err := a.gamma.GetMarket(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch market: %w", err)
	}
	if market == nil {
		market, err = a.gamma.GetMarketBySlug(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch market by slug: %w", err)
		}
	}
	if market == nil {
		return fmt.Errorf("market %q not found", id)
	}

	now := time.Now().UTC()
	render.PrintMarket(os.Stdout, *market, now)

	var alerts []model.Alert

	largeAlerts, err := a.large.AnalyzeMarket(ctx, *market)
	if err != nil {
		return fmt.Errorf("large trade analysis: %w", err)
	}
	alerts = append(alerts, largeAlerts...)

	volumeAlert, err := a.volume.AnalyzeMarket(ctx, *market)
	if err != nil {
		return fmt.Errorf("volume analysis: %w", err)
	}
	if volumeAlert != nil {
		alerts = append(alerts, *volumeAlert)
	}

	clusterAlerts, err := a.cluster.Scan(ctx, []model.Market{*market})
	if err != nil {
		return fmt.Errorf("cluster analysis: %w", err)
	}
	alerts = append(alerts, clusterAlerts...)

	model.SortAlerts(alerts)

	if len(alerts) == 0 {
		fmt.Println("No suspicious activity detected.")
		return nil
	}
	for _, alert := range alerts {
		render.PrintAlert(os.Stdout, alert)
	}
	return nil
}

// runWallet prints recent trades for one address.
func (a *app) runWallet(args []string) error {
	fs := flag.NewFlagSet("wallet", flag.ExitOnError)
	limit := fs.Int("limit", 100, "number of trades to fetch")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: tracker wallet <address>")
	}
	address := fs.Arg(0)

	ctx, cancel := signalContext()
	defer cancel()

	trades, err := a.data.GetWalletTrades(ctx, address, *limit)
	if err != nil {
		return fmt.Errorf("fetch wallet trades: %w", err)
	}

	render.PrintWalletActivity(os.Stdout, address, trades)
	return nil
}

// runMarkets lists markets by 24h volume, or by resolution time with -closing.
func (a *app) runMarkets(args []string) error {
	fs := flag.NewFlagSet("markets", flag.ExitOnError)
	limit := fs.Int("limit", 30, "number of markets to list")
	minVolume := fs.Float64("min-volume", a.cfg.MinVolume24h, "minimum 24h volume in USD")
	closingHours := fs.Int("closing", 0, "list markets resolving within this many hours instead")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	var (
		markets []model.Market
		err     error
	)
	if *closingHours > 0 {
		markets, err = a.gamma.GetMarketsClosingSoon(ctx, *closingHours, *limit)
	} else {
		markets, err = a.gamma.GetHighVolumeMarkets(ctx, *minVolume, *limit)
	}
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	render.PrintMarketsTable(os.Stdout, markets, time.Now().UTC())
	return nil
}

// runWatch scans on an interval until interrupted. With the dashboard
// enabled it also tails the live trade stream.
func (a *app) runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", a.cfg.WatchInterval, "time between scans")
	limit := fs.Int("limit", a.cfg.ScanMarketLimit, "number of markets per scan")
	tuiFlag := fs.Bool("tui", a.cfg.EnableTUI, "show the terminal dashboard")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	tracker := metrics.NewTracker()
	go func() {
		if err := metrics.Serve(a.cfg.PrometheusPort); err != nil {
			log.Error().Err(err).Int("port", a.cfg.PrometheusPort).Msg("metrics_server_failed")
		}
	}()

	notifier := notify.NewTelegramNotifier(a.cfg.TelegramBotToken, a.cfg.TelegramChatIDs)

	watcher := scan.NewWatcher(a.scanner, a.gamma, tracker, notifier, scan.WatcherOptions{
		Interval:     *interval,
		MinVolume24h: a.cfg.MinVolume24h,
		MarketLimit:  *limit,
		Cooldown:     a.cfg.AlertCooldown,
	})

	log.Info().
		Dur("interval", *interval).
		Int("market_limit", *limit).
		Bool("tui", *tuiFlag).
		Bool("telegram", notifier.IsConfigured()).
		Msg("watch_starting")

	if !*tuiFlag {
		watcher.Run(ctx)
		log.Info().Msg("watch_stopped")
		return nil
	}

	return a.runWatchDashboard(ctx, cancel, watcher, tracker)
}

// runWatchDashboard runs the watch loop behind the TUI, feeding it live
// trades from the websocket stream.
func (a *app) runWatchDashboard(ctx context.Context, cancel context.CancelFunc, watcher *scan.Watcher, tracker *metrics.Tracker) error {
	rawTrades := make(chan model.Trade, tradeChannelBuffer)
	uiTrades := make(chan model.Trade, tradeChannelBuffer)
	uiAlerts := make(chan model.Alert, 100)

	listener := ingest.NewListener(a.cfg.CLOBWSURL, rawTrades, func(connected bool) {
		if connected {
			tracker.SetStreamStatus("connected")
		} else {
			tracker.SetStreamStatus("disconnected")
		}
	})

	tokenIDs, err := a.gamma.GetActiveTokenIDs(ctx, 100)
	if err != nil {
		log.Warn().Err(err).Msg("token_id_fetch_failed")
	}
	listener.SetAssetIDs(tokenIDs)
	listener.Start(ctx)
	defer listener.Stop()

	// Count live trades before handing them to the dashboard.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case trade, ok := <-rawTrades:
				if !ok {
					return
				}
				tracker.RecordLiveTrade()
				select {
				case uiTrades <- trade:
				default:
				}
			}
		}
	}()

	watcher.SetAlertSink(func(alerts []model.Alert) {
		for _, alert := range alerts {
			select {
			case uiAlerts <- alert:
			default:
			}
		}
	})
	go watcher.Run(ctx)

	dashboard := ui.NewApp(uiTrades, uiAlerts, tracker, a.cfg.UIRefreshRate)

	errChan := make(chan error, 1)
	go func() {
		errChan <- dashboard.Run()
	}()

	select {
	case <-ctx.Done():
		dashboard.Stop()
		<-errChan
		return nil
	case err := <-errChan:
		cancel()
		return err
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// setupLogger configures the global console logger.
func setupLogger(levelStr string) {
	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
}
