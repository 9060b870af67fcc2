// Package ui provides the terminal dashboard for watch mode.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/polysentry/tracker/internal/metrics"
	"github.com/polysentry/tracker/internal/model"
)

// App is the watch-mode dashboard. It renders a ranked alert feed, a live
// trade tape, and scan statistics.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	alertFeed *AlertFeedView
	tradeTape *TradeTapeView
	scanStats *ScanStatsView

	tradeChan <-chan model.Trade
	alertChan <-chan model.Alert
	tracker   *metrics.Tracker
	refresh   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the dashboard. refresh controls how often the stats panel
// re-reads the tracker.
func NewApp(tradeChan <-chan model.Trade, alertChan <-chan model.Alert, tracker *metrics.Tracker, refresh time.Duration) *App {
	ctx, cancel := context.WithCancel(context.Background())

	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}

	a := &App{
		app:       tview.NewApplication(),
		alertFeed: NewAlertFeedView(),
		tradeTape: NewTradeTapeView(),
		scanStats: NewScanStatsView(),
		tradeChan: tradeChan,
		alertChan: alertChan,
		tracker:   tracker,
		refresh:   refresh,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupLayout()
	a.setupKeyboard()
	return a
}

// setupLayout arranges the panels: alert feed on top, trade tape and stats
// side by side below.
func (a *App) setupLayout() {
	bottomRow := tview.NewFlex().
		AddItem(a.tradeTape.Widget(), 0, 2, false).
		AddItem(a.scanStats.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.alertFeed.Widget(), 0, 3, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				a.redraw()
				return nil
			}
		}
		return event
	})
}

// Run starts the dashboard and blocks until it is stopped.
func (a *App) Run() error {
	go a.consumeTrades()
	go a.consumeAlerts()
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("dashboard run: %w", err)
	}
	return nil
}

// Stop tears the dashboard down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) consumeTrades() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case trade, ok := <-a.tradeChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.tradeTape.AddTrade(trade)
			})
		}
	}
}

func (a *App) consumeAlerts() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case alert, ok := <-a.alertChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.alertFeed.AddAlert(alert)
			})
		}
	}
}

func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			snapshot := a.tracker.Snapshot()
			a.app.QueueUpdateDraw(func() {
				a.scanStats.Update(snapshot)
			})
		}
	}
}

func (a *App) redraw() {
	snapshot := a.tracker.Snapshot()
	a.app.QueueUpdateDraw(func() {
		a.alertFeed.Refresh()
		a.tradeTape.Refresh()
		a.scanStats.Update(snapshot)
	})
}
