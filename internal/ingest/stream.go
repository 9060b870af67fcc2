package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/polysentry/tracker/internal/model"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterPercent  = 0.2

	heartbeatTimeout = 60 * time.Second
	pongTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// StatusFunc receives connection state transitions.
type StatusFunc func(connected bool)

// Listener holds a websocket subscription to the CLOB market channel and
// feeds parsed trades into a channel. It reconnects forever with exponential
// backoff until the context is cancelled or Stop is called.
type Listener struct {
	url      string
	trades   chan<- model.Trade
	onStatus StatusFunc

	conn   *websocket.Conn
	connMu sync.Mutex

	lastMsg   time.Time
	lastMsgMu sync.RWMutex

	assetIDs   []string
	assetIDsMu sync.RWMutex

	backoff  time.Duration
	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewListener creates a listener that writes trades to the given channel.
// onStatus may be nil.
func NewListener(url string, trades chan<- model.Trade, onStatus StatusFunc) *Listener {
	return &Listener{
		url:      url,
		trades:   trades,
		onStatus: onStatus,
		backoff:  initialBackoff,
		stopChan: make(chan struct{}),
	}
}

// SetAssetIDs replaces the token IDs to subscribe to. Takes effect on the
// next (re)connection.
func (l *Listener) SetAssetIDs(ids []string) {
	l.assetIDsMu.Lock()
	defer l.assetIDsMu.Unlock()
	l.assetIDs = ids
}

// Start launches the connection loop and heartbeat monitor.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(2)
	go l.runLoop(ctx)
	go l.heartbeatMonitor(ctx)
}

// Stop shuts the listener down and waits for its goroutines to exit.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.closeConnection()
	l.wg.Wait()
}

func (l *Listener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("reason", "context cancelled").Msg("ws_loop_stopping")
			return
		case <-l.stopChan:
			log.Info().Str("reason", "stop signal").Msg("ws_loop_stopping")
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			log.Error().Err(err).Dur("backoff", l.backoff).Msg("ws_connect_failed")
			l.setStatus(false)
			l.waitBackoff(ctx)
			continue
		}
		l.setStatus(true)

		if err := l.readLoop(ctx); err != nil {
			log.Warn().Err(err).Msg("ws_read_error")
		}

		l.closeConnection()
		l.setStatus(false)

		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
			l.waitBackoff(ctx)
		}
	}
}

func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	// The market channel lives under the /market path.
	url := l.url
	if !strings.HasSuffix(url, "/market") {
		url = strings.TrimSuffix(url, "/") + "/market"
	}

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	l.backoff = initialBackoff
	log.Info().Str("endpoint", url).Msg("ws_connected")

	if err := l.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	l.updateLastMsg()
	return nil
}

func (l *Listener) subscribe() error {
	l.assetIDsMu.RLock()
	assetIDs := l.assetIDs
	l.assetIDsMu.RUnlock()

	msg := map[string]any{
		"type":       "market",
		"assets_ids": assetIDs,
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := l.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send subscribe message: %w", err)
	}

	log.Info().Str("channel", "market").Int("asset_count", len(assetIDs)).Msg("ws_subscribed")
	return nil
}

func (l *Listener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout + pongTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		l.updateLastMsg()
		l.handleMessage(message)
	}
}

func (l *Listener) handleMessage(data []byte) {
	trades, eventType, err := parseMessage(data)
	if err != nil {
		log.Debug().Err(err).Msg("ws_parse_error")
		return
	}

	if len(trades) == 0 {
		if eventType != "" {
			log.Debug().Str("type", eventType).Msg("ws_message")
		}
		return
	}

	for _, trade := range trades {
		select {
		case l.trades <- trade:
			log.Debug().
				Str("market", shorten(trade.MarketID, 16)).
				Float64("price", trade.Price).
				Float64("value_usd", trade.USDValue).
				Msg("live_trade")
		default:
			log.Warn().Str("market", shorten(trade.MarketID, 16)).Msg("trade_channel_full")
		}
	}
}

func (l *Listener) heartbeatMonitor(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

// checkHeartbeat pings the server when no message has arrived within the
// heartbeat window. A failed ping forces a reconnect via the read loop.
func (l *Listener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()

	if lastMsg.IsZero() {
		return
	}

	elapsed := time.Since(lastMsg)
	if elapsed <= heartbeatTimeout {
		return
	}
	log.Warn().Dur("elapsed", elapsed).Msg("ws_heartbeat_timeout")

	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()

	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			log.Warn().Err(err).Msg("ws_ping_failed")
			l.closeConnection()
		}
	}
}

func (l *Listener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

func (l *Listener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		log.Info().Msg("ws_disconnected")
	}
}

func (l *Listener) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(l.backoff) * jitterPercent * (rand.Float64()*2 - 1))
	wait := l.backoff + jitter

	log.Debug().Dur("duration", wait).Msg("ws_waiting_backoff")

	select {
	case <-ctx.Done():
	case <-l.stopChan:
	case <-time.After(wait):
	}

	l.backoff = time.Duration(float64(l.backoff) * backoffFactor)
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
}

func (l *Listener) setStatus(connected bool) {
	if l.onStatus != nil {
		l.onStatus(connected)
	}
}

func shorten(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
