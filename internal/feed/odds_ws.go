// Package feed brings raw quotes into the engine, either straight from the
// scraper fleet's WebSocket endpoint or relayed over the signal bus.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryasaputra/surebot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// wsCommand is the subscribe message sent after connecting.
type wsCommand struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets,omitempty"`
}

// wsEnvelope identifies the message type before full decoding.
type wsEnvelope struct {
	Type string `json:"type"`
}

// OddsFeed connects to the odds aggregator WebSocket, subscribes to the
// configured markets, and pushes each paired quote to quoteCh. It reconnects
// with exponential backoff and re-subscribes after every reconnect.
type OddsFeed struct {
	wsURL   string
	markets []string
	quoteCh chan<- domain.RawQuote
	logger  *slog.Logger
}

// NewOddsFeed creates a feed for the given endpoint and market list. An empty
// market list subscribes to everything the endpoint offers.
func NewOddsFeed(wsURL string, markets []string, quoteCh chan<- domain.RawQuote, logger *slog.Logger) *OddsFeed {
	return &OddsFeed{
		wsURL:   wsURL,
		markets: markets,
		quoteCh: quoteCh,
		logger:  logger.With(slog.String("component", "odds_feed")),
	}
}

// Run connects and consumes quotes until the context is cancelled.
func (f *OddsFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("odds feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *OddsFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := f.subscribe(conn); err != nil {
		return err
	}
	f.logger.Info("odds feed subscribed",
		slog.String("url", f.wsURL),
		slog.Int("markets", len(f.markets)))

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()
	go f.pingLoop(conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, raw)
	}
}

func (f *OddsFeed) subscribe(conn *websocket.Conn) error {
	cmd := wsCommand{Type: "subscribe", Markets: f.markets}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("feed: marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}

func (f *OddsFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *OddsFeed) handleMessage(ctx context.Context, raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Unparseable frames are dropped silently; the feed mixes in
		// heartbeats and ack frames we do not care about.
		return
	}
	if env.Type != "quote" {
		return
	}

	var quote domain.RawQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		f.logger.Debug("bad quote payload", slog.String("error", err.Error()))
		return
	}
	if quote.QuotedAt.IsZero() {
		quote.QuotedAt = time.Now().UTC()
	}

	select {
	case f.quoteCh <- quote:
	case <-ctx.Done():
	}
}
