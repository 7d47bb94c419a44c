package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aryasaputra/surebot/internal/domain"
)

// QuotesChannel is the pub/sub channel scraper workers publish paired quotes
// on when they relay through Redis instead of a direct WebSocket.
const QuotesChannel = "quotes"

// BusFeeder subscribes to the quotes channel on the signal bus and feeds each
// quote into the scanner's input channel.
type BusFeeder struct {
	bus     domain.SignalBus
	quoteCh chan<- domain.RawQuote
	logger  *slog.Logger
}

// NewBusFeeder creates a BusFeeder.
func NewBusFeeder(bus domain.SignalBus, quoteCh chan<- domain.RawQuote, logger *slog.Logger) *BusFeeder {
	return &BusFeeder{
		bus:     bus,
		quoteCh: quoteCh,
		logger:  logger.With(slog.String("component", "bus_feeder")),
	}
}

// Run subscribes and relays quotes until the context is cancelled.
func (f *BusFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, QuotesChannel)
	if err != nil {
		return err
	}
	f.logger.Info("bus feeder started")
	defer f.logger.Info("bus feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			f.handleMessage(ctx, data)
		}
	}
}

func (f *BusFeeder) handleMessage(ctx context.Context, data []byte) {
	var quote domain.RawQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		f.logger.Debug("bus feeder bad payload",
			slog.String("error", err.Error()),
			slog.Int("payload_len", len(data)))
		return
	}
	if quote.MatchID == "" {
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
