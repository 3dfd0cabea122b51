package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// wireEvent is the JSON tick format the streaming collaborator publishes.
type wireEvent struct {
	Security  string  `json:"security"`
	Timestamp int64   `json:"ts"` // unix milliseconds
	Kind      string  `json:"type"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// WSFeed connects to a tick-stream websocket, subscribes to the given
// securities, and fans events out to one buffered channel per security. It
// reconnects with a fixed delay on disconnect.
type WSFeed struct {
	url        string
	securities []string
	reconnect  time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	channels  map[string]chan domain.MarketEvent
	closeOnce sync.Once
	done      chan struct{}
}

// NewWSFeed creates a feed for the given endpoint and securities.
func NewWSFeed(url string, securities []string, reconnect time.Duration, logger *slog.Logger) *WSFeed {
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	channels := make(map[string]chan domain.MarketEvent, len(securities))
	for _, sec := range securities {
		channels[sec] = make(chan domain.MarketEvent, 1024)
	}
	return &WSFeed{
		url:        url,
		securities: securities,
		reconnect:  reconnect,
		logger:     logger.With(slog.String("component", "ws_feed")),
		channels:   channels,
		done:       make(chan struct{}),
	}
}

// Source returns the per-security source backed by this feed, or nil when
// the security was not subscribed.
func (f *WSFeed) Source(security string) Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[security]
	if !ok {
		return nil
	}
	return &channelSource{security: security, ch: ch}
}

// Run connects and pumps events until ctx is cancelled or Close is called.
// Event channels are closed on return so downstream sources drain cleanly.
func (f *WSFeed) Run(ctx context.Context) error {
	defer f.closeChannels()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		if err := f.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("feed disconnected, reconnecting", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			case <-time.After(f.reconnect):
			}
			continue
		}
		return nil
	}
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.url, err)
	}
	defer conn.Close()

	sub := map[string]any{"op": "subscribe", "securities": f.securities}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("feed subscribed", slog.Int("securities", len(f.securities)))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		var we wireEvent
		if err := json.Unmarshal(msg, &we); err != nil {
			f.logger.Warn("feed: malformed message dropped", slog.String("error", err.Error()))
			continue
		}
		f.dispatch(we)
	}
}

func (f *WSFeed) dispatch(we wireEvent) {
	f.mu.Lock()
	ch, ok := f.channels[we.Security]
	f.mu.Unlock()
	if !ok {
		return
	}
	ev := domain.MarketEvent{
		Timestamp: time.UnixMilli(we.Timestamp).UTC(),
		Kind:      domain.EventKind(we.Kind),
		Price:     we.Price,
		Volume:    we.Volume,
	}
	select {
	case ch <- ev:
	default:
		f.logger.Warn("feed: channel full, event dropped", slog.String("security", we.Security))
	}
}

func (f *WSFeed) closeChannels() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		close(ch)
	}
	f.channels = map[string]chan domain.MarketEvent{}
}

// Close stops the feed.
func (f *WSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// channelSource adapts a feed channel to the Source interface.
type channelSource struct {
	security string
	ch       <-chan domain.MarketEvent
}

func (c *channelSource) Security() string { return c.security }

func (c *channelSource) Next(ctx context.Context) (domain.MarketEvent, error) {
	select {
	case <-ctx.Done():
		return domain.MarketEvent{}, ctx.Err()
	case ev, ok := <-c.ch:
		if !ok {
			return domain.MarketEvent{}, domain.ErrFeedClosed
		}
		return ev, nil
	}
}
