package chains

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// HeadSubscriberConfig configures the websocket head subscriber.
type HeadSubscriberConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHeadSubscriberConfig returns default subscriber configuration.
func DefaultHeadSubscriberConfig() HeadSubscriberConfig {
	return HeadSubscriberConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// HeadSubscriber streams new block heights from an EVM websocket endpoint
// via eth_subscribe(newHeads). It is a latency optimization over polling:
// the poll loop stays the source of truth for height advancement, heads
// delivered here just wake it early.
type HeadSubscriber struct {
	endpoint string
	config   HeadSubscriberConfig
	logger   zerolog.Logger
	heads    chan int64
}

// NewHeadSubscriber creates a subscriber for an EVM websocket endpoint.
func NewHeadSubscriber(endpoint string, config *HeadSubscriberConfig, logger zerolog.Logger) *HeadSubscriber {
	cfg := DefaultHeadSubscriberConfig()
	if config != nil {
		cfg = *config
	}
	return &HeadSubscriber{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.With().Str("component", "head_subscriber").Logger(),
		heads:    make(chan int64, 64),
	}
}

// Heads returns the channel of observed block heights.
func (s *HeadSubscriber) Heads() <-chan int64 {
	return s.heads
}

// Run connects, subscribes and streams heads until the context is cancelled,
// reconnecting with exponential backoff on any failure.
func (s *HeadSubscriber) Run(ctx context.Context) error {
	delay := s.config.ReconnectDelay
	for {
		err := s.streamOnce(ctx)
		if ctx.Err() != nil {
			close(s.heads)
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("head stream dropped, reconnecting")

		select {
		case <-ctx.Done():
			close(s.heads)
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// newHeadNotification is the subset of the newHeads payload we inspect.
type newHeadNotification struct {
	Params struct {
		Result struct {
			Number string `json:"number"`
		} `json:"result"`
	} `json:"params"`
}

func (s *HeadSubscriber) streamOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.config.WriteTimeout}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.endpoint, err)
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []interface{}{"newHeads"},
	}
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var note newHeadNotification
		if err := json.Unmarshal(msg, &note); err != nil || note.Params.Result.Number == "" {
			// Subscription confirmation or unrelated frame
			continue
		}
		height, err := parseHexInt(strings.ToLower(note.Params.Result.Number))
		if err != nil {
			continue
		}

		select {
		case s.heads <- height:
		default:
			// Slow consumer; the poll loop will catch up on its own cadence.
		}
	}
}
