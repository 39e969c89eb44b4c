package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

// Stream receives pushed frames over a websocket. Each text message holds one
// wire frame or an array of them and is delivered as one batch.
type Stream struct {
	url    string
	pair   string
	logger *slog.Logger

	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration
	// PingInterval is how often a ping is sent to keep the connection alive.
	PingInterval time.Duration
}

type subscribeMsg struct {
	Action string `json:"action"`
	Pair   string `json:"pair"`
}

// NewStream returns a stream for pair at url.
func NewStream(url, pair string, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		url:          url,
		pair:         pair,
		logger:       logger,
		MaxBackoff:   30 * time.Second,
		PingInterval: 45 * time.Second,
	}
}

// Run connects and delivers batches until ctx is done, reconnecting with
// exponential backoff.
func (s *Stream) Run(ctx context.Context, deliver func([]boxslice.Frame)) error {
	backoff := time.Second
	for {
		if err := s.runOnce(ctx, deliver); err != nil && ctx.Err() == nil {
			s.logger.Warn("stream disconnected", "url", s.url, "err", err, "retry_in", backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			if backoff < s.MaxBackoff {
				backoff = min(backoff*2, s.MaxBackoff)
			}
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, deliver func([]boxslice.Frame)) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg{Action: "subscribe", Pair: s.pair}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Info("stream connected", "url", s.url, "pair", s.pair)

	ping := time.NewTicker(s.PingInterval)
	defer ping.Stop()

	errCh := make(chan error, 1)
	go func() {
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			batch, bad, err := boxslice.DecodeBatch(data)
			if err != nil {
				s.logger.Warn("bad stream message", "err", err)
				continue
			}
			frames, errs := boxslice.ConvertWire(batch)
			for _, e := range append(bad, errs...) {
				s.logger.Warn("dropped frame", "pair", s.pair, "err", e)
			}
			if len(frames) > 0 {
				deliver(frames)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return ctx.Err()
		case <-ping.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case err := <-errCh:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("server closed stream")
			}
			return err
		}
	}
}
