package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"infrafi/chain"
)

const (
	streamBuffer       = 4
	streamWriteTimeout = 10 * time.Second
)

// Hub fans polled stats out to stream subscribers. Slow subscribers miss
// samples rather than block the poller.
type Hub struct {
	mu   sync.Mutex
	subs map[chan chain.ProtocolStats]struct{}
}

// NewHub returns a Hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan chain.ProtocolStats]struct{})}
}

// Subscribe registers a subscriber. The returned cancel func unregisters
// it and closes the channel.
func (h *Hub) Subscribe() (<-chan chain.ProtocolStats, func()) {
	ch := make(chan chain.ProtocolStats, streamBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers stats to every subscriber with room in its buffer.
func (h *Hub) Publish(stats chain.ProtocolStats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- stats:
		default:
		}
	}
}

// Len reports the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Stream upgrades to a websocket and pushes every polled sample, starting
// with the latest stored one.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns()})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	updates, cancel := s.hub.Subscribe()
	defer cancel()

	// Clients only listen; CloseRead cancels ctx once they go away.
	ctx := conn.CloseRead(r.Context())

	if stats, ok := s.latestStats(ctx); ok {
		if err := s.writeStats(ctx, conn, stats); err != nil {
			s.closeStream(conn, err)
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case stats, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeStats(ctx, conn, stats); err != nil {
				s.closeStream(conn, err)
				return
			}
		}
	}
}

func (s *Server) writeStats(ctx context.Context, conn *websocket.Conn, stats chain.ProtocolStats) error {
	data, err := json.Marshal(newStatsView(stats, s.params.Decimals))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Server) closeStream(conn *websocket.Conn, err error) {
	if websocket.CloseStatus(err) == -1 {
		s.logger.Debug("stream write failed", "error", err)
		conn.Close(websocket.StatusInternalError, "write failed")
	}
}

func (s *Server) originPatterns() []string {
	if len(s.cors.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(s.cors.AllowedOrigins))
	for _, origin := range s.cors.AllowedOrigins {
		if u := stripScheme(origin); u != "" {
			patterns = append(patterns, u)
		}
	}
	return patterns
}

// stripScheme turns "https://app.example" into the host pattern the
// websocket origin check expects.
func stripScheme(origin string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if rest, ok := strings.CutPrefix(origin, prefix); ok {
			return rest
		}
	}
	return origin
}
