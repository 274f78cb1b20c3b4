package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/virtfoo-core/internal/device"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/config"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/logging"
)

// Feed message types. The server sends snapshot, changed, pong and error;
// clients may only send ping.
const (
	FeedCounterSnapshot = "counter.snapshot"
	FeedCounterChanged  = "counter.changed"
	FeedPing            = "ping"
	FeedPong            = "pong"
	FeedError           = "error"
)

const (
	feedBufferSize      = 256
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// wsTimings returns the ping interval and pong timeout, defaulting
// non-positive values.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// FeedMessage is one frame on the counter feed.
type FeedMessage struct {
	Type string    `json:"type"`
	ID   string    `json:"id,omitempty"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Hub fans committed counter mutations out to WebSocket subscribers.
// It implements device.Observer.
type Hub struct {
	logger *logging.Logger

	mu     sync.Mutex
	feeds  map[*feed]struct{}
	closed bool

	broadcasts atomic.Uint64
	dropped    atomic.Uint64
}

// feed is one subscriber. out is closed by the hub, under its lock, when
// the subscriber leaves or the hub shuts down.
type feed struct {
	conn *websocket.Conn
	out  chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware decides on origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub with no subscribers.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		feeds:  make(map[*feed]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every subscriber and
// refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for f := range h.feeds {
		delete(h.feeds, f)
		close(f.out)
	}
}

// ObserveMutation sends m to every subscriber as a counter.changed frame.
// Subscribers with a full buffer miss the frame.
func (h *Hub) ObserveMutation(m device.Mutation) {
	data, err := encodeFeed(FeedMessage{Type: FeedCounterChanged, Data: m})
	if err != nil {
		h.logger.Error("encoding counter feed frame failed", "error", err)
		return
	}
	h.broadcasts.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	for f := range h.feeds {
		select {
		case f.out <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Broadcasts returns how many mutations have been fanned out.
func (h *Hub) Broadcasts() uint64 {
	return h.broadcasts.Load()
}

// Dropped returns how many frames were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// join registers f and queues its first frame. It reports false once the
// hub has shut down.
func (h *Hub) join(f *feed, first []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.feeds[f] = struct{}{}
	f.out <- first
	return true
}

// leave removes f and closes its channel if the hub has not already.
func (h *Hub) leave(f *feed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.feeds[f]; ok {
		delete(h.feeds, f)
		close(f.out)
	}
}

// reply queues a frame for f alone; it is dropped if f has left.
func (h *Hub) reply(f *feed, msg FeedMessage) {
	data, err := encodeFeed(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.feeds[f]; !ok {
		return
	}
	select {
	case f.out <- data:
	default:
		h.dropped.Add(1)
	}
}

func encodeFeed(msg FeedMessage) ([]byte, error) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	return json.Marshal(msg)
}

// handleWebSocket upgrades the connection, sends a counter.snapshot frame
// with the current device stats and then streams counter.changed frames.
// The handler goroutine writes; a second goroutine reads pings.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	snapshot, err := encodeFeed(FeedMessage{Type: FeedCounterSnapshot, Data: s.device.Stats()})
	if err != nil {
		s.logger.Error("encoding counter snapshot failed", "error", err)
		return
	}

	f := &feed{conn: conn, out: make(chan []byte, feedBufferSize)}
	if !s.hub.join(f, snapshot) {
		//nolint:errcheck // best-effort close frame
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return
	}
	s.logger.Debug("counter feed subscriber joined", "clients", s.hub.ClientCount())

	go s.readFeed(f)
	s.writeFeed(f)

	s.hub.leave(f)
	s.logger.Debug("counter feed subscriber left", "clients", s.hub.ClientCount())
}

// readFeed answers pings until the peer goes away, then removes f so the
// writer stops.
func (s *Server) readFeed(f *feed) {
	defer s.hub.leave(f)

	ping, pong := wsTimings(s.wsCfg)
	wait := ping + pong
	f.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	//nolint:errcheck // best-effort deadline
	f.conn.SetReadDeadline(time.Now().Add(wait))
	f.conn.SetPongHandler(func(string) error {
		return f.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("counter feed read failed", "error", err)
			}
			return
		}
		//nolint:errcheck // best-effort deadline
		f.conn.SetReadDeadline(time.Now().Add(wait))

		var msg FeedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.hub.reply(f, FeedMessage{Type: FeedError, Data: map[string]string{"message": "invalid JSON message"}})
			continue
		}
		if msg.Type != FeedPing {
			s.hub.reply(f, FeedMessage{Type: FeedError, ID: msg.ID, Data: map[string]string{"message": "unsupported message type: " + msg.Type}})
			continue
		}
		s.hub.reply(f, FeedMessage{Type: FeedPong, ID: msg.ID})
	}
}

// writeFeed drains f.out to the connection and pings on an interval. It
// returns when f.out is closed or a write fails.
func (s *Server) writeFeed(f *feed) {
	ping, writeWait := wsTimings(s.wsCfg)
	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-f.out:
			//nolint:errcheck // write error caught below
			f.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // best-effort close frame
				f.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := f.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // ping error caught below
			f.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
