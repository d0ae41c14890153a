package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
	pongWait    = 60 * time.Second
	maxFrame    = 1 << 20 // 1MB payload cap
	sendBuffer  = 128
	maxRedialMs = 60_000
)

// ErrSocketClosed is returned by Emit after Close.
var ErrSocketClosed = errors.New("realtime: socket closed")

// Socket is a websocket-backed Transport. Outbound writes go through a
// buffered channel drained by a single write loop; inbound frames are
// decoded as Envelopes and dispatched to the registered handler for the
// event name. A dropped connection is redialed with exponential backoff
// until Close is called; handlers survive the reconnect.
type Socket struct {
	url    string
	log    *slog.Logger
	dialer *websocket.Dialer
	header func() http.Header

	mu       sync.RWMutex
	handlers map[string]*registration
	conn     *websocket.Conn
	send     chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

// SocketOption configures a Socket.
type SocketOption func(*Socket)

// WithHeader sets a provider for the handshake headers, evaluated on
// every dial so a refreshed token is picked up on reconnect.
func WithHeader(fn func() http.Header) SocketOption {
	return func(s *Socket) { s.header = fn }
}

// NewSocket constructs a Socket for the given ws:// or wss:// URL.
// Connect must be called before Emit.
func NewSocket(url string, log *slog.Logger, opts ...SocketOption) *Socket {
	s := &Socket{
		url:      url,
		log:      log,
		dialer:   websocket.DefaultDialer,
		handlers: make(map[string]*registration),
		send:     make(chan []byte, sendBuffer),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Transport = (*Socket)(nil)

// Connect dials the server and starts the read and write loops. It blocks
// until the first dial succeeds or ctx is done.
func (s *Socket) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.adopt(conn)
	return nil
}

// dial attempts the handshake with exponential backoff, respecting
// context cancellation and Close.
func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	for attempt := 1; ; attempt++ {
		select {
		case <-s.closed:
			return nil, ErrSocketClosed
		case <-ctx.Done():
			return nil, fmt.Errorf("realtime: dial cancelled: %w", ctx.Err())
		default:
		}

		var hdr http.Header
		if s.header != nil {
			hdr = s.header()
		}
		conn, _, err := s.dialer.DialContext(ctx, s.url, hdr)
		if err == nil {
			if attempt > 1 {
				s.log.Info("socket connected", slog.Int("attempt", attempt))
			}
			return conn, nil
		}
		sleep := time.Duration(math.Pow(2, float64(attempt-1))) * 500 * time.Millisecond
		if sleep > maxRedialMs*time.Millisecond {
			sleep = maxRedialMs * time.Millisecond
		}
		s.log.Warn("socket dial failed",
			slog.Int("attempt", attempt),
			slog.Duration("sleep", sleep),
			slog.Any("error", err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("realtime: dial cancelled: %w", ctx.Err())
		case <-s.closed:
			timer.Stop()
			return nil, ErrSocketClosed
		case <-timer.C:
		}
	}
}

// adopt installs conn as the active connection and launches its loops.
func (s *Socket) adopt(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	done := make(chan struct{})
	go s.writeLoop(conn, done)
	go s.readLoop(conn, done)
}

// Emit marshals payload into an Envelope and queues it for delivery.
// When the buffer is full the frame is dropped with an error rather than
// blocking the caller.
func (s *Socket) Emit(event string, payload any) error {
	select {
	case <-s.closed:
		return ErrSocketClosed
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode %q payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("realtime: encode envelope: %w", err)
	}

	select {
	case s.send <- frame:
		return nil
	default:
		return fmt.Errorf("realtime: send buffer full, dropped %q", event)
	}
}

// registration pins a handler's identity, so a stale unsubscribe handle
// from a replaced On call cannot remove the replacement.
type registration struct {
	h Handler
}

// On registers h for event, replacing any previous handler for the same
// name. The returned func removes the handler; calling it twice, or after
// a replacement, is a no-op.
func (s *Socket) On(event string, h Handler) func() {
	reg := &registration{h: h}
	s.mu.Lock()
	s.handlers[event] = reg
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.handlers[event] == reg {
				delete(s.handlers, event)
			}
			s.mu.Unlock()
		})
	}
}

// Close shuts the socket down permanently.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()
		if conn != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"),
				time.Now().Add(writeWait))
			_ = conn.Close()
		}
	})
	return nil
}

func (s *Socket) writeLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-done:
			return
		case frame := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Socket) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-s.closed:
				return
			default:
			}
			s.log.Warn("socket read failed, reconnecting", slog.Any("error", err))
			go s.reconnect()
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn("discarding malformed frame", slog.Any("error", err))
			continue
		}

		s.mu.RLock()
		reg := s.handlers[env.Event]
		s.mu.RUnlock()
		if reg != nil {
			reg.h(env.Data)
		}
	}
}

func (s *Socket) reconnect() {
	conn, err := s.dial(context.Background())
	if err != nil {
		if !errors.Is(err, ErrSocketClosed) {
			s.log.Error("socket reconnect abandoned", slog.Any("error", err))
		}
		return
	}
	s.adopt(conn)
}
