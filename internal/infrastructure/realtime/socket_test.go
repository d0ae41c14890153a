package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades each request and echoes every frame back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSocketEmitRoundTrip(t *testing.T) {
	srv := echoServer(t)
	s := NewSocket(wsURL(srv), testLogger())
	t.Cleanup(func() { s.Close() })

	received := make(chan json.RawMessage, 1)
	s.On("ping-test", func(data json.RawMessage) {
		received <- data
	})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Emit("ping-test", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case data := <-received:
		var p map[string]string
		if err := json.Unmarshal(data, &p); err != nil || p["k"] != "v" {
			t.Fatalf("payload = %s, err %v", data, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echoed event never reached the handler")
	}
}

func TestSocketOnReplacesHandler(t *testing.T) {
	srv := echoServer(t)
	s := NewSocket(wsURL(srv), testLogger())
	t.Cleanup(func() { s.Close() })

	var firstHits int
	s.On("evt", func(json.RawMessage) { firstHits++ })

	received := make(chan struct{}, 1)
	unsubscribe := s.On("evt", func(json.RawMessage) {
		received <- struct{}{}
	})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Emit("evt", nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement handler never fired")
	}
	if firstHits != 0 {
		t.Fatalf("replaced handler fired %d times, want 0", firstHits)
	}

	unsubscribe()
	unsubscribe() // second release is a no-op

	if err := s.Emit("evt", nil); err != nil {
		t.Fatalf("Emit after unsubscribe: %v", err)
	}
	select {
	case <-received:
		t.Fatal("unsubscribed handler still firing")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSocketStaleUnsubscribeKeepsReplacement(t *testing.T) {
	srv := echoServer(t)
	s := NewSocket(wsURL(srv), testLogger())
	t.Cleanup(func() { s.Close() })

	staleUnsubscribe := s.On("evt", func(json.RawMessage) {
		t.Error("replaced handler fired")
	})

	received := make(chan struct{}, 1)
	s.On("evt", func(json.RawMessage) {
		received <- struct{}{}
	})

	// The handle from the replaced registration must not remove the
	// current one.
	staleUnsubscribe()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Emit("evt", nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement handler was removed by the stale handle")
	}
}

func TestSocketEmitAfterClose(t *testing.T) {
	srv := echoServer(t)
	s := NewSocket(wsURL(srv), testLogger())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = s.Close()

	if err := s.Emit("evt", nil); err != ErrSocketClosed {
		t.Fatalf("err = %v, want ErrSocketClosed", err)
	}
}

func TestSocketConnectRespectsContext(t *testing.T) {
	// Nothing listens on this address; the dial must give up when the
	// context expires instead of backing off forever.
	s := NewSocket("ws://127.0.0.1:1/api/ws", testLogger())
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := s.Connect(ctx); err == nil {
		t.Fatal("Connect should fail once the context is done")
	}
}

func TestSocketSendsHandshakeHeaders(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case got <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	s := NewSocket(wsURL(srv), testLogger(), WithHeader(func() http.Header {
		h := http.Header{}
		h.Set("Authorization", "Bearer tok")
		return h
	}))
	t.Cleanup(func() { s.Close() })

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	select {
	case auth := <-got:
		if auth != "Bearer tok" {
			t.Fatalf("handshake Authorization = %q, want the provided bearer", auth)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never reached the server")
	}
}
