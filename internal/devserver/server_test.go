package devserver

import (
	"bytes"
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

	"go-vitalchat/internal/infrastructure/realtime"
	"go-vitalchat/internal/pkg/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{OTP: "1234", Logger: testLogger()})
	for _, a := range []Account{
		{ID: "user-1", FirstName: "Deepika", LastName: "Rao", Email: "deepika@example.com", Role: "admin"},
		{ID: "user-2", FirstName: "Carlos", LastName: "M", Email: "carlos@example.com", Role: "staff"},
	} {
		if err := s.Seed(a, "password123"); err != nil {
			t.Fatalf("seed %s: %v", a.Email, err)
		}
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, srv
}

func postJSON(t *testing.T, method, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	data, _ := json.Marshal(body)
	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// signIn runs the two-step handshake and returns the bearer token.
func signIn(t *testing.T, base, email string) string {
	t.Helper()
	resp, body := postJSON(t, http.MethodPost, base+"/api/auth/login", map[string]any{
		"email":    email,
		"password": "password123",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body %v", resp.StatusCode, body)
	}
	verifyToken := body["response"].(map[string]any)["verifyToken"].(string)

	resp, body = postJSON(t, http.MethodPut, base+"/api/auth/verify", map[string]any{
		"verifyToken": verifyToken,
		"otp":         "1234",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d, body %v", resp.StatusCode, body)
	}
	return body["token"].(string)
}

func TestLoginVerifyIssuesToken(t *testing.T) {
	_, srv := newTestServer(t)
	token := signIn(t, srv.URL, "deepika@example.com")
	if token == "" {
		t.Fatal("verify returned an empty token")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	_, srv := newTestServer(t)
	resp, body := postJSON(t, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email":    "deepika@example.com",
		"password": "wrong",
	}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["message"] != "Invalid email or password" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestVerifyTokenIsSingleUse(t *testing.T) {
	_, srv := newTestServer(t)
	_, body := postJSON(t, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email":    "deepika@example.com",
		"password": "password123",
	}, "")
	verifyToken := body["response"].(map[string]any)["verifyToken"].(string)

	resp, _ := postJSON(t, http.MethodPut, srv.URL+"/api/auth/verify", map[string]any{
		"verifyToken": verifyToken, "otp": "1234",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first verify status = %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, http.MethodPut, srv.URL+"/api/auth/verify", map[string]any{
		"verifyToken": verifyToken, "otp": "1234",
	}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("replayed verify status = %d, want 400", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/chatRoom")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateRoomIsIdempotentPerPair(t *testing.T) {
	_, srv := newTestServer(t)
	token := signIn(t, srv.URL, "deepika@example.com")

	resp, first := postJSON(t, http.MethodPost, srv.URL+"/api/chatRoom/add", map[string]any{
		"participantA": "user-1", "participantB": "user-2",
	}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", resp.StatusCode)
	}

	// Reversed pair resolves to the same room.
	resp, second := postJSON(t, http.MethodPost, srv.URL+"/api/chatRoom/add", map[string]any{
		"participantA": "user-2", "participantB": "user-1",
	}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second create status = %d, want 200", resp.StatusCode)
	}
	if first["id"] != second["id"] {
		t.Fatalf("room ids differ: %v vs %v", first["id"], second["id"])
	}
}

func TestRoomMessagesPagination(t *testing.T) {
	s, srv := newTestServer(t)
	token := signIn(t, srv.URL, "deepika@example.com")

	ctx := context.Background()
	room, err := s.store.CreateRoom(ctx, "user-1", "user-2")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		err := s.store.SaveMessage(ctx, room.ID, chat.Message{
			ID: id, AuthorID: "user-2", Body: id, SentAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	get := func(query string) []chat.Message {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/chatRoom/"+room.ID+"/messages"+query, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET messages: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("messages status = %d", resp.StatusCode)
		}
		var msgs []chat.Message
		if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msgs
	}

	page := get("?skip=0&limit=2")
	if len(page) != 2 || page[0].ID != "m3" || page[1].ID != "m2" {
		t.Fatalf("first page = %+v, want [m3 m2] newest first", page)
	}
	page = get("?skip=2&limit=2")
	if len(page) != 1 || page[0].ID != "m1" {
		t.Fatalf("second page = %+v, want the short tail [m1]", page)
	}
}

func TestRoomMessagesUnknownRoom(t *testing.T) {
	_, srv := newTestServer(t)
	token := signIn(t, srv.URL, "deepika@example.com")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/chatRoom/nope/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDashboardServesItems(t *testing.T) {
	_, srv := newTestServer(t)
	token := signIn(t, srv.URL, "deepika@example.com")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("dashboard items = %d, want 5", len(items))
	}
}

// dialSocket opens a websocket session authenticated via the token
// query parameter, as browser clients do.
func dialSocket(t *testing.T, base, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/api/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, _ := json.Marshal(payload)
	frame, _ := json.Marshal(realtime.Envelope{Event: event, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// awaitEvent reads frames until one with the wanted event arrives.
func awaitEvent(t *testing.T, conn *websocket.Conn, event string) realtime.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("malformed frame: %v", err)
		}
		if env.Event == event {
			return env
		}
	}
}

func TestSocketDeliversMessageToRecipient(t *testing.T) {
	_, srv := newTestServer(t)
	sender := dialSocket(t, srv.URL, signIn(t, srv.URL, "deepika@example.com"))
	recipient := dialSocket(t, srv.URL, signIn(t, srv.URL, "carlos@example.com"))

	sendEvent(t, sender, chat.EventMessage, chat.MessagePayload{
		RecipientID: "user-2",
		Body:        "hello carlos",
	})

	env := awaitEvent(t, recipient, chat.EventMessage)
	var p chat.MessagePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.SenderID != "user-1" {
		t.Fatalf("sender = %q, want the authenticated user, not the client-claimed one", p.SenderID)
	}
	if p.Body != "hello carlos" || p.RoomID == "" || p.ID == "" {
		t.Fatalf("payload = %+v, want body, room id and message id filled in", p)
	}
}

func TestSocketBroadcastsPresence(t *testing.T) {
	_, srv := newTestServer(t)
	watcher := dialSocket(t, srv.URL, signIn(t, srv.URL, "carlos@example.com"))
	joiner := dialSocket(t, srv.URL, signIn(t, srv.URL, "deepika@example.com"))

	sendEvent(t, joiner, chat.EventJoin, chat.PresencePayload{UserID: "user-1"})

	env := awaitEvent(t, watcher, chat.EventUserOnline)
	var p chat.PresencePayload
	_ = json.Unmarshal(env.Data, &p)
	if p.UserID != "user-1" {
		t.Fatalf("presence = %+v, want user-1 online", p)
	}

	joiner.Close()
	env = awaitEvent(t, watcher, chat.EventUserOffline)
	_ = json.Unmarshal(env.Data, &p)
	if p.UserID != "user-1" {
		t.Fatalf("presence = %+v, want user-1 offline", p)
	}
}

func TestReplacedSessionDoesNotAnnounceOffline(t *testing.T) {
	_, srv := newTestServer(t)
	watcher := dialSocket(t, srv.URL, signIn(t, srv.URL, "carlos@example.com"))

	token := signIn(t, srv.URL, "deepika@example.com")
	_ = dialSocket(t, srv.URL, token)      // first session
	second := dialSocket(t, srv.URL, token) // replaces the first

	// Let the displaced connection finish tearing down, then join from
	// the live one. The watcher must see the join without an offline
	// flicker in between.
	time.Sleep(100 * time.Millisecond)
	sendEvent(t, second, chat.EventJoin, chat.PresencePayload{UserID: "user-1"})

	_ = watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := watcher.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for presence: %v", err)
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("malformed frame: %v", err)
		}
		var p chat.PresencePayload
		_ = json.Unmarshal(env.Data, &p)
		if env.Event == chat.EventUserOffline && p.UserID == "user-1" {
			t.Fatal("displaced session announced the still-connected user as offline")
		}
		if env.Event == chat.EventUserOnline && p.UserID == "user-1" {
			return
		}
	}
}

func TestOfflineRecipientGetsUnreadBump(t *testing.T) {
	s, srv := newTestServer(t)
	sender := dialSocket(t, srv.URL, signIn(t, srv.URL, "deepika@example.com"))

	ctx := context.Background()
	room, err := s.store.CreateRoom(ctx, "user-1", "user-2")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	sendEvent(t, sender, chat.EventMessage, chat.MessagePayload{
		RoomID:      room.ID,
		RecipientID: "user-2",
		Body:        "anyone there?",
	})

	// Delivery is asynchronous; poll until the store reflects it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := s.store.FindRoomByPair(ctx, "user-1", "user-2")
		if err == nil && got.UnreadCount == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("room = %+v, err %v: want unread count 1 for the offline recipient", got, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
