package chat

import (
	"encoding/json"
	"testing"
)

func TestAdapterForwardsEvents(t *testing.T) {
	transport := newFakeTransport()
	st := NewStore(nil, transport, "self", testLogger())
	st.SeedUsers([]User{{ID: "u1", Name: "Carlos"}}, nil)

	a := NewAdapter(st, testLogger())
	a.Bind(transport)

	transport.handlers[EventUserOnline](json.RawMessage(`{"userId":"u1"}`))
	if !st.Snapshot().Users[0].IsOnline {
		t.Fatal("user-online event not applied")
	}

	transport.handlers[EventUnreadCount](json.RawMessage(`{"userId":"u1","count":4}`))
	if got := st.Snapshot().Users[0].UnreadCount; got != 4 {
		t.Fatalf("unread = %d, want 4", got)
	}

	transport.handlers[EventMessage](json.RawMessage(`{"id":"m1","senderId":"u1","body":"hi"}`))
	if got := st.Snapshot().Users[0].UnreadCount; got != 5 {
		t.Fatalf("unread after inbound message = %d, want 5", got)
	}

	transport.handlers[EventUserOffline](json.RawMessage(`{"userId":"u1"}`))
	if st.Snapshot().Users[0].IsOnline {
		t.Fatal("user-offline event not applied")
	}
}

func TestAdapterRebindDoesNotDuplicateHandling(t *testing.T) {
	transport := newFakeTransport()
	st := NewStore(nil, transport, "self", testLogger())
	st.SeedUsers([]User{{ID: "u1", Name: "Carlos"}}, nil)

	a := NewAdapter(st, testLogger())
	a.Bind(transport)
	a.Bind(transport) // reconnect path

	if got := transport.handlerCount(); got != 4 {
		t.Fatalf("registered handlers = %d, want 4 after rebind", got)
	}

	transport.handlers[EventUnreadCount](json.RawMessage(`{"userId":"u1","count":1}`))
	if got := st.Snapshot().Users[0].UnreadCount; got != 1 {
		t.Fatalf("unread = %d, want exactly one application", got)
	}
}

func TestAdapterReleaseTwice(t *testing.T) {
	transport := newFakeTransport()
	st := NewStore(nil, transport, "self", testLogger())

	a := NewAdapter(st, testLogger())
	a.Bind(transport)
	a.Release()
	a.Release()

	if got := transport.handlerCount(); got != 0 {
		t.Fatalf("handlers after release = %d, want 0", got)
	}
}

func TestAdapterDiscardsMalformedPayloads(t *testing.T) {
	transport := newFakeTransport()
	st := NewStore(nil, transport, "self", testLogger())
	st.SeedUsers([]User{{ID: "u1", Name: "Carlos"}}, nil)

	a := NewAdapter(st, testLogger())
	a.Bind(transport)

	transport.handlers[EventUnreadCount](json.RawMessage(`not-json`))
	if got := st.Snapshot().Users[0].UnreadCount; got != 0 {
		t.Fatalf("unread = %d, want 0 after malformed event", got)
	}
}
