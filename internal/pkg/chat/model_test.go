package chat

import (
	"errors"
	"testing"
)

func TestInitialsOf(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Deepika Rao", "DR"},
		{"carlos", "C"},
		{"  Maria   June  Smith ", "MJ"},
		{"", ""},
		{"Åsa öberg", "ÅÖ"},
	}
	for _, tc := range cases {
		if got := InitialsOf(tc.name); got != tc.want {
			t.Errorf("InitialsOf(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestUserNormalizeFillsInitials(t *testing.T) {
	u := User{ID: "u1", Name: "Deepika Rao"}.Normalize()
	if u.Initials != "DR" {
		t.Fatalf("initials = %q, want DR", u.Initials)
	}

	// An explicit value is kept.
	u = User{ID: "u1", Name: "Deepika Rao", Initials: "XX"}.Normalize()
	if u.Initials != "XX" {
		t.Fatalf("initials = %q, want the preset XX", u.Initials)
	}
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	if PairKey("b", "a") != PairKey("a", "b") {
		t.Fatal("pair key should not depend on argument order")
	}
	if got := PairKey("b", "a"); got != "a:b" {
		t.Fatalf("pair key = %q, want a:b", got)
	}
}

func TestRoomCounterpart(t *testing.T) {
	r := Room{ID: "room-1", ParticipantA: "self", ParticipantB: "u2"}
	if got, ok := r.Counterpart("self"); !ok || got != "u2" {
		t.Fatalf("counterpart = %q (%v), want u2", got, ok)
	}
	if got, ok := r.Counterpart("u2"); !ok || got != "self" {
		t.Fatalf("counterpart = %q (%v), want self", got, ok)
	}
	if _, ok := r.Counterpart("stranger"); ok {
		t.Fatal("a non-participant has no counterpart")
	}
}

func TestNewMessageTrimsAndStamps(t *testing.T) {
	msg, err := NewMessage("self", "  hello  ")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if msg.Body != "hello" || msg.ID == "" || msg.SentAt.IsZero() || msg.Kind != KindText {
		t.Fatalf("unexpected message %+v", msg)
	}

	if _, err := NewMessage("self", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	active := User{ID: "u1", Name: "Carlos"}
	last := Message{ID: "m1", Body: "hi"}
	s := State{
		Users:              []User{{ID: "u1", Name: "Carlos"}},
		ActiveConversation: &active,
		Messages:           []Message{{ID: "m1", Body: "hi", Media: &Media{URL: "x"}}},
		Rooms:              []Room{{ID: "room-1", LastMessage: &last}},
	}

	c := s.Clone()
	c.Users[0].Name = "changed"
	c.ActiveConversation.Name = "changed"
	c.Messages[0].Media.URL = "changed"
	c.Rooms[0].LastMessage.Body = "changed"

	if s.Users[0].Name != "Carlos" ||
		s.ActiveConversation.Name != "Carlos" ||
		s.Messages[0].Media.URL != "x" ||
		s.Rooms[0].LastMessage.Body != "hi" {
		t.Fatal("clone shares memory with the original state")
	}
}
