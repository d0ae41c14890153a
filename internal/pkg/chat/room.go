package chat

// Room is the server-side pairing record between two participants,
// mirrored client-side as the index for message-history scoping.
type Room struct {
	ID           string   `json:"id"`
	ParticipantA string   `json:"participantA"`
	ParticipantB string   `json:"participantB"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
	UnreadCount  int      `json:"unreadCount"`
}

// PairKey produces the canonical index key for an unordered participant
// pair, so (A,B) and (B,A) resolve to the same room.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// Key returns the room's unordered-pair index key.
func (r Room) Key() string {
	return PairKey(r.ParticipantA, r.ParticipantB)
}

// Counterpart returns the participant that is not selfID. The second
// return is false when selfID is not in the room at all.
func (r Room) Counterpart(selfID string) (string, bool) {
	switch selfID {
	case r.ParticipantA:
		return r.ParticipantB, true
	case r.ParticipantB:
		return r.ParticipantA, true
	default:
		return "", false
	}
}
