package chat

// State is the single source of truth for the chat UI: user lists, the
// active conversation, its message log, and the room index. The Store
// owns the only mutable instance; everything published to subscribers is
// a deep copy, so a reader can never observe a torn or half-applied
// update.
type State struct {
	Users              []User    `json:"users"`
	DirectUsers        []User    `json:"directUsers"`
	ActiveConversation *User     `json:"activeConversation,omitempty"`
	Messages           []Message `json:"messages"`
	Rooms              []Room    `json:"rooms"`
	HasJoinedChat      bool      `json:"hasJoinedChat"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s

	out.Users = append([]User(nil), s.Users...)
	out.DirectUsers = append([]User(nil), s.DirectUsers...)

	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = cloneMessage(m)
	}

	out.Rooms = make([]Room, len(s.Rooms))
	for i, r := range s.Rooms {
		out.Rooms[i] = r
		if r.LastMessage != nil {
			lm := cloneMessage(*r.LastMessage)
			out.Rooms[i].LastMessage = &lm
		}
	}

	if s.ActiveConversation != nil {
		active := *s.ActiveConversation
		out.ActiveConversation = &active
	}
	return out
}

func cloneMessage(m Message) Message {
	if m.Media != nil {
		media := *m.Media
		m.Media = &media
	}
	return m
}

// RoomByPair looks up the room for an unordered participant pair.
func (s *State) RoomByPair(a, b string) (Room, bool) {
	key := PairKey(a, b)
	for _, r := range s.Rooms {
		if r.Key() == key {
			return r, true
		}
	}
	return Room{}, false
}
