package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-vitalchat/internal/infrastructure/realtime"
)

const defaultPageSize = 50

// ErrNoActiveConversation is returned by operations that need a selected
// conversation when none is active.
var ErrNoActiveConversation = errors.New("chat: no active conversation")

// Store maintains the ChatState aggregate and publishes every committed
// update to subscribers in commit order. It is mutated by UI actions and
// by inbound realtime events (via the Adapter); nothing else writes to
// the state.
type Store struct {
	api       *API
	transport realtime.Transport
	log       *slog.Logger
	selfID    string
	pageSize  int

	// commitMu serializes mutation and publication, so snapshots reach
	// subscribers in the order their triggering events were processed.
	commitMu sync.Mutex
	mu       sync.RWMutex
	state    State

	activeRoom *Room
	skip       int
	hasMore    bool

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPageSize overrides the message-history page size.
func WithPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewStore constructs a Store for the signed-in user selfID. transport
// may be nil in tests that exercise pure state transitions; emits are
// then skipped.
func NewStore(api *API, transport realtime.Transport, selfID string, log *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		api:       api,
		transport: transport,
		log:       log,
		selfID:    selfID,
		pageSize:  defaultPageSize,
		subs:      make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a deep copy of the current state.
func (st *Store) Snapshot() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Clone()
}

// Subscribe registers fn for state snapshots. The current snapshot is
// delivered immediately, then every committed update exactly once, in
// commit order. The returned func unsubscribes; calling it twice is a
// no-op.
func (st *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	st.commitMu.Lock()
	st.subMu.Lock()
	id := st.nextSub
	st.nextSub++
	st.subs[id] = fn
	st.subMu.Unlock()
	current := st.Snapshot()
	fn(current)
	st.commitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			st.subMu.Lock()
			delete(st.subs, id)
			st.subMu.Unlock()
		})
	}
}

// SeedUsers installs the initial user lists, normalizing derived fields.
func (st *Store) SeedUsers(users, directUsers []User) {
	st.commit(func(s *State) {
		s.Users = normalizeUsers(users)
		s.DirectUsers = normalizeUsers(directUsers)
	})
}

// SetActiveConversation makes user the single active conversation: the
// user's unread count is zeroed in both lists, the room's history is
// loaded (creating the room on first contact), the pagination cursor is
// reset, and hasJoinedChat drops to false.
//
// The switch itself always commits; a history-fetch failure leaves the
// transcript empty and is returned to the caller.
func (st *Store) SetActiveConversation(ctx context.Context, user User) error {
	var (
		msgs     []Message
		room     *Room
		fetchErr error
	)

	r, err := st.EnsureRoom(ctx, st.selfID, user.ID)
	if err != nil {
		fetchErr = err
	} else {
		room = &r
		page, err := st.api.RoomMessages(ctx, r.ID, 0, st.pageSize)
		if err != nil {
			fetchErr = err
		} else {
			msgs = ascending(page)
		}
	}

	active := user.Normalize()
	st.commit(func(s *State) {
		s.ActiveConversation = &active
		s.Messages = msgs
		s.HasJoinedChat = false
		zeroUnread(s.Users, user.ID)
		zeroUnread(s.DirectUsers, user.ID)

		st.activeRoom = room
		st.skip = len(msgs)
		st.hasMore = len(msgs) == st.pageSize
	})

	if fetchErr != nil {
		return fmt.Errorf("chat: load conversation history: %w", fetchErr)
	}
	return nil
}

// LoadOlderMessages fetches the next history page for the active
// conversation and prepends it to the transcript. It reports whether
// more pages may remain: a page shorter than the page size means the
// history is exhausted.
func (st *Store) LoadOlderMessages(ctx context.Context) (hasMore bool, err error) {
	st.mu.RLock()
	room := st.activeRoom
	skip := st.skip
	more := st.hasMore
	st.mu.RUnlock()

	if room == nil {
		return false, ErrNoActiveConversation
	}
	if !more {
		return false, nil
	}

	page, err := st.api.RoomMessages(ctx, room.ID, skip, st.pageSize)
	if err != nil {
		return more, err
	}

	older := ascending(page)
	st.commit(func(s *State) {
		s.Messages = append(older, s.Messages...)
		st.skip = skip + len(page)
		st.hasMore = len(page) == st.pageSize
	})
	return len(page) == st.pageSize, nil
}

// SendMessage appends an optimistic message to the active transcript and
// dispatches it over the realtime channel without waiting for an
// acknowledgment. An empty or whitespace-only body is a no-op. A failed
// dispatch is logged; the optimistic message stays visible.
func (st *Store) SendMessage(body, senderID string) error {
	msg, err := NewMessage(senderID, body)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) {
			return nil
		}
		return err
	}

	st.mu.RLock()
	active := st.state.ActiveConversation
	room := st.activeRoom
	st.mu.RUnlock()
	if active == nil {
		return ErrNoActiveConversation
	}

	st.commit(func(s *State) {
		s.Messages = insertOrdered(s.Messages, msg)
	})

	payload := MessagePayload{
		ID:          msg.ID,
		SenderID:    senderID,
		RecipientID: active.ID,
		Body:        msg.Body,
		SentAt:      msg.SentAt,
		Kind:        msg.Kind,
	}
	if room != nil {
		payload.RoomID = room.ID
	}
	st.emit(EventMessage, payload)
	return nil
}

// JoinChat marks the current user as joined and announces presence.
func (st *Store) JoinChat() {
	st.commit(func(s *State) {
		s.HasJoinedChat = true
	})
	st.emit(EventJoin, PresencePayload{UserID: st.selfID})
}

// ReceiveInbound folds one inbound chat message into the state. A
// message from the active counterpart is appended to the transcript,
// read-reconciled immediately when the user has joined the chat; any
// other sender gets an unread bump instead. Never both, never neither.
func (st *Store) ReceiveInbound(p MessagePayload) {
	msg := Message{
		ID:       p.ID,
		AuthorID: p.SenderID,
		Body:     p.Body,
		SentAt:   p.SentAt,
		Kind:     p.Kind,
		Media:    p.Media,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	if msg.Kind == "" {
		msg.Kind = KindText
	}

	var receipt *ReadReceiptPayload
	st.commit(func(s *State) {
		if s.ActiveConversation != nil && s.ActiveConversation.ID == p.SenderID {
			msg.IsRead = s.HasJoinedChat
			s.Messages = insertOrdered(s.Messages, msg)
			touchRoom(s.Rooms, st.selfID, p.SenderID, msg, false)
			if s.HasJoinedChat {
				receipt = &ReadReceiptPayload{
					MessageID: msg.ID,
					RoomID:    p.RoomID,
					ReaderID:  st.selfID,
				}
			}
			return
		}

		bumpUnread(s.Users, p.SenderID, 1)
		bumpUnread(s.DirectUsers, p.SenderID, 1)
		touchRoom(s.Rooms, st.selfID, p.SenderID, msg, true)
	})

	if receipt != nil {
		st.emit(EventReadReceipt, *receipt)
	}
}

// BumpUnread applies a server-driven unread-count bump for userID.
func (st *Store) BumpUnread(userID string, count int) {
	if count <= 0 {
		count = 1
	}
	st.commit(func(s *State) {
		bumpUnread(s.Users, userID, count)
		bumpUnread(s.DirectUsers, userID, count)
	})
}

// MarkMessageAsRead flips the message's read flag and notifies the
// realtime layer so server-side read receipts stay consistent. Unknown
// message ids are ignored.
func (st *Store) MarkMessageAsRead(messageID string) {
	var flipped bool
	st.commit(func(s *State) {
		for i := range s.Messages {
			if s.Messages[i].ID == messageID && !s.Messages[i].IsRead {
				s.Messages[i].IsRead = true
				flipped = true
				return
			}
		}
	})
	if !flipped {
		return
	}

	st.mu.RLock()
	room := st.activeRoom
	st.mu.RUnlock()
	receipt := ReadReceiptPayload{MessageID: messageID, ReaderID: st.selfID}
	if room != nil {
		receipt.RoomID = room.ID
	}
	st.emit(EventReadReceipt, receipt)
}

// SetUserOnline applies a presence change across both user lists and the
// active conversation reference within one published snapshot.
func (st *Store) SetUserOnline(userID string, online bool) {
	st.commit(func(s *State) {
		setOnline(s.Users, userID, online)
		setOnline(s.DirectUsers, userID, online)
		if s.ActiveConversation != nil && s.ActiveConversation.ID == userID {
			s.ActiveConversation.IsOnline = online
		}
	})
}

// EnsureRoom returns the room for the unordered pair (userA, userB),
// consulting the local index first and calling the room-creation
// endpoint only on a genuine miss. The created room is inserted into the
// index, so a second call resolves locally to the same room id.
func (st *Store) EnsureRoom(ctx context.Context, userA, userB string) (Room, error) {
	st.mu.RLock()
	room, ok := st.state.RoomByPair(userA, userB)
	st.mu.RUnlock()
	if ok {
		return room, nil
	}

	created, err := st.api.CreateRoom(ctx, userA, userB)
	if err != nil {
		return Room{}, err
	}

	st.commit(func(s *State) {
		if _, exists := s.RoomByPair(userA, userB); !exists {
			s.Rooms = append(s.Rooms, created)
		}
	})
	return created, nil
}

// FetchRooms is a pure pass-through to the room listing endpoint.
func (st *Store) FetchRooms(ctx context.Context, search string) ([]Room, error) {
	return st.api.Rooms(ctx, search)
}

// FetchRoomMessages is a pure pass-through to the history endpoint.
// Callers own the cursor: a page shorter than limit means no more pages.
func (st *Store) FetchRoomMessages(ctx context.Context, roomID string, skip, limit int) ([]Message, error) {
	return st.api.RoomMessages(ctx, roomID, skip, limit)
}

// SyncRooms refreshes the local room index from the server.
func (st *Store) SyncRooms(ctx context.Context) error {
	rooms, err := st.api.Rooms(ctx, "")
	if err != nil {
		return err
	}
	st.commit(func(s *State) {
		s.Rooms = rooms
	})
	return nil
}

// AnnounceLogin emits the login notification for the current user.
func (st *Store) AnnounceLogin() {
	st.emit(EventLogin, PresencePayload{UserID: st.selfID})
}

// AnnounceLogout emits the logout notification for the current user.
func (st *Store) AnnounceLogout() {
	st.emit(EventLogout, PresencePayload{UserID: st.selfID})
}

// commit applies mutate to a copy of the state, swaps it in, and
// publishes the new snapshot to every subscriber before the next commit
// may begin.
func (st *Store) commit(mutate func(*State)) {
	st.commitMu.Lock()
	defer st.commitMu.Unlock()

	st.mu.Lock()
	next := st.state.Clone()
	mutate(&next)
	st.state = next
	st.mu.Unlock()

	st.subMu.Lock()
	ids := make([]int, 0, len(st.subs))
	for id := range st.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), len(ids))
	for i, id := range ids {
		fns[i] = st.subs[id]
	}
	st.subMu.Unlock()

	for _, fn := range fns {
		fn(next.Clone())
	}
}

func (st *Store) emit(event string, payload any) {
	if st.transport == nil {
		return
	}
	if err := st.transport.Emit(event, payload); err != nil {
		st.log.Warn("realtime emit failed", slog.String("event", event), slog.Any("error", err))
	}
}

func normalizeUsers(users []User) []User {
	out := make([]User, len(users))
	for i, u := range users {
		out[i] = u.Normalize()
	}
	return out
}

func zeroUnread(users []User, id string) {
	for i := range users {
		if users[i].ID == id {
			users[i].UnreadCount = 0
		}
	}
}

func bumpUnread(users []User, id string, count int) {
	for i := range users {
		if users[i].ID == id {
			users[i].UnreadCount += count
		}
	}
}

func setOnline(users []User, id string, online bool) {
	for i := range users {
		if users[i].ID == id {
			users[i].IsOnline = online
		}
	}
}

// touchRoom refreshes the room's last message for the pair; bump also
// increments the room's unread counter, which an inbound message for the
// active conversation must not do.
func touchRoom(rooms []Room, selfID, senderID string, msg Message, bump bool) {
	key := PairKey(selfID, senderID)
	for i := range rooms {
		if rooms[i].Key() == key {
			last := msg
			rooms[i].LastMessage = &last
			if bump {
				rooms[i].UnreadCount++
			}
			return
		}
	}
}

// insertOrdered places msg so the transcript stays in non-decreasing
// SentAt order; equal timestamps keep arrival order.
func insertOrdered(msgs []Message, msg Message) []Message {
	i := len(msgs)
	for i > 0 && msgs[i-1].SentAt.After(msg.SentAt) {
		i--
	}
	msgs = append(msgs, Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}

// ascending flips a newest-first history page into display order.
func ascending(page []Message) []Message {
	out := make([]Message, len(page))
	for i, m := range page {
		out[len(page)-1-i] = m
	}
	return out
}
