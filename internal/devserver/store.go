package devserver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-vitalchat/internal/pkg/chat"
)

// ErrNotFound signals a missing room or message.
var ErrNotFound = errors.New("devserver: not found")

// ChatStore persists rooms and message history for the reference server.
type ChatStore interface {
	FindRoomByPair(ctx context.Context, a, b string) (chat.Room, error)
	CreateRoom(ctx context.Context, a, b string) (chat.Room, error)
	ListRooms(ctx context.Context, userID, search string) ([]chat.Room, error)
	SaveMessage(ctx context.Context, roomID string, m chat.Message) error
	MessagesByRoom(ctx context.Context, roomID string, skip, limit int) ([]chat.Message, error)
	MarkRead(ctx context.Context, roomID, messageID string) error
	BumpUnread(ctx context.Context, roomID string) error
}

// MemoryChatStore is the default backing store: good enough for local
// development and tests, gone on restart.
type MemoryChatStore struct {
	mu       sync.RWMutex
	rooms    map[string]chat.Room      // id -> room
	byPair   map[string]string         // pair key -> room id
	messages map[string][]chat.Message // room id -> ascending by SentAt
}

func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{
		rooms:    make(map[string]chat.Room),
		byPair:   make(map[string]string),
		messages: make(map[string][]chat.Message),
	}
}

var _ ChatStore = (*MemoryChatStore)(nil)

func (s *MemoryChatStore) FindRoomByPair(_ context.Context, a, b string) (chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[chat.PairKey(a, b)]
	if !ok {
		return chat.Room{}, ErrNotFound
	}
	return s.rooms[id], nil
}

func (s *MemoryChatStore) CreateRoom(_ context.Context, a, b string) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chat.PairKey(a, b)
	if id, ok := s.byPair[key]; ok {
		return s.rooms[id], nil
	}
	room := chat.Room{ID: uuid.NewString(), ParticipantA: a, ParticipantB: b}
	s.rooms[room.ID] = room
	s.byPair[key] = room.ID
	return room, nil
}

func (s *MemoryChatStore) ListRooms(_ context.Context, userID, search string) ([]chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chat.Room
	for _, r := range s.rooms {
		if _, ok := r.Counterpart(userID); !ok {
			continue
		}
		if search != "" {
			other, _ := r.Counterpart(userID)
			if !strings.Contains(strings.ToLower(other), strings.ToLower(search)) {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryChatStore) SaveMessage(_ context.Context, roomID string, m chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	s.messages[roomID] = append(s.messages[roomID], m)
	last := m
	room.LastMessage = &last
	s.rooms[roomID] = room
	return nil
}

// MessagesByRoom returns one page of history, newest first, offset by
// skip.
func (s *MemoryChatStore) MessagesByRoom(_ context.Context, roomID string, skip, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, ErrNotFound
	}

	all := s.messages[roomID]
	// newest first: walk from the tail
	start := len(all) - skip
	if start <= 0 {
		return []chat.Message{}, nil
	}
	end := start - limit
	if end < 0 {
		end = 0
	}
	page := make([]chat.Message, 0, start-end)
	for i := start - 1; i >= end; i-- {
		page = append(page, all[i])
	}
	return page, nil
}

func (s *MemoryChatStore) MarkRead(_ context.Context, roomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.messages[roomID]
	if !ok {
		return ErrNotFound
	}
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].IsRead = true
			if room, ok := s.rooms[roomID]; ok && room.UnreadCount > 0 {
				room.UnreadCount--
				s.rooms[roomID] = room
			}
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryChatStore) BumpUnread(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.UnreadCount++
	s.rooms[roomID] = room
	return nil
}
