package devserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-vitalchat/internal/pkg/chat"
)

// PgChatStore persists rooms and messages in Postgres, for dev
// deployments that should survive restarts. Schema:
//
//	CREATE SCHEMA IF NOT EXISTS vitalchat;
//	CREATE TABLE vitalchat.room (
//	    id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
//	    participant_a text NOT NULL,
//	    participant_b text NOT NULL,
//	    pair_key      text NOT NULL UNIQUE,
//	    unread        int  NOT NULL DEFAULT 0
//	);
//	CREATE TABLE vitalchat.message (
//	    id        uuid PRIMARY KEY,
//	    room_id   uuid NOT NULL REFERENCES vitalchat.room(id),
//	    author_id text NOT NULL,
//	    body      text NOT NULL,
//	    sent_at   timestamptz NOT NULL,
//	    is_read   boolean NOT NULL DEFAULT false,
//	    kind      text NOT NULL DEFAULT 'text',
//	    media     jsonb
//	);
type PgChatStore struct {
	pool *pgxpool.Pool
}

func NewPgChatStore(pool *pgxpool.Pool) *PgChatStore {
	return &PgChatStore{pool: pool}
}

var _ ChatStore = (*PgChatStore)(nil)

func (s *PgChatStore) FindRoomByPair(ctx context.Context, a, b string) (chat.Room, error) {
	if s == nil || s.pool == nil {
		return chat.Room{}, errors.New("PgChatStore: nil pool")
	}
	var room chat.Room
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, participant_a, participant_b, unread
		FROM vitalchat.room
		WHERE pair_key = $1
	`, chat.PairKey(a, b)).Scan(&room.ID, &room.ParticipantA, &room.ParticipantB, &room.UnreadCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Room{}, ErrNotFound
	}
	return room, err
}

func (s *PgChatStore) CreateRoom(ctx context.Context, a, b string) (chat.Room, error) {
	if s == nil || s.pool == nil {
		return chat.Room{}, errors.New("PgChatStore: nil pool")
	}
	var room chat.Room
	err := s.pool.QueryRow(ctx, `
		INSERT INTO vitalchat.room (participant_a, participant_b, pair_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (pair_key) DO UPDATE SET pair_key = EXCLUDED.pair_key
		RETURNING id::text, participant_a, participant_b, unread
	`, a, b, chat.PairKey(a, b)).Scan(&room.ID, &room.ParticipantA, &room.ParticipantB, &room.UnreadCount)
	return room, err
}

func (s *PgChatStore) ListRooms(ctx context.Context, userID, search string) ([]chat.Room, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("PgChatStore: nil pool")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, participant_a, participant_b, unread
		FROM vitalchat.room
		WHERE (participant_a = $1 OR participant_b = $1)
		  AND ($2 = '' OR participant_a ILIKE '%' || $2 || '%' OR participant_b ILIKE '%' || $2 || '%')
		ORDER BY id
	`, userID, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []chat.Room
	for rows.Next() {
		var room chat.Room
		if err := rows.Scan(&room.ID, &room.ParticipantA, &room.ParticipantB, &room.UnreadCount); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *PgChatStore) SaveMessage(ctx context.Context, roomID string, m chat.Message) error {
	if s == nil || s.pool == nil {
		return errors.New("PgChatStore: nil pool")
	}
	var media *string
	if m.Media != nil {
		data, err := json.Marshal(m.Media)
		if err != nil {
			return err
		}
		v := string(data)
		media = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vitalchat.message (id, room_id, author_id, body, sent_at, is_read, kind, media)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8::jsonb)
	`, m.ID, roomID, m.AuthorID, m.Body, m.SentAt, m.IsRead, string(m.Kind), media)
	return err
}

func (s *PgChatStore) MessagesByRoom(ctx context.Context, roomID string, skip, limit int) ([]chat.Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("PgChatStore: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, author_id, body, sent_at, is_read, kind, media
		FROM vitalchat.message
		WHERE room_id = $1::uuid
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`, roomID, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []chat.Message{}
	for rows.Next() {
		var (
			m     chat.Message
			kind  string
			media *string
		)
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.Body, &m.SentAt, &m.IsRead, &kind, &media); err != nil {
			return nil, err
		}
		m.Kind = chat.Kind(kind)
		if media != nil {
			var mm chat.Media
			if err := json.Unmarshal([]byte(*media), &mm); err == nil {
				m.Media = &mm
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PgChatStore) MarkRead(ctx context.Context, roomID, messageID string) error {
	if s == nil || s.pool == nil {
		return errors.New("PgChatStore: nil pool")
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE vitalchat.message
		SET is_read = true
		WHERE room_id = $1::uuid AND id = $2::uuid
	`, roomID, messageID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE vitalchat.room
		SET unread = GREATEST(unread - 1, 0)
		WHERE id = $1::uuid
	`, roomID)
	return err
}

func (s *PgChatStore) BumpUnread(ctx context.Context, roomID string) error {
	if s == nil || s.pool == nil {
		return errors.New("PgChatStore: nil pool")
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE vitalchat.room
		SET unread = unread + 1
		WHERE id = $1::uuid
	`, roomID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
