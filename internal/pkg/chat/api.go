package chat

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go-vitalchat/internal/infrastructure/httpapi"
)

// API is the REST collaborator for the chat surface. It is a pure
// request/response layer; all state handling lives in the Store.
type API struct {
	http *httpapi.Client
}

func NewAPI(c *httpapi.Client) *API {
	return &API{http: c}
}

// Rooms lists the caller's chat rooms, optionally filtered server-side.
func (a *API) Rooms(ctx context.Context, search string) ([]Room, error) {
	var query url.Values
	if search != "" {
		query = url.Values{"search": []string{search}}
	}
	var rooms []Room
	if err := a.http.Get(ctx, "/chatRoom", query, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// RoomMessages fetches one page of a room's history, newest first.
// Callers detect the end of history by a page shorter than limit.
func (a *API) RoomMessages(ctx context.Context, roomID string, skip, limit int) ([]Message, error) {
	if roomID == "" {
		return nil, fmt.Errorf("chat: room id is required")
	}
	query := url.Values{
		"skip":  []string{strconv.Itoa(skip)},
		"limit": []string{strconv.Itoa(limit)},
	}
	var msgs []Message
	if err := a.http.Get(ctx, "/chatRoom/"+roomID+"/messages", query, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

type createRoomRequest struct {
	ParticipantA string `json:"participantA"`
	ParticipantB string `json:"participantB"`
}

// CreateRoom registers a pairing record for the two participants. The
// caller is responsible for checking its local index first; the server
// offers no dedup guarantee.
func (a *API) CreateRoom(ctx context.Context, userA, userB string) (Room, error) {
	if userA == "" || userB == "" {
		return Room{}, fmt.Errorf("chat: both participants are required")
	}
	var room Room
	err := a.http.Post(ctx, "/chatRoom/add", createRoomRequest{ParticipantA: userA, ParticipantB: userB}, &room)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}
