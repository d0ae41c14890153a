package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-vitalchat/internal/infrastructure/realtime"
	"go-vitalchat/internal/pkg/chat"
	"go-vitalchat/internal/pkg/dashboard"
)

const readTimeout = 60 * time.Second

// Config tunes the reference server.
type Config struct {
	// OTP fixes the verification code for every login. Empty means a
	// random 4-digit code per login, written to the server log.
	OTP string
	// Store backs room and message persistence; nil selects the
	// in-memory store.
	Store ChatStore
	// Logger receives request and hub events; nil selects the default.
	Logger *slog.Logger
}

// Server is a development stand-in for the remote chat API: the REST
// surface, the socket event vocabulary, and the auth handshake, with
// seeded accounts instead of a user directory.
type Server struct {
	engine *gin.Engine
	auth   *authRegistry
	hub    *hub
	store  ChatStore
	log    *slog.Logger
}

// New constructs a Server and mounts its routes.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryChatStore()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine: gin.New(),
		auth:   newAuthRegistry(cfg.OTP),
		hub:    newHub(),
		store:  store,
		log:    log,
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.POST("/auth/login", s.handleLogin())
	api.PUT("/auth/verify", s.handleVerify())

	authed := api.Group("", s.requireAuth())
	authed.GET("/chatRoom", s.handleListRooms())
	authed.GET("/chatRoom/:roomId/messages", s.handleRoomMessages())
	authed.POST("/chatRoom/add", s.handleCreateRoom())
	authed.GET("/dashboard", s.handleDashboard())
	authed.GET("/ws", s.handleSocket())
}

// Seed registers a user account the server will authenticate.
func (s *Server) Seed(a Account, password string) error {
	return s.auth.seed(a, password)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

// Close terminates all live sockets.
func (s *Server) Close() { s.hub.shutdownAll() }

func (s *Server) handleListRooms() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		rooms, err := s.store.ListRooms(c.Request.Context(), userID, c.Query("search"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		if rooms == nil {
			rooms = []chat.Room{}
		}
		c.JSON(http.StatusOK, rooms)
	}
}

func (s *Server) handleRoomMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")
		skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

		msgs, err := s.store.MessagesByRoom(c.Request.Context(), roomID, skip, limit)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": "room not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

type createRoomRequest struct {
	ParticipantA string `json:"participantA" binding:"required"`
	ParticipantB string `json:"participantB" binding:"required"`
}

func (s *Server) handleCreateRoom() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		ctx := c.Request.Context()
		if room, err := s.store.FindRoomByPair(ctx, req.ParticipantA, req.ParticipantB); err == nil {
			c.JSON(http.StatusOK, room)
			return
		}
		room, err := s.store.CreateRoom(ctx, req.ParticipantA, req.ParticipantB)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, room)
	}
}

func (s *Server) handleDashboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, dashboard.FallbackItems())
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Development server: accept any origin.
		return true
	},
}

func (s *Server) handleSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response.
			return
		}

		cn := newConn(userID, ws)
		s.hub.attach(cn)
		defer func() {
			wasCurrent := s.hub.detach(cn)
			cn.shutdown(websocket.CloseNormalClosure, "session closed")
			if wasCurrent {
				s.hub.broadcast(chat.EventUserOffline, chat.PresencePayload{UserID: userID}, userID)
			}
		}()

		ws.SetReadLimit(1 << 20)
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(readTimeout))
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env realtime.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				s.log.Warn("discarding malformed frame", "user", userID, "error", err)
				continue
			}
			s.dispatch(c.Request.Context(), userID, env)
		}
	}
}

// dispatch routes one inbound socket event.
func (s *Server) dispatch(ctx context.Context, userID string, env realtime.Envelope) {
	switch env.Event {
	case chat.EventJoin, chat.EventLogin:
		s.hub.broadcast(chat.EventUserOnline, chat.PresencePayload{UserID: userID}, userID)

	case chat.EventLogout:
		s.hub.broadcast(chat.EventUserOffline, chat.PresencePayload{UserID: userID}, userID)

	case chat.EventMessage:
		var p chat.MessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.log.Warn("discarding malformed message event", "user", userID, "error", err)
			return
		}
		p.SenderID = userID
		s.routeMessage(ctx, p)

	case chat.EventReadReceipt:
		var p chat.ReadReceiptPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if p.RoomID == "" || p.MessageID == "" {
			return
		}
		if err := s.store.MarkRead(ctx, p.RoomID, p.MessageID); err != nil {
			s.log.Warn("read receipt ignored", "room", p.RoomID, "error", err)
		}

	default:
		s.log.Warn("unsupported event", "event", env.Event, "user", userID)
	}
}

// routeMessage persists one chat message and delivers it to the
// recipient's live socket; an offline recipient gets an unread bump in
// the room record instead.
func (s *Server) routeMessage(ctx context.Context, p chat.MessagePayload) {
	roomID := p.RoomID
	if roomID == "" {
		room, err := s.store.FindRoomByPair(ctx, p.SenderID, p.RecipientID)
		if errors.Is(err, ErrNotFound) {
			room, err = s.store.CreateRoom(ctx, p.SenderID, p.RecipientID)
		}
		if err != nil {
			s.log.Warn("message dropped, no room", "sender", p.SenderID, "error", err)
			return
		}
		roomID = room.ID
	}

	msg := chat.Message{
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
		msg.Kind = chat.KindText
	}
	if err := s.store.SaveMessage(ctx, roomID, msg); err != nil {
		s.log.Warn("message not persisted", "room", roomID, "error", err)
		return
	}

	p.ID = msg.ID
	p.RoomID = roomID
	p.SentAt = msg.SentAt
	p.Kind = msg.Kind
	if s.hub.notifyUser(p.RecipientID, chat.EventMessage, p) {
		return
	}
	if err := s.store.BumpUnread(ctx, roomID); err != nil {
		s.log.Warn("unread bump failed", "room", roomID, "error", err)
	}
}
