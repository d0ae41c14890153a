package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"go-vitalchat/internal/infrastructure/httpapi"
	"go-vitalchat/internal/infrastructure/realtime"
	storage "go-vitalchat/internal/infrastructure/storage/adapter"
	"go-vitalchat/internal/infrastructure/storage/port"
	"go-vitalchat/internal/pkg/chat"
	"go-vitalchat/internal/pkg/dashboard"
	"go-vitalchat/internal/pkg/session"
)

// Minimal wiring demo: sign in, open the socket, and drive the chat
// store from stdin. Not a UI — just enough to exercise the SDK end to
// end against the devserver.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	store, err := newStateStore()
	if err != nil {
		log.Fatalf("state storage: %v", err)
	}
	defer store.Close()

	api, err := httpapi.NewClientFromEnv(logger)
	if err != nil {
		log.Fatalf("api client: %v", err)
	}

	mgr := session.NewManager(api, store, logger)
	mgr.Bind(api)

	reader := bufio.NewScanner(os.Stdin)
	if !mgr.IsAuthenticated() {
		if err := signIn(ctx, mgr, reader); err != nil {
			log.Fatalf("sign in: %v", err)
		}
	}
	self, _ := mgr.CurrentUser()
	fmt.Printf("signed in as %s\n", self.Name)

	socketURL := os.Getenv("VITALCHAT_SOCKET_URL")
	if socketURL == "" {
		log.Fatal("VITALCHAT_SOCKET_URL environment variable is not set")
	}
	socket := realtime.NewSocket(socketURL, logger, realtime.WithHeader(func() http.Header {
		h := http.Header{}
		mgr.AttachAuthHeader(&http.Request{Header: h})
		return h
	}))
	if err := socket.Connect(ctx); err != nil {
		log.Fatalf("socket: %v", err)
	}
	defer socket.Close()

	chatStore := chat.NewStore(chat.NewAPI(api), socket, self.ID, logger)
	adapter := chat.NewAdapter(chatStore, logger)
	adapter.Bind(socket)
	defer adapter.Release()

	unsubscribe := chatStore.Subscribe(func(s chat.State) {
		if n := len(s.Messages); n > 0 {
			last := s.Messages[n-1]
			fmt.Printf("[%s] %s: %s\n", last.SentAt.Format("15:04"), last.AuthorID, last.Body)
		}
	})
	defer unsubscribe()

	if err := chatStore.SyncRooms(ctx); err != nil {
		logger.Warn("room sync failed", slog.Any("error", err))
	}
	chatStore.AnnounceLogin()
	defer chatStore.AnnounceLogout()

	repl(ctx, mgr, chatStore, api, logger, reader, self.ID)
}

// newStateStore picks where the session persists: Redis when REDIS_URL
// is set, otherwise the local state file.
func newStateStore() (port.Store, error) {
	if os.Getenv("REDIS_URL") != "" {
		return storage.NewRedisStore("vitalchat:")
	}
	return storage.NewFileStoreFromEnv()
}

func signIn(ctx context.Context, mgr *session.Manager, reader *bufio.Scanner) error {
	email := prompt(reader, "email: ")
	password := prompt(reader, "password: ")

	verifyToken, err := mgr.Login(ctx, session.LoginInput{
		Email:       email,
		Password:    password,
		DeviceToken: session.GenerateDeviceToken(),
		DeviceType:  session.DeviceTypeWeb,
	})
	if err != nil {
		return err
	}

	otp := prompt(reader, "verification code: ")
	if _, err := mgr.Verify(ctx, verifyToken, otp); err != nil {
		return err
	}
	return nil
}

func repl(ctx context.Context, mgr *session.Manager, store *chat.Store, api *httpapi.Client, logger *slog.Logger, reader *bufio.Scanner, selfID string) {
	fmt.Println("commands: select <userId> <name> | send <text> | join | rooms | dashboard | logout | quit")
	for {
		line := prompt(reader, "> ")
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "select":
			id, name, _ := strings.Cut(rest, " ")
			if id == "" {
				fmt.Println("usage: select <userId> <name>")
				continue
			}
			if err := store.SetActiveConversation(ctx, chat.User{ID: id, Name: name}); err != nil {
				fmt.Printf("select failed: %v\n", err)
			}
		case "send":
			if err := store.SendMessage(rest, selfID); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		case "join":
			store.JoinChat()
		case "rooms":
			rooms, err := store.FetchRooms(ctx, rest)
			if err != nil {
				fmt.Printf("rooms failed: %v\n", err)
				continue
			}
			for _, r := range rooms {
				other, _ := r.Counterpart(selfID)
				fmt.Printf("%s with %s (unread %d)\n", r.ID, other, r.UnreadCount)
			}
		case "dashboard":
			items, err := dashboard.NewLoader(api, logger).Load(ctx)
			if err != nil {
				fmt.Printf("dashboard failed: %v\n", err)
				continue
			}
			for _, it := range items {
				fmt.Printf("%-20s %-8s %s\n", it.Title, it.Status, it.LastUpdated.Format("2006-01-02"))
			}
		case "logout":
			store.AnnounceLogout()
			mgr.Logout()
			fmt.Println("signed out")
			return
		case "quit", "":
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

func prompt(reader *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !reader.Scan() {
		os.Exit(0)
	}
	return strings.TrimSpace(reader.Text())
}
