package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"go-vitalchat/internal/devserver"
	"go-vitalchat/internal/infrastructure/database"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := devserver.Config{
		OTP:    os.Getenv("DEVSERVER_OTP"),
		Logger: logger,
	}

	// Postgres-backed history when DB_URL is set, in-memory otherwise.
	if os.Getenv("DB_URL") != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err := database.NewPoolFromEnv(ctx)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pool.Close()
		cfg.Store = devserver.NewPgChatStore(pool)
		logger.Info("using postgres chat store")
	}

	srv := devserver.New(cfg)
	defer srv.Close()

	seed := []struct {
		account  devserver.Account
		password string
	}{
		{devserver.Account{FirstName: "Deepika", LastName: "Sharma", Email: "deepika@example.com", Role: "PCP", Organization: "Conviva"}, "password123"},
		{devserver.Account{FirstName: "Carlos", LastName: "Reyes", Email: "carlos@example.com", Role: "Nurse", Organization: "Canohealth"}, "password123"},
		{devserver.Account{FirstName: "Maria", LastName: "June", Email: "maria@example.com", Role: "Nurse", Organization: "CCMC"}, "password123"},
	}
	for _, s := range seed {
		if err := srv.Seed(s.account, s.password); err != nil {
			log.Fatalf("failed to seed account %s: %v", s.account.Email, err)
		}
	}

	addr := ":" + os.Getenv("PORT")
	if addr == ":" {
		addr = ":8080"
	}
	logger.Info("devserver listening", slog.String("addr", addr))
	if err := srv.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
