package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examhell/internal/handler"
	appI18n "github.com/pavelanni/examhell/internal/i18n"
	"github.com/pavelanni/examhell/internal/llm"
	"github.com/pavelanni/examhell/internal/llm/prompts"
	"github.com/pavelanni/examhell/internal/model"
	"github.com/pavelanni/examhell/internal/store"
)

const sessionCleanupInterval = time.Hour

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examhell.db", "SQLite database path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Bool("skip-llm-check", false, "Start even if the LLM endpoint is unreachable")
	f.StringP("lang", "l", "en", "Default language (en, ru)")
	f.Int("max-questions", 0, "Upper bound on questions per assistant reply (0 = no limit)")
	f.Int("history-limit", 20, "Most recent chat messages sent to the assistant (0 = all)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set EXAMHELL_ADMIN_PASSWORD)")
	addLogFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		prompts.SystemData{Language: languageName(lang), MaxQuestions: v.GetInt("max-questions")},
	)
	if err := llmClient.Ping(ctx); err != nil {
		if !v.GetBool("skip-llm-check") {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Warn("LLM endpoint unreachable", "url", v.GetString("llm-url"), "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	h := handler.New(db, llmClient, handler.Config{
		SecureCookies: v.GetBool("secure-cookies"),
		HistoryLimit:  v.GetInt("history-limit"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())
	h.Routes(r)

	go cleanupSessions(ctx, db)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"history_limit", v.GetInt("history-limit"),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// cleanupSessions purges expired auth sessions until ctx is cancelled.
func cleanupSessions(ctx context.Context, db *store.Store) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.CleanupExpiredSessions()
			if err != nil {
				slog.Error("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("removed expired sessions", "count", n)
			}
		}
	}
}

// languageName maps a UI language code to the name used in the system prompt.
func languageName(lang string) string {
	switch lang {
	case "ru":
		return "Russian"
	default:
		return "English"
	}
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or EXAMHELL_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
