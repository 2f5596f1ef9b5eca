package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/renalpath/decision-app/internal/assistant"
	"github.com/renalpath/decision-app/internal/content"
	"github.com/renalpath/decision-app/internal/feedback"
	"github.com/renalpath/decision-app/internal/httpapi"
	"github.com/renalpath/decision-app/internal/ratelimit"
	"github.com/renalpath/decision-app/internal/session"
	"github.com/renalpath/decision-app/internal/speech"
)

func main() {
	listenAddr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}

	sessionConfig := session.DefaultConfig()
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			sessionConfig.TTL = d
		}
	}
	if v := os.Getenv("SESSION_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			sessionConfig.SweepInterval = d
		}
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	// --- Redis (rate limiting) ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- Postgres (feedback, optional) ---
	var feedbackStore *feedback.Store
	var db *sql.DB
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := feedback.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		feedbackStore = feedback.NewStore(db)
	} else {
		log.Println("DATABASE_URL not set, feedback endpoint disabled")
	}

	// --- Reference content ---
	library, err := content.Load()
	if err != nil {
		log.Fatalf("failed to load reference content: %v", err)
	}

	// --- Session store ---
	store := session.NewStore(sessionConfig)

	// --- Assistant and speech ---
	asst := assistant.NewOpenAI(assistant.Config{
		APIKey: apiKey,
		Model:  os.Getenv("OPENAI_MODEL"),
	})
	speechSvc := speech.NewService(speech.Config{
		APIKey:   apiKey,
		TTSModel: os.Getenv("TTS_MODEL"),
		STTModel: os.Getenv("STT_MODEL"),
		Voice:    os.Getenv("TTS_VOICE"),
	})

	api := httpapi.NewServer(store, ratelimit.NewLimiter(rdb), asst, speechSvc, feedbackStore, library)

	log.Printf("RenalPath API server starting")
	log.Printf("  listen_addr:    %s", listenAddr)
	log.Printf("  session_ttl:    %s", sessionConfig.TTL)
	log.Printf("  sweep_interval: %s", sessionConfig.SweepInterval)
	log.Printf("  redis_addr:     %s", redisAddr)
	log.Printf("  feedback:       %v", feedbackStore != nil)

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      api.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	store.Close()
	rdb.Close()
	if db != nil {
		db.Close()
	}
}
