package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"roomchat/backend/internal/api/handler"
	"roomchat/backend/internal/auth"
	"roomchat/backend/internal/chathub"
	"roomchat/backend/internal/config"
	"roomchat/backend/internal/localization"
	"roomchat/backend/internal/storage"
	"slices"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
)

func setupStorage(ctx context.Context, cfg config.Config) *storage.Service {
	db, err := storage.OpenDatabase(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to connect database (%s): %v", cfg.DBDriver, err)
	}

	rdb, err := storage.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}
	if rdb == nil {
		log.Println("WARNING: REDIS_ADDR not set; ban cache and cross-process control channel disabled")
	}

	s := storage.NewStorageService(db, rdb)
	if err := s.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database connection established, migrations complete.")
	return s
}

func main() {
	log.Println("Starting roomchat backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := setupStorage(ctx, cfg)

	loc, err := localization.NewDefaultLocalizer()
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}
	if !slices.Contains(loc.Languages(), cfg.DefaultLang) {
		log.Printf("WARNING: No translations for LANG_DEFAULT %q, notices fall back to English (available: %v)", cfg.DefaultLang, loc.Languages())
	}

	authSvc := auth.NewService(s, auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL), auth.NewPasswordHasher(auth.DefaultBcryptCost))
	hub := chathub.NewManagerService(s, authSvc, loc, chathub.OptionsFromConfig(cfg))
	go hub.Run(ctx)

	h := handler.NewHandler(hub, authSvc, loc, cfg.DefaultLang, cfg.AllowedOrigins)
	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        h.Router(cfg.PublicDir),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				err := server.Shutdown(ctx)
				hub.Shutdown()
				cancel()
				return err
			},
		},
	)

	exitCode := <-wait
	if err := s.Close(); err != nil {
		log.Printf("ERROR: Failed to close storage: %v", err)
	}
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
