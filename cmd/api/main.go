package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-lingo/backend/internal/config"
	"github.com/zhouzirui/z-lingo/backend/internal/handler"
	"github.com/zhouzirui/z-lingo/backend/internal/logging"
	"github.com/zhouzirui/z-lingo/backend/internal/middleware"
	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
	"github.com/zhouzirui/z-lingo/backend/internal/relay"
	"github.com/zhouzirui/z-lingo/backend/internal/service/ai"
	"github.com/zhouzirui/z-lingo/backend/internal/service/chat"
	"github.com/zhouzirui/z-lingo/backend/internal/service/links"
	"github.com/zhouzirui/z-lingo/backend/internal/store/rediscache"
	"github.com/zhouzirui/z-lingo/backend/internal/store/sqlite"
	"github.com/zhouzirui/z-lingo/backend/internal/store/supabase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Setup(cfg.Log)
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("no .env file loaded, continuing with system environment variables only")
	}

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn().Err(err).Msg("close failed")
			}
		}
	}()

	var db *sqlite.Store
	openDB := func() (*sqlite.Store, error) {
		if db != nil {
			return db, nil
		}
		opened, err := sqlite.Open(cfg.Chat.DBPath)
		if err != nil {
			return nil, err
		}
		db = opened
		closers = append(closers, opened)
		return db, nil
	}

	catalogStore, err := buildCatalog(ctx, cfg.Catalog, openDB, logger, &closers)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Catalog.Backend).Msg("failed to initialize catalog")
	}

	var chatStore chat.Store = chat.NewMemoryStore()
	if cfg.Chat.Store == "sqlite" {
		store, err := openDB()
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Chat.DBPath).Msg("failed to open chat database")
		}
		chatStore = store
	}
	chatService := chat.NewService(chatStore)

	rl := relay.New(links.NewValidator(catalogStore, logger), logger)

	deps := handler.Dependencies{
		Catalog:    catalogStore,
		Chat:       chatService,
		Relay:      rl,
		Auth:       middleware.NewAuthenticator(cfg.Auth),
		ChatConfig: cfg.Chat,
		Logger:     logger,
	}

	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, catalogStore, cfg.AI, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize AI service, continuing without AI functionality")
		} else {
			deps.Completer = aiService
			logger.Info().
				Str("model", aiService.DefaultModel()).
				Bool("streaming", aiService.StreamingEnabled()).
				Msg("AI service initialized")
		}
	} else {
		logger.Info().Msg("Ark credentials not configured, skipping AI initialization")
	}

	if len(cfg.Auth.Tokens) == 0 {
		logger.Warn().Msg("AUTH_TOKENS is empty, every authenticated route will answer 401")
	}

	router := handler.NewRouter(deps)

	startServer(ctx, cfg.Server, router, logger)
}

func buildCatalog(ctx context.Context, cfg config.CatalogConfig, openDB func() (*sqlite.Store, error), logger zerolog.Logger, closers *[]io.Closer) (catalog.Store, error) {
	var store catalog.Store
	switch cfg.Backend {
	case "sqlite":
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		if err := db.SeedCatalog(ctx, catalog.Seed()); err != nil {
			return nil, err
		}
		store = db
	case "supabase":
		remote, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseAPIKey})
		if err != nil {
			return nil, err
		}
		store = remote
	default:
		store = catalog.NewMemoryStore(catalog.Seed())
	}

	if cfg.RedisURL == "" {
		return store, nil
	}

	backend, err := rediscache.NewRedisBackend(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, backend)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, catalog lookups will bypass the cache until it recovers")
	}

	logger.Info().Dur("ttl", cfg.CacheTTL).Msg("catalog cache enabled")
	return rediscache.New(store, backend, cfg.CacheTTL, logger), nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("Z Lingo backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
