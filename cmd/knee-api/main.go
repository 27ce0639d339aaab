package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpadapter "github.com/abhishekh011/chatbotDemo/internal/adapters/http"
	firestorestore "github.com/abhishekh011/chatbotDemo/internal/adapters/storage/firestore"
	memstore "github.com/abhishekh011/chatbotDemo/internal/adapters/storage/memory"
	pgstore "github.com/abhishekh011/chatbotDemo/internal/adapters/storage/postgres"
	redisstore "github.com/abhishekh011/chatbotDemo/internal/adapters/storage/redis"
	sqlitestore "github.com/abhishekh011/chatbotDemo/internal/adapters/storage/sqlite"
	"github.com/abhishekh011/chatbotDemo/internal/adapters/summary"
	"github.com/abhishekh011/chatbotDemo/internal/adapters/telegram"
	"github.com/abhishekh011/chatbotDemo/internal/app/conversation"
	"github.com/abhishekh011/chatbotDemo/internal/app/referral"
	"github.com/abhishekh011/chatbotDemo/internal/config"
	"github.com/abhishekh011/chatbotDemo/internal/domain"
	"github.com/abhishekh011/chatbotDemo/internal/observability"
)

// stores bundles the three ports; every backend implements all of them.
type stores struct {
	sessions  domain.SessionStore
	messages  domain.MessageStore
	referrals domain.ReferralStore
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.Logger().Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	observability.Init(cfg.IsDevelopment(), level)
	log := observability.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("error initializing storage")
	}
	defer st.close()

	var summarizer domain.Summarizer
	if cfg.UseVertexSummary {
		log.Info().Str("model", cfg.ModelName).Msg("using Vertex summaries")
		summarizer, err = summary.NewVertexSummarizer(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			log.Fatal().Err(err).Msg("error initializing Vertex summarizer")
		}
	} else {
		log.Info().Msg("using template summaries")
		summarizer = summary.NewTemplateSummarizer()
	}

	recorder := referral.NewRecorder(st.referrals, summarizer)
	svc := conversation.NewService(st.sessions, st.messages, summarizer, recorder, cfg.ReplyDelay)
	defer svc.Close()

	if cfg.TelegramToken != "" {
		tg, err := telegram.New(cfg.TelegramToken, svc)
		if err != nil {
			log.Fatal().Err(err).Msg("error initializing Telegram bot")
		}
		log.Info().Msg("starting Telegram bot")
		go tg.Start(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpadapter.NewServer(svc, referral.NewService(st.referrals)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("backend", cfg.StorageBackend).
			Dur("reply_delay", cfg.ReplyDelay).
			Msg("knee assessment API listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	log := observability.Logger()

	switch cfg.StorageBackend {
	case config.BackendFirestore:
		log.Info().Str("project", cfg.GCPProjectID).Msg("using Firestore storage")
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		return &stores{fs, fs, fs, func() { _ = fs.Close() }}, nil

	case config.BackendRedis:
		log.Info().Dur("ttl", cfg.SessionTTL).Msg("using Redis storage")
		rs, err := redisstore.NewStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		return &stores{rs, rs, rs, func() { _ = rs.Close() }}, nil

	case config.BackendSQLite:
		log.Info().Str("path", cfg.SQLitePath).Msg("using SQLite storage")
		ss, err := sqlitestore.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{ss, ss, ss, func() { _ = ss.Close() }}, nil

	case config.BackendPostgres:
		log.Info().Msg("using PostgreSQL storage")
		ps, err := pgstore.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &stores{ps, ps, ps, ps.Close}, nil

	default:
		log.Info().Msg("using in-memory storage")
		return &stores{
			sessions:  memstore.NewSessionStore(),
			messages:  memstore.NewMessageStore(),
			referrals: memstore.NewReferralStore(),
			close:     func() {},
		}, nil
	}
}
