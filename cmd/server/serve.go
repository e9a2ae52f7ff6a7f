package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/k1tz03/Forkfall/internal/cache"
	"github.com/k1tz03/Forkfall/internal/config"
	"github.com/k1tz03/Forkfall/internal/guard"
	"github.com/k1tz03/Forkfall/internal/identity"
	"github.com/k1tz03/Forkfall/internal/moderation"
	"github.com/k1tz03/Forkfall/internal/repository"
	"github.com/k1tz03/Forkfall/internal/repository/memory"
	"github.com/k1tz03/Forkfall/internal/server"
	"github.com/k1tz03/Forkfall/internal/service"
	"github.com/k1tz03/Forkfall/internal/telegram_bot"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync() // Flushes buffer, if any
			}()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, logger)
		},
	}
}

// stores is the full set of persistence backends for one process.
type stores struct {
	forks        repository.ForkRepository
	interactions repository.InteractionRepository
	actors       repository.ActorRepository
	reports      repository.ReportRepository
	masks        repository.MaskRepository
	sessions     repository.SessionRepository
	counter      repository.RateCounter
	closers      []io.Closer
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Storage.Driver {
	case "postgres":
		db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		s.closers = append(s.closers, db)
		if err := repository.MigrateDB(db, logger); err != nil {
			s.Close()
			return nil, err
		}
		s.forks = repository.NewForkRepository(db, logger)
		s.interactions = repository.NewInteractionRepository(db, logger)
		s.actors = repository.NewActorRepository(db, logger)
		s.reports = repository.NewReportRepository(db, logger)
		s.masks = repository.NewMaskRepository(db, logger)
		s.sessions = repository.NewSessionRepository(db, logger)
	default:
		store := memory.NewStore()
		s.forks = store.Forks()
		s.interactions = store.Interactions()
		s.actors = store.Actors()
		s.reports = store.Reports()
		s.masks = store.Masks()
		s.sessions = store.Sessions()
		logger.Warn("Using in-memory storage; state is lost on restart")
	}

	if cfg.Redis.URL == "" {
		s.counter = memory.NewRateCounter()
		return s, nil
	}
	client, err := cache.NewClient(ctx, cfg.Redis.URL, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, client)
	s.counter = cache.NewRateCounter(client, logger)
	s.sessions = cache.NewSessionStore(client, logger)
	return s, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	bot, err := telegram_bot.NewBot(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram bot, continuing without it", zap.Error(err))
		bot = nil
	}
	var notifier moderation.Notifier
	if bot != nil {
		notifier = bot
	}

	g := guard.New(st.actors, st.counter, logger)
	id := identity.NewManager(st.masks, st.sessions, logger)
	gate := moderation.NewGate(st.reports, st.forks, st.actors, notifier,
		cfg.Moderation.CacheSize, cfg.Moderation.CacheTTL, logger)

	srv, err := server.NewServer(cfg, server.Services{
		Auth:     service.NewAuthService(st.actors, cfg.Auth.JWTSecret, cfg.Auth.FingerprintKey, logger),
		Feed:     service.NewFeedService(st.forks, st.interactions, g, id, gate, cfg.Feed.CandidateLimit, logger),
		Forks:    service.NewForkService(st.forks, st.interactions, g, id, gate, logger),
		Identity: id,
	}, newAccessLog(cfg), logger)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(gctx)
	})
	if bot != nil {
		group.Go(func() error {
			if err := bot.Start(gctx, gate); err != nil {
				logger.Error("Telegram bot failed", zap.Error(err))
			}
			return nil
		})
	}

	err = group.Wait()
	logger.Info("Application stopped.")
	return err
}
