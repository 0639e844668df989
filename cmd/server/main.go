package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/VoiceBot/internal/adapters/engine"
	router "github.com/dkeye/VoiceBot/internal/adapters/http"
	"github.com/dkeye/VoiceBot/internal/adapters/resolver"
	"github.com/dkeye/VoiceBot/internal/adapters/telegram"
	"github.com/dkeye/VoiceBot/internal/app"
	"github.com/dkeye/VoiceBot/internal/app/dispatch"
	"github.com/dkeye/VoiceBot/internal/app/orch"
	"github.com/dkeye/VoiceBot/internal/config"
	"github.com/dkeye/VoiceBot/internal/domain"
	"github.com/dkeye/VoiceBot/internal/logging"
	"github.com/dkeye/VoiceBot/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logger until the config says otherwise.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log)

	// 1. Primary identity.
	bot, botSelf, err := telegram.Connect(cfg.Bot.Token, cfg.Bot.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("bot authentication failed")
	}
	log.Info().Stringer("bot", botSelf.ID).Str("username", botSelf.Username).Msg("bot authorized")

	// 2. Assistant identity, through the call engine.
	eng := engine.New(engine.Config{
		URL:        cfg.Engine.URL,
		ReadLimit:  cfg.Engine.ReadLimit,
		PingPeriod: cfg.Engine.PingPeriod,
		Handshake:  cfg.Engine.Handshake,
		Backoff:    cfg.Engine.Backoff,
		Credentials: engine.Credentials{
			APIID:         cfg.Assistant.APIID,
			APIHash:       cfg.Assistant.APIHash,
			SessionString: cfg.Assistant.SessionString,
		},
	})
	assistant, err := eng.Connect(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("assistant authentication failed")
	}
	if assistant.ID == botSelf.ID {
		log.Fatal().Msg("assistant and bot must be different accounts")
	}

	artifacts, err := storage.NewArtifacts(afero.NewOsFs(), cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("artifact storage unavailable")
	}
	if err := artifacts.Sweep(); err != nil {
		log.Warn().Err(err).Msg("failed to sweep leftover downloads")
	}

	chat := telegram.NewClient(bot)
	store := app.NewSessionStore()
	o := &orch.Orchestrator{
		Store:      store,
		Membership: app.NewMembershipManager(chat, eng, assistant, cfg.Timeouts.Join),
		Media: &app.MediaResolver{
			Resolver:  resolver.New(cfg.Resolver.Binary),
			Artifacts: artifacts,
			Policy:    cfg.Resolver.Policy,
			Timeout:   cfg.Timeouts.Resolve,
		},
		Engine:        eng,
		Artifacts:     artifacts,
		Quality:       cfg.Quality,
		EngineTimeout: cfg.Timeouts.Engine,
	}
	eng.OnStreamEnded(func(room domain.RoomID) {
		ectx, ecancel := context.WithTimeout(context.Background(), cfg.Timeouts.Engine+5*time.Second)
		defer ecancel()
		o.StreamEnded(ectx, room)
	})
	limiter := dispatch.NewRateLimiter(cfg.Dispatch.Limit, cfg.Dispatch.Interval)
	poller := &telegram.Poller{
		Source:      bot,
		Handler:     dispatch.New(chat, o, limiter),
		PollTimeout: cfg.Bot.Timeout,
		Workers:     cfg.Bot.Workers,
		Drain:       cfg.Bot.Drain,
	}

	// The engine outlives the command loop so shutdown can still leave calls.
	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = eng.Run(engineCtx)
	}()

	// 3. HTTP liveness.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(cfg, o),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server forced to shutdown")
		}
		return nil
	})
	g.Go(func() error {
		maintain(gctx, cfg.Session, store, limiter)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("bot stopped with error")
	}

	log.Info().Msg("Shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Engine+5*time.Second)
	o.StopAll(stopCtx)
	stopCancel()

	stopEngine()
	<-engineDone
	log.Info().Msg("Bot exited gracefully")
}

// maintain evicts idle sessions and forgets stale rate-limit history.
func maintain(ctx context.Context, cfg config.SessionConfig, store *app.SessionStore, limiter *dispatch.RateLimiter) {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.IdleTTL > 0 {
				store.EvictIdle(cfg.IdleTTL)
			}
			limiter.Prune()
		}
	}
}
