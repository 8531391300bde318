// The api binary serves the analysis engine over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"phenodx/adapters/llm"
	"phenodx/adapters/postgres"
	redisadapter "phenodx/adapters/redis"
	"phenodx/ai"
	"phenodx/api"
	"phenodx/app"
	"phenodx/domain/exclusion"
	"phenodx/domain/match"
	"phenodx/domain/rank"
	"phenodx/domain/redflag"
	"phenodx/internal/config"
	"phenodx/internal/logging"
	"phenodx/ports"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration invalid")
	}
	log := logging.New(cfg.Logging)

	repo, err := postgres.NewReferenceRepository(cfg.Database.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("reference database unavailable")
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	snap, err := repo.LoadSnapshot(ctx)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("reference snapshot load failed")
	}

	resolver := match.NewResolver(snap)
	deps := app.PipelineDeps{
		Snapshot: snap,
		Resolver: resolver,
		Ranker:   rank.NewRanker(snap),
		RedFlags: redflag.NewEngine(snap, nil),
		Observer: stepLogger(log),
		Log:      log,
	}

	var sessions ports.SessionStore
	if cfg.Session.Enabled {
		store, err := redisadapter.NewSessionStore(cfg.Session.RedisURL, log)
		if err != nil {
			log.WithError(err).Warn("session store unavailable; continuing without persistence")
		} else {
			defer store.Close()
			sessions = store
			deps.Sessions = store
			deps.Caps.Sessions = true
		}
	}

	if cfg.LLM.Enabled {
		client, err := llm.NewClient(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Timeout:     cfg.LLM.Timeout,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
		if err != nil {
			log.WithError(err).Warn("generation client misconfigured; running deterministic-only")
		} else {
			prompts := ai.NewPromptManager()
			deps.Excluded = ai.NewExcludedExtractor(client, prompts, exclusion.NewMapper(resolver), log)
			deps.Timing = ai.NewTimingExtractor(client, prompts, log)
			deps.Reasoner = ai.NewReasoner(client, prompts, log)
			deps.Caps.Generation = true
		}
	}

	server := api.NewServer(app.NewPipeline(deps), sessions, snap, log)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", httpServer.Addr).Info("api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-shutdownCtx.Done()
	log.Info("shutting down")

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
	}
}

// stepLogger reports pipeline progress into the process log.
func stepLogger(log *logrus.Logger) ports.StepObserver {
	return ports.StepObserverFunc(func(event ports.StepEvent) {
		entry := log.WithFields(logrus.Fields{"step": event.Name, "status": event.Status})
		if event.Status != ports.StepStarted {
			entry = entry.WithField("seconds", event.DurationSeconds)
		}
		if event.Detail != "" {
			entry = entry.WithField("detail", event.Detail)
		}
		entry.Info("pipeline step")
	})
}
