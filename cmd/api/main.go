package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/squadmarket/platform/internal/auth"
	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/handler"
	"github.com/squadmarket/platform/internal/infra"
	"github.com/squadmarket/platform/internal/outbox"
	"github.com/squadmarket/platform/internal/player"
	"github.com/squadmarket/platform/internal/roster"
	"github.com/squadmarket/platform/internal/store"
	"github.com/squadmarket/platform/internal/team"
	"github.com/squadmarket/platform/internal/transfer"
	"github.com/squadmarket/platform/internal/user"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	jwtExpiry, err := time.ParseDuration(cfg.JWTExpiry)
	if err != nil {
		return fmt.Errorf("parse JWT expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, jwtExpiry)

	clock := clockwork.NewRealClock()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	gen := player.NewGenerator(rng.Intn, clock)

	st := store.NewPostgres(pool)
	ledger := roster.NewLedger(st)
	events := outbox.NewAppender(st, clock)

	playerSvc := player.NewService(st, ledger, gen, clock, cfg.BasePlayerValue, logger)
	teamSvc := team.NewService(st, ledger, playerSvc, events, team.Config{
		MaxTeamsPerUser: cfg.MaxTeamsPerUser,
		StartingBudget:  cfg.StartingBudget,
		Composition: map[domain.PlayerType]int{
			domain.Goalkeeper: cfg.SquadGoalkeepers,
			domain.Defender:   cfg.SquadDefenders,
			domain.Midfielder: cfg.SquadMidfielders,
			domain.Attacker:   cfg.SquadAttackers,
		},
	}, logger)
	transferSvc := transfer.NewService(st, ledger, clock, gen.RandInt, events, transfer.Config{
		MarkupMinPct: cfg.MarkupMinPct,
		MarkupMaxPct: cfg.MarkupMaxPct,
	}, logger)
	userSvc := user.NewService(st, teamSvc, gen, events, logger)

	// Outbox relay
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	relay := outbox.NewWorker(st, producer, cfg.KafkaEventTopic, 2*time.Second, clock, logger)
	go relay.Run(ctx)

	// Handlers
	authHandler := handler.NewAuthHandler(userSvc, jwtMgr)
	userHandler := handler.NewUserHandler(userSvc)
	teamHandler := handler.NewTeamHandler(teamSvc)
	playerHandler := handler.NewPlayerHandler(playerSvc)
	transferHandler := handler.NewTransferHandler(transferSvc)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Auth routes (no auth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(jwtMgr))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Get("/{id}", userHandler.Get)
			r.Patch("/{id}", userHandler.Update)
			r.Delete("/{id}", userHandler.Delete)
		})

		r.Route("/teams", func(r chi.Router) {
			r.Post("/", teamHandler.Create)
			r.Get("/", teamHandler.List)
			r.Get("/{id}", teamHandler.Get)
			r.Patch("/{id}", teamHandler.Update)
			r.Delete("/{id}", teamHandler.Delete)
		})

		r.Route("/players", func(r chi.Router) {
			r.Get("/", playerHandler.List)
			r.Get("/{id}", playerHandler.Get)
			r.Patch("/{id}", playerHandler.Update)
			r.Delete("/{id}", playerHandler.Delete)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin())
				r.Post("/", playerHandler.Create)
			})
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", transferHandler.Create)
			r.Get("/", transferHandler.List)
			r.Get("/{id}", transferHandler.Get)
			r.Post("/{id}/buy", transferHandler.Buy)
			r.Patch("/{id}", transferHandler.Update)
			r.Delete("/{id}", transferHandler.Delete)
		})
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
