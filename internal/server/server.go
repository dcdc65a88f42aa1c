package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/avanomad/avanomad/internal/config"
	"github.com/avanomad/avanomad/internal/jobs"
	"github.com/avanomad/avanomad/internal/routes"
)

// Server wraps the Fiber application, the background scheduler and shared
// dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	services  *routes.Services
	scheduler *jobs.Scheduler
	logger    *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}
	services, err := routes.NewServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:     cfg.AppName,
		ReadTimeout: 30 * time.Second,
		// receipt waits can hold a USSD callback for RECEIPT_TIMEOUT
		WriteTimeout: cfg.ReceiptTimeout + 30*time.Second,
	})
	routes.Setup(app, deps, services)

	scheduler := jobs.NewScheduler(services.Jobs, jobs.Schedules{
		PayoutCheck:      cfg.PayoutCheckSchedule,
		DepositProcess:   cfg.DepositProcessSchedule,
		ReceiptReconcile: cfg.ReceiptReconcileSchedule,
		SessionSweep:     cfg.SessionSweepSchedule,
	}, logger)

	return &Server{app: app, cfg: cfg, services: services, scheduler: scheduler, logger: logger}, nil
}

// Listen starts the scheduler and the HTTP server.
func (s *Server) Listen() error {
	s.scheduler.Start()
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, waits for running jobs and
// closes outbound connections.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.app.ShutdownWithContext(ctx)

	select {
	case <-s.scheduler.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler did not stop before shutdown deadline")
	}

	return errors.Join(httpErr, s.services.Close())
}
