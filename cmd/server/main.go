package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/config"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/db"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/finance"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/logging"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/measurement"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/migrations"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/quote"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/seed"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/store"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/waste"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	store      *store.Store
	waste      *waste.Evaluator
	pricing    *pricing.Engine
	pipeline   *quote.Pipeline
	adminToken string
	logger     *zap.Logger
}

func newServer(database *sql.DB, cfg config.Config, logger *zap.Logger) *server {
	st := store.New(database)
	wasteEval := waste.NewEvaluator(st, logger.Named("waste"))
	engine := pricing.NewEngine(st, logger.Named("pricing"))
	calc := finance.NewCalculator(st, logger.Named("finance"))
	chain := measurement.NewChain(logger.Named("measurement"),
		measurement.NewThirdParty(cfg.MeasurementBaseURL, cfg.MeasurementAPIKey, cfg.MeasurementProbeTimeout, cfg.MeasurementTimeout),
		measurement.NewManual(st),
		measurement.NewHeuristic(cfg.HeuristicSeed),
	)

	return &server{
		store:      st,
		waste:      wasteEval,
		pricing:    engine,
		pipeline:   quote.NewPipeline(chain, wasteEval, engine, calc, logger.Named("quote")),
		adminToken: cfg.AdminToken,
		logger:     logger,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/measurements", s.handleMeasure)
		r.Post("/sections/price", s.handlePriceSection)
		r.Post("/quotes/price", s.handlePriceQuote)
		r.Post("/financing", s.handleFinancing)
		r.Get("/quotes", s.handleQuotesList)
		r.Get("/quotes/{id}", s.handleQuoteDetail)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Put("/waste-rules", s.handleAdminWasteRules)
		r.Put("/rate-cards", s.handleAdminRateCards)
		r.Put("/finance-plans", s.handleAdminFinancePlan)
		r.Put("/overrides/{key}", s.handleAdminSetOverride)
		r.Delete("/overrides/{key}", s.handleAdminDeleteOverride)
	})

	return r
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Output:      "stderr",
		Development: cfg.IsDev(),
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsDev() {
		applied, err := migrations.Up(ctx, database)
		if err != nil {
			return fmt.Errorf("run database migrations: %w", err)
		}
		stats, err := seed.Run(ctx, database, seed.Options{})
		if err != nil {
			return fmt.Errorf("seed database: %w", err)
		}
		logger.Info("database ready",
			zap.Int("migrationsApplied", applied),
			zap.Int("seedInserts", stats.Inserts))
	}

	srv := newServer(database, cfg, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())))
	})
}
