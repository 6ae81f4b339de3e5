// Package cmd provides the roofquote operator commands.
package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/config"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/db"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/finance"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/logging"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/measurement"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/quote"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/store"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/waste"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "roofquote",
	Short: "Operate the South Florida roof estimator",
	Long: `roofquote runs migrations and seeds the configuration store, and
prices measurements and quotes from the command line against the same
database the server uses.

Examples:
  roofquote migrate
  roofquote seed --overwrite
  roofquote measure --lat 25.7617 --lng -80.1918
  roofquote quote ./job.json
  roofquote finance 18500`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default DB_PATH or ./dev.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(financeCmd)
}

// app is the wiring shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *sql.DB
	store    *store.Store
	pipeline *quote.Pipeline
}

func openApp() (*app, error) {
	cfg := config.Load()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	st := store.New(database)
	wasteEval := waste.NewEvaluator(st, logger.Named("waste"))
	chain := measurement.NewChain(logger.Named("measurement"),
		measurement.NewThirdParty(cfg.MeasurementBaseURL, cfg.MeasurementAPIKey, cfg.MeasurementProbeTimeout, cfg.MeasurementTimeout),
		measurement.NewManual(st),
		measurement.NewHeuristic(cfg.HeuristicSeed),
	)
	pipeline := quote.NewPipeline(chain, wasteEval,
		pricing.NewEngine(st, logger.Named("pricing")),
		finance.NewCalculator(st, logger.Named("finance")),
		logger.Named("quote"))

	return &app{cfg: cfg, logger: logger, db: database, store: st, pipeline: pipeline}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.db.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
