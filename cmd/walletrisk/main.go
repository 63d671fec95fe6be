// Command walletrisk scores a transactions CSV and writes one risk row per
// wallet.
//
// Usage:
//
//	go run ./cmd/walletrisk -input data/compound_transactions.csv -output data/wallet_risk_scores.csv
//
// With DATABASE_URL set and -persist, the run is also saved for the API.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/mbd888/walletrisk/internal/config"
	"github.com/mbd888/walletrisk/internal/logging"
	"github.com/mbd888/walletrisk/internal/pipeline"
	"github.com/mbd888/walletrisk/internal/report"
	"github.com/mbd888/walletrisk/internal/traces"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var (
		input         = flag.String("input", cfg.InputPath, "transactions CSV to score")
		output        = flag.String("output", cfg.OutputPath, "scored wallets CSV to write")
		seed          = flag.Int64("seed", cfg.RiskSeed, "seed for the isolation forest and k-means")
		workers       = flag.Int("workers", cfg.FeatureWorkers, "feature extraction workers; 0 uses GOMAXPROCS")
		contamination = flag.Float64("contamination", cfg.RiskContamination, "expected anomaly share; 0 uses the default")
		clusters      = flag.Int("clusters", cfg.RiskClusters, "k-means clusters; 0 uses the default")
		trees         = flag.Int("trees", cfg.RiskTrees, "isolation forest trees; 0 uses the default")
		weights       = flag.String("weights", "", "component weights as name=weight pairs, e.g. volumeRisk=0.3,diversityRisk=0.1")
		persist       = flag.Bool("persist", false, "save the run to DATABASE_URL")
	)
	flag.Parse()

	cfg.RiskSeed = *seed
	cfg.FeatureWorkers = *workers
	cfg.RiskContamination = *contamination
	cfg.RiskClusters = *clusters
	cfg.RiskTrees = *trees
	if *weights != "" {
		w, err := config.ParseWeights(*weights)
		if err != nil {
			fmt.Fprintf(os.Stderr, "-weights: %v\n", err)
			os.Exit(2)
		}
		cfg.RiskWeights = w
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg, *input, *output, *persist); err != nil {
		logger.Error("scoring failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, input, output string, persist bool) error {
	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	opts, err := pipeline.ModelOptions(cfg)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(logger, opts...)
	logger.Info("model configured", "model", runner.Model())

	res, err := runner.RunFile(ctx, input)
	if err != nil {
		return err
	}

	if persist {
		if err := save(ctx, cfg.DatabaseURL, res); err != nil {
			return err
		}
		logger.Info("run saved", "run_id", res.Run.ID)
	}

	if res.Run.Status == report.StatusNoInput {
		logger.Warn("input not found, nothing written", "input", input)
		return nil
	}

	if err := report.WriteCSVFile(output, res.Finals, res.Columns); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	logger.Info("scores written",
		"output", output,
		"wallets", res.Run.Wallets,
		"anomalies", res.Run.Anomalies,
		"critical", res.Run.BandCounts["critical"],
		"high", res.Run.BandCounts["high"],
		"mean_final_score", res.Run.MeanFinalScore,
	)
	return nil
}

func save(ctx context.Context, dsn string, res *pipeline.Result) error {
	if dsn == "" {
		return fmt.Errorf("-persist requires DATABASE_URL")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	return report.NewPostgresStore(db).SaveRun(ctx, res.Run, res.Wallets)
}
