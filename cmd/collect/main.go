// Command collect fetches the Compound transactions of every wallet in a
// wallet list from Etherscan and writes them as a transactions CSV.
//
// Usage:
//
//	ETHERSCAN_API_KEY=... go run ./cmd/collect -wallets data/wallets.csv -output data/compound_transactions.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbd888/walletrisk/internal/collector"
	"github.com/mbd888/walletrisk/internal/config"
	"github.com/mbd888/walletrisk/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var (
		wallets = flag.String("wallets", cfg.WalletsPath, "CSV with a wallet_id column")
		output  = flag.String("output", cfg.TransactionsPath, "transactions CSV to write")
		rps     = flag.Float64("rps", collector.DefaultRequestsPerSec, "Etherscan requests per second")
		chainID = flag.String("chain", collector.DefaultChainID, "Etherscan v2 chain ID")
	)
	flag.Parse()

	cfg.WalletsPath = *wallets
	cfg.TransactionsPath = *output
	if err := cfg.ValidateCollector(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg, *rps, *chainID); err != nil {
		logger.Error("collection failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, rps float64, chainID string) error {
	addrs, err := collector.ReadWalletsFile(cfg.WalletsPath)
	if err != nil {
		return err
	}
	logger.Info("wallets loaded", "path", cfg.WalletsPath, "wallets", len(addrs))

	client := collector.NewClient(cfg.EtherscanAPIURL, cfg.EtherscanAPIKey, logger,
		collector.WithRateLimit(rps),
		collector.WithChainID(chainID),
	)
	txs, stats, err := collector.New(client, logger).Collect(ctx, addrs)
	if err != nil {
		return err
	}

	if err := collector.WriteCSVFile(cfg.TransactionsPath, txs); err != nil {
		return fmt.Errorf("write %s: %w", cfg.TransactionsPath, err)
	}

	logger.Info("transactions written",
		"output", cfg.TransactionsPath,
		"wallets", stats.Wallets,
		"failed", stats.Failed,
		"fetched", stats.Fetched,
		"kept", stats.Kept,
	)
	return nil
}
