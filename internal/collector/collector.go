// Package collector gathers Compound lending transactions for a list of
// wallets from a block explorer and writes them as a transaction table
// the scoring pipeline can load.
package collector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbd888/walletrisk/internal/traces"
	"github.com/mbd888/walletrisk/internal/txdata"
)

// ErrMissingWalletColumn is returned when a wallet list has no wallet_id column.
var ErrMissingWalletColumn = errors.New("collector: wallet list must have a wallet_id column")

// Protocol versions tagged on collected transactions.
const (
	ProtocolV2 = "V2"
	ProtocolV3 = "V3"
)

// ComptrollerV2 is the Compound V2 comptroller. Transactions sent to it are
// tagged V2; the other tracked contracts are tagged V3.
const ComptrollerV2 = "0x3d9819210a31b4961b30ef54be2aed79b9c9cd3b"

// CompoundContracts maps tracked contract addresses to their protocol tag.
var CompoundContracts = map[string]string{
	ComptrollerV2: ProtocolV2,
	"0x5d3a536e4d6dbd6114cc1ead35777bab948e3643": ProtocolV3,
	"0x39aa39c021dfbae8fac545936693ac917d5e7563": ProtocolV3,
	"0xc3d688b66703497daa19211eedff47f25384cdc3": ProtocolV3,
}

// TransactionSource lists a wallet's transactions.
type TransactionSource interface {
	Transactions(ctx context.Context, address string) ([]Transaction, error)
}

// Stats summarizes a collection pass.
type Stats struct {
	Wallets int
	Failed  int
	Fetched int
	Kept    int
}

// Collector filters explorer transactions down to Compound interactions.
type Collector struct {
	source TransactionSource
	logger *slog.Logger
}

// New creates a collector reading from source.
func New(source TransactionSource, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{source: source, logger: logger}
}

// Collect fetches each wallet in order and keeps transactions sent to a
// tracked Compound contract. A wallet whose fetch fails contributes what was
// fetched before the failure; the pass continues with the next wallet.
func (c *Collector) Collect(ctx context.Context, wallets []string) ([]Transaction, Stats, error) {
	var (
		kept  []Transaction
		stats Stats
	)
	for i, wallet := range wallets {
		if err := ctx.Err(); err != nil {
			return kept, stats, err
		}
		stats.Wallets++
		c.logger.Info("collecting wallet", "index", i+1, "total", len(wallets), "wallet", wallet)

		spanCtx, span := traces.StartSpan(ctx, "collector.wallet", traces.WalletAddr(wallet))
		txs, err := c.source.Transactions(spanCtx, wallet)
		if err != nil {
			span.RecordError(err)
			stats.Failed++
			c.logger.Warn("wallet fetch failed", "wallet", wallet, "fetched", len(txs), "error", err)
		}
		span.End()
		if errors.Is(err, context.Canceled) {
			return kept, stats, err
		}

		stats.Fetched += len(txs)
		for _, tx := range txs {
			version, ok := CompoundContracts[strings.ToLower(tx.To)]
			if !ok {
				continue
			}
			tx.WalletAddress = wallet
			tx.ProtocolVersion = version
			kept = append(kept, tx)
		}
	}
	stats.Kept = len(kept)

	if stats.Kept == 0 {
		c.logger.Warn("no compound transactions found", "wallets", stats.Wallets)
	} else {
		c.logger.Info("collection finished",
			"wallets", stats.Wallets,
			"failed", stats.Failed,
			"fetched", stats.Fetched,
			"kept", stats.Kept,
		)
	}
	return kept, stats, nil
}

// ReadWallets reads the wallet_id column of a CSV wallet list. Blank
// entries are skipped.
func ReadWallets(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingWalletColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == "wallet_id" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrMissingWalletColumn
	}

	var wallets []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wallets: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if w := strings.TrimSpace(rec[col]); w != "" {
			wallets = append(wallets, w)
		}
	}
	return wallets, nil
}

// ReadWalletsFile reads a wallet list from path.
func ReadWalletsFile(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadWallets(f)
}

// WriteCSV writes transactions as a canonical transaction table.
func WriteCSV(w io.Writer, txs []Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(txdata.CanonicalHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, tx := range txs {
		if err := cw.Write(row(tx)); err != nil {
			return fmt.Errorf("write transaction %s: %w", tx.Hash, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes transactions to path, creating parent directories.
func WriteCSVFile(path string, txs []Transaction) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return err
	}
	if err := WriteCSV(f, txs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// row orders tx fields as txdata.CanonicalHeader.
func row(tx Transaction) []string {
	return []string{
		tx.From,
		tx.To,
		tx.Value,
		tx.Gas,
		tx.GasPrice,
		tx.GasUsed,
		tx.TimeStamp,
		tx.IsError,
		tx.TxReceiptStatus,
		tx.FunctionName,
		tx.WalletAddress,
		tx.ProtocolVersion,
		tx.MethodID,
		tx.BlockNumber,
	}
}
