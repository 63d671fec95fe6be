package txdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

// ReadCSV parses a CSV stream whose first row is the header.
func ReadCSV(r io.Reader) (*Table, Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, Stats{}, nil
	}
	if err != nil {
		return &Table{}, Stats{}, fmt.Errorf("read header: %w", err)
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &Table{}, Stats{}, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, row)
	}

	table, stats := Parse(header, rows)
	return table, stats, nil
}

// Loader reads transaction tables from disk.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader that reports through logger.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadFile loads and normalizes a CSV file. A missing file yields an empty
// table together with ErrSourceNotFound so callers can halt gracefully.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Table, Stats, error) {
	if err := ctx.Err(); err != nil {
		return &Table{}, Stats{}, err
	}

	f, err := os.Open(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Error("transaction source not found", "path", path)
			return &Table{}, Stats{}, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return &Table{}, Stats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	table, stats, err := ReadCSV(f)
	if err != nil {
		return &Table{}, Stats{}, fmt.Errorf("parse %s: %w", path, err)
	}

	l.logger.Info("transactions loaded",
		"path", path,
		"rows", stats.Rows,
		"kept", stats.Kept,
		"dropped", stats.Dropped,
	)
	if !table.Columns.Has(ColValue) && stats.Rows > 0 {
		l.logger.Warn("value column missing, all rows dropped", "path", path)
	}
	return table, stats, nil
}
