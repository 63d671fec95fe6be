package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/scoring"
)

// Header returns the output column names for the given feature columns.
func Header(columns []features.Feature) []string {
	h := make([]string, 0, len(columns)+7)
	h = append(h, "walletId")
	for _, c := range columns {
		h = append(h, c.String())
	}
	return append(h,
		"baseRiskScore",
		"isAnomaly",
		"cluster",
		"clusterRiskAdjustment",
		"finalRiskScore",
		"riskBand",
	)
}

// WriteCSV writes one row per wallet, keyed by walletId, in input order.
func WriteCSV(w io.Writer, finals []scoring.Final, columns []features.Feature) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(columns)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, 0, len(columns)+7)
	for _, f := range finals {
		row = row[:0]
		row = append(row, f.WalletID)
		for _, c := range columns {
			row = append(row, formatFloat(f.Values[c]))
		}
		row = append(row,
			formatFloat(f.BaseRiskScore),
			formatBool(f.IsAnomaly),
			strconv.Itoa(f.Cluster),
			formatFloat(f.ClusterRiskAdjustment),
			strconv.FormatFloat(f.FinalRiskScore, 'f', 0, 64),
			string(f.Band),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write wallet %s: %w", f.WalletID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the output table to path, creating parent directories.
// The file is written to a temporary sibling and renamed into place.
func WriteCSVFile(path string, finals []scoring.Final, columns []features.Feature) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := WriteCSV(tmp, finals, columns); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// formatBool matches the True/False spelling of the existing score files.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
