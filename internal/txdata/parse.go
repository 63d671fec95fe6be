package txdata

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Parse normalizes an in-memory raw table. header names the cells of each row;
// rows may be ragged, missing trailing cells count as empty.
func Parse(header []string, rows [][]string) (*Table, Stats) {
	index := make(map[Column]int)
	var cols ColumnSet
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")
		c, ok := canonicalColumns[name]
		if !ok || cols.Has(c) {
			continue
		}
		index[c] = i
		cols = cols.With(c)
	}

	stats := Stats{Rows: len(rows)}
	table := &Table{Columns: cols, Records: make([]Record, 0, len(rows))}

	for _, row := range rows {
		cell := func(c Column) string {
			i, ok := index[c]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		value, ok := parseAmount(cell(ColValue))
		if !ok {
			stats.Dropped++
			continue
		}

		rec := Record{
			From:          NormalizeAddress(cell(ColFrom)),
			To:            NormalizeAddress(cell(ColTo)),
			Value:         value,
			Gas:           parseNumber(cell(ColGas)),
			GasPrice:      parseNumber(cell(ColGasPrice)),
			GasUsed:       parseNumber(cell(ColGasUsed)),
			Timestamp:     parseEpoch(cell(ColTimestamp)),
			IsError:       parseNumber(cell(ColIsError)),
			TxStatus:      cell(ColTxStatus),
			WalletAddress: NormalizeAddress(cell(ColWalletAddress)),
			BlockNumber:   parseNumber(cell(ColBlockNumber)),
		}
		if cols.Has(ColFunctionName) {
			rec.FunctionName = orDefault(cell(ColFunctionName), UnknownFunction)
		}
		if cols.Has(ColProtocolVersion) {
			rec.ProtocolVersion = orDefault(cell(ColProtocolVersion), UnknownProtocol)
		}
		if cols.Has(ColMethodID) {
			rec.MethodID = orDefault(cell(ColMethodID), ZeroMethodID)
		}
		table.Records = append(table.Records, rec)
	}

	stats.Kept = len(table.Records)
	return table, stats
}

// NormalizeAddress lowercases an address. Well-formed hex addresses are
// canonicalized to their 0x-prefixed form.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if common.IsHexAddress(s) {
		return strings.ToLower(common.HexToAddress(s).Hex())
	}
	return strings.ToLower(s)
}

// parseAmount coerces a transfer value. Wei amounts routinely exceed float64
// integer precision so they go through an exact decimal parse first.
func parseAmount(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func parseNumber(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseEpoch(s string) *time.Time {
	if s == "" {
		return nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.Unix(sec, 0).UTC()
		return &t
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	sec, frac := math.Modf(f)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return &t
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
