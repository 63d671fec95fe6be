// Package txdata normalizes raw block-explorer transaction tables into the
// canonical record schema consumed by feature extraction.
//
// Input tables only need to carry a subset of the canonical columns. Which
// columns were present is kept on the Table so downstream stages can state
// their dependencies explicitly instead of guessing from zero values.
package txdata

import (
	"errors"
	"time"
)

// ErrSourceNotFound is returned when the input dataset does not exist.
// The accompanying table is always empty and non-nil.
var ErrSourceNotFound = errors.New("txdata: transaction source not found")

// Sentinel fill values for missing categorical fields.
const (
	UnknownFunction = "unknown"
	UnknownProtocol = "unknown"
	ZeroMethodID    = "0x00000000"
)

// Column identifies one canonical input column.
type Column uint16

const (
	ColFrom Column = 1 << iota
	ColTo
	ColValue
	ColGas
	ColGasPrice
	ColGasUsed
	ColTimestamp
	ColIsError
	ColTxStatus
	ColFunctionName
	ColWalletAddress
	ColProtocolVersion
	ColMethodID
	ColBlockNumber
)

// canonicalColumns maps raw header names, as emitted by the explorer API and
// the collector, to canonical columns. Anything else is ignored.
var canonicalColumns = map[string]Column{
	"from":             ColFrom,
	"to":               ColTo,
	"value":            ColValue,
	"gas":              ColGas,
	"gasPrice":         ColGasPrice,
	"gasUsed":          ColGasUsed,
	"timeStamp":        ColTimestamp,
	"isError":          ColIsError,
	"txreceipt_status": ColTxStatus,
	"functionName":     ColFunctionName,
	"wallet_address":   ColWalletAddress,
	"protocol_version": ColProtocolVersion,
	"methodId":         ColMethodID,
	"blockNumber":      ColBlockNumber,
}

// CanonicalHeader is the column order used when writing transaction tables.
var CanonicalHeader = []string{
	"from", "to", "value", "gas", "gasPrice", "gasUsed", "timeStamp",
	"isError", "txreceipt_status", "functionName", "wallet_address",
	"protocol_version", "methodId", "blockNumber",
}

// ColumnSet records which canonical columns a table carries.
type ColumnSet uint16

// Has reports whether every given column is present.
func (s ColumnSet) Has(cols ...Column) bool {
	for _, c := range cols {
		if s&ColumnSet(c) == 0 {
			return false
		}
	}
	return true
}

// With returns a copy of the set including c.
func (s ColumnSet) With(c Column) ColumnSet {
	return s | ColumnSet(c)
}

// Record is one cleaned transaction row. Nullable numerics are nil when the
// source cell was absent or could not be coerced; they must be excluded from
// aggregates rather than treated as zero.
type Record struct {
	From            string
	To              string
	Value           float64
	Gas             *float64
	GasPrice        *float64
	GasUsed         *float64
	Timestamp       *time.Time
	IsError         *float64
	TxStatus        string
	FunctionName    string
	MethodID        string
	WalletAddress   string
	ProtocolVersion string
	BlockNumber     *float64
}

// Table is an immutable set of cleaned records plus the columns they came with.
type Table struct {
	Columns ColumnSet
	Records []Record
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Stats summarizes one normalization pass.
type Stats struct {
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}
