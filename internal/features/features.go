// Package features aggregates per-wallet transaction history into fixed-width
// numeric feature vectors.
//
// Aggregation is a two-phase operation: global indexes (partitions by wallet
// identifier, receipts by recipient) are built over the whole table first,
// then every wallet is aggregated independently from those indexes.
package features

import "math"

// Feature identifies one column of the wallet feature table.
type Feature int

const (
	TotalTransactions Feature = iota
	SentTransactions
	ReceivedTransactions
	SendReceiveRatio
	TotalValueSent
	TotalValueReceived
	AvgTransactionValue
	MaxTransactionValue
	ValueStd
	ZeroValueRatio
	AvgGasUsed
	TotalGasCost
	ErrorRate
	AvgTimeBetweenTxnsHr
	ActivitySpanDays
	TransactionFrequency
	UniqueRecipients
	UniqueSenders
	RecipientConcentration
	UniqueFunctions
	ContractComplexity

	// NumFeatures is the width of a feature vector.
	NumFeatures int = iota
)

var featureNames = [NumFeatures]string{
	"totalTransactions",
	"sentTransactions",
	"receivedTransactions",
	"sendReceiveRatio",
	"totalValueSent",
	"totalValueReceived",
	"avgTransactionValue",
	"maxTransactionValue",
	"valueStd",
	"zeroValueRatio",
	"avgGasUsed",
	"totalGasCost",
	"errorRate",
	"avgTimeBetweenTxnsHr",
	"activitySpanDays",
	"transactionFrequency",
	"uniqueRecipients",
	"uniqueSenders",
	"recipientConcentration",
	"uniqueFunctions",
	"contractComplexity",
}

// String returns the output column name of the feature.
func (f Feature) String() string {
	if f < 0 || int(f) >= NumFeatures {
		return "unknown"
	}
	return featureNames[f]
}

// All returns every feature in column order.
func All() []Feature {
	out := make([]Feature, NumFeatures)
	for i := range out {
		out[i] = Feature(i)
	}
	return out
}

// Values holds one wallet's features indexed by Feature.
type Values [NumFeatures]float64

// Vector is one wallet's row in the feature table.
type Vector struct {
	WalletID string
	Values   Values
}

// Table is the wallet feature table. Columns lists the features the table
// carries; consumers must ignore values of features not listed.
type Table struct {
	Columns []Feature
	Vectors []Vector
}

// NewTable creates a table carrying every feature column.
func NewTable(vectors []Vector) *Table {
	return &Table{Columns: All(), Vectors: vectors}
}

// Len returns the number of wallets.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Vectors)
}

// Has reports whether the table carries feature f.
func (t *Table) Has(f Feature) bool {
	for _, c := range t.Columns {
		if c == f {
			return true
		}
	}
	return false
}

// Finite replaces NaN and infinities with 0.
func Finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
