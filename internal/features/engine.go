package features

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mbd888/walletrisk/internal/txdata"
)

// DefaultProgressEvery is how many wallets are aggregated between progress logs.
const DefaultProgressEvery = 2000

// Engine builds wallet feature tables.
type Engine struct {
	logger        *slog.Logger
	workers       int
	progressEvery int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of wallets aggregated concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithProgressEvery sets the progress logging interval in wallets.
func WithProgressEvery(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.progressEvery = n
		}
	}
}

// NewEngine creates a feature engine.
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:        logger,
		workers:       runtime.GOMAXPROCS(0),
		progressEvery: DefaultProgressEvery,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// index is the global view of a transaction table shared by every wallet.
type index struct {
	cols       txdata.ColumnSet
	order      []string
	partitions map[string][]*txdata.Record
	receipts   map[string][]*txdata.Record
}

func buildIndex(tx *txdata.Table) *index {
	idx := &index{
		cols:       tx.Columns,
		partitions: make(map[string][]*txdata.Record),
		receipts:   make(map[string][]*txdata.Record),
	}

	useWallet := false
	if tx.Columns.Has(txdata.ColWalletAddress) {
		for i := range tx.Records {
			if tx.Records[i].WalletAddress != "" {
				useWallet = true
				break
			}
		}
	}

	for i := range tx.Records {
		rec := &tx.Records[i]
		id := rec.From
		if useWallet {
			id = rec.WalletAddress
		}
		if id != "" {
			if _, seen := idx.partitions[id]; !seen {
				idx.order = append(idx.order, id)
			}
			idx.partitions[id] = append(idx.partitions[id], rec)
		}
		if tx.Columns.Has(txdata.ColTo) && rec.To != "" {
			idx.receipts[rec.To] = append(idx.receipts[rec.To], rec)
		}
	}
	return idx
}

// Build aggregates every wallet in tx into a feature table. Wallets appear in
// order of first appearance. An empty input yields an empty table.
func (e *Engine) Build(ctx context.Context, tx *txdata.Table) (*Table, error) {
	if tx.Len() == 0 {
		return NewTable(nil), nil
	}

	start := time.Now()
	idx := buildIndex(tx)
	vectors := make([]Vector, len(idx.order))

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, wallet := range idx.order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vectors[i] = Vector{
				WalletID: wallet,
				Values:   aggregate(wallet, idx.partitions[wallet], idx.receipts[wallet], idx.cols),
			}
			if n := done.Add(1); n%int64(e.progressEvery) == 0 {
				e.logger.Info("feature extraction progress", "wallets", n, "total", len(idx.order))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info("features built",
		"wallets", len(vectors),
		"transactions", tx.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return NewTable(vectors), nil
}

// aggregate computes one wallet's features. part is the wallet's partition,
// received every row in the table addressed to the wallet.
func aggregate(wallet string, part, received []*txdata.Record, cols txdata.ColumnSet) Values {
	var v Values
	n := len(part)

	var sent []*txdata.Record
	if cols.Has(txdata.ColFrom) {
		for _, r := range part {
			if r.From == wallet {
				sent = append(sent, r)
			}
		}
	}

	v[TotalTransactions] = float64(n)
	v[SentTransactions] = float64(len(sent))
	v[ReceivedTransactions] = float64(len(received))
	v[SendReceiveRatio] = float64(len(sent)) / float64(max(len(received), 1))

	values := make([]float64, n)
	zeros := 0
	for i, r := range part {
		values[i] = r.Value
		if r.Value == 0 {
			zeros++
		}
	}
	v[TotalValueSent] = sumValues(sent)
	v[TotalValueReceived] = sumValues(received)
	v[AvgTransactionValue] = stat.Mean(values, nil)
	v[MaxTransactionValue] = floats.Max(values)
	if n > 1 {
		v[ValueStd] = stat.StdDev(values, nil)
	}
	v[ZeroValueRatio] = float64(zeros) / float64(n)

	if cols.Has(txdata.ColGasUsed, txdata.ColGasPrice) {
		v[AvgGasUsed], v[TotalGasCost], v[ErrorRate] = gasFeatures(part, cols.Has(txdata.ColIsError))
	}

	v[AvgTimeBetweenTxnsHr], v[ActivitySpanDays], v[TransactionFrequency] = temporalFeatures(part)

	recipients := make(map[string]struct{})
	for _, r := range sent {
		if r.To != "" {
			recipients[r.To] = struct{}{}
		}
	}
	senders := make(map[string]struct{})
	for _, r := range received {
		if r.From != "" {
			senders[r.From] = struct{}{}
		}
	}
	v[UniqueRecipients] = float64(len(recipients))
	v[UniqueSenders] = float64(len(senders))
	v[RecipientConcentration] = float64(len(sent)) / float64(max(len(recipients), 1))

	if cols.Has(txdata.ColFunctionName) {
		v[UniqueFunctions], v[ContractComplexity] = functionFeatures(part)
	}

	for i := range v {
		v[i] = Finite(v[i])
	}
	return v
}

func sumValues(rows []*txdata.Record) float64 {
	total := 0.0
	for _, r := range rows {
		total += r.Value
	}
	return total
}

func gasFeatures(part []*txdata.Record, hasIsError bool) (avgUsed, totalCost, errorRate float64) {
	var used, errs []float64
	for _, r := range part {
		if r.GasUsed != nil {
			used = append(used, *r.GasUsed)
			if r.GasPrice != nil {
				totalCost += *r.GasUsed * *r.GasPrice
			}
		}
		if hasIsError && r.IsError != nil {
			errs = append(errs, *r.IsError)
		}
	}
	if len(used) > 0 {
		avgUsed = stat.Mean(used, nil)
	}
	if len(errs) > 0 {
		errorRate = stat.Mean(errs, nil)
	}
	return avgUsed, totalCost, errorRate
}

// temporalFeatures returns the mean gap in hours, the activity span in whole
// days (at least 1) and the transactions-per-day frequency.
func temporalFeatures(part []*txdata.Record) (avgGapHr, spanDays, frequency float64) {
	n := len(part)
	if n == 1 {
		return 0, 1, 1
	}

	stamps := make([]time.Time, 0, n)
	for _, r := range part {
		if r.Timestamp != nil {
			stamps = append(stamps, *r.Timestamp)
		}
	}
	if len(stamps) < 2 {
		return 0, 1, float64(n)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	gaps := make([]float64, len(stamps)-1)
	for i := 1; i < len(stamps); i++ {
		gaps[i-1] = stamps[i].Sub(stamps[i-1]).Hours()
	}
	avgGapHr = stat.Mean(gaps, nil)

	days := int64(stamps[len(stamps)-1].Sub(stamps[0]) / (24 * time.Hour))
	spanDays = float64(max(days, 1))
	return avgGapHr, spanDays, float64(n) / spanDays
}

func functionFeatures(part []*txdata.Record) (unique, complexity float64) {
	counts := make(map[string]int)
	top := 0
	for _, r := range part {
		counts[r.FunctionName]++
		if c := counts[r.FunctionName]; c > top {
			top = c
		}
	}
	return float64(len(counts)), 1 - float64(top)/float64(len(part))
}
