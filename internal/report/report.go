// Package report persists and serves the results of scoring runs: run
// metadata, per-wallet scores, the flat CSV output, and the HTTP read API.
package report

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/scoring"
)

// ErrNotFound is returned when a run or wallet score does not exist.
var ErrNotFound = errors.New("report: not found")

// Run statuses.
const (
	StatusOK      = "ok"
	StatusNoInput = "no_input"
)

// Query limits for wallet listings.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Run describes one completed scoring run.
type Run struct {
	ID                 string         `json:"id"`
	Status             string         `json:"status"`
	InputPath          string         `json:"inputPath,omitempty"`
	Seed               int64          `json:"seed"`
	RowsTotal          int            `json:"rowsTotal"`
	RowsKept           int            `json:"rowsKept"`
	RowsDropped        int            `json:"rowsDropped"`
	Wallets            int            `json:"wallets"`
	Anomalies          int            `json:"anomalies"`
	Clusters           int            `json:"clusters"`
	ClusterSizes       []int          `json:"clusterSizes,omitempty"`
	ClusterAdjustments []float64      `json:"clusterAdjustments,omitempty"`
	BandCounts         map[string]int `json:"bandCounts"`
	MeanFinalScore     float64        `json:"meanFinalScore"`
	StartedAt          time.Time      `json:"startedAt"`
	CompletedAt        time.Time      `json:"completedAt"`
}

// WalletScore is one wallet's persisted result within a run.
type WalletScore struct {
	RunID                 string             `json:"runId"`
	Address               string             `json:"address"`
	Features              map[string]float64 `json:"features"`
	BaseRiskScore         float64            `json:"baseRiskScore"`
	Contributions         map[string]float64 `json:"contributions"`
	Boosts                []string           `json:"boosts"`
	IsAnomaly             bool               `json:"isAnomaly"`
	AnomalyScore          float64            `json:"anomalyScore"`
	Cluster               int                `json:"cluster"`
	ClusterRiskAdjustment float64            `json:"clusterRiskAdjustment"`
	FinalRiskScore        float64            `json:"finalRiskScore"`
	RiskBand              string             `json:"riskBand"`
	ScoredAt              time.Time          `json:"scoredAt"`
}

// Store persists scoring runs.
type Store interface {
	// SaveRun persists a run and its wallet scores atomically.
	SaveRun(ctx context.Context, run *Run, wallets []WalletScore) error

	// LatestRun returns the most recently completed run.
	LatestRun(ctx context.Context) (*Run, error)

	// GetRun returns a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListWallets returns a run's wallets ordered by final score, highest first.
	ListWallets(ctx context.Context, runID string, limit int) ([]WalletScore, error)

	// LatestScore returns an address's score from the latest run that scored it.
	LatestScore(ctx context.Context, address string) (*WalletScore, error)
}

// WalletScores converts final records into persisted rows. Only the given
// feature columns are kept.
func WalletScores(runID string, finals []scoring.Final, columns []features.Feature, scoredAt time.Time) []WalletScore {
	out := make([]WalletScore, len(finals))
	for i, f := range finals {
		feats := make(map[string]float64, len(columns))
		for _, c := range columns {
			feats[c.String()] = f.Values[c]
		}
		boosts := f.Boosts
		if boosts == nil {
			boosts = []string{}
		}
		out[i] = WalletScore{
			RunID:                 runID,
			Address:               f.WalletID,
			Features:              feats,
			BaseRiskScore:         f.BaseRiskScore,
			Contributions:         f.Contributions,
			Boosts:                boosts,
			IsAnomaly:             f.IsAnomaly,
			AnomalyScore:          f.AnomalyScore,
			Cluster:               f.Cluster,
			ClusterRiskAdjustment: f.ClusterRiskAdjustment,
			FinalRiskScore:        f.FinalRiskScore,
			RiskBand:              string(f.Band),
			ScoredAt:              scoredAt,
		}
	}
	return out
}

// Summarize fills the wallet-derived aggregates of run.
func Summarize(run *Run, wallets []WalletScore) {
	run.Wallets = len(wallets)
	run.Anomalies = 0
	run.BandCounts = map[string]int{
		string(scoring.BandLow):      0,
		string(scoring.BandMedium):   0,
		string(scoring.BandHigh):     0,
		string(scoring.BandCritical): 0,
	}
	total := 0.0
	for _, w := range wallets {
		if w.IsAnomaly {
			run.Anomalies++
		}
		run.BandCounts[w.RiskBand]++
		total += w.FinalRiskScore
	}
	run.MeanFinalScore = 0
	if len(wallets) > 0 {
		run.MeanFinalScore = total / float64(len(wallets))
	}
}

// SortByRisk orders wallets by final score descending, then address.
func SortByRisk(wallets []WalletScore) {
	sort.SliceStable(wallets, func(i, j int) bool {
		if wallets[i].FinalRiskScore != wallets[j].FinalRiskScore {
			return wallets[i].FinalRiskScore > wallets[j].FinalRiskScore
		}
		return wallets[i].Address < wallets[j].Address
	})
}

// ClampLimit applies the default and maximum listing limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
