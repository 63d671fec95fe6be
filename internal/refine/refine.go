// Package refine adds unsupervised signals to base risk scores: an isolation
// forest flags outlying wallets, and k-means clustering yields a per-cluster
// risk adjustment relative to the population.
//
// Both models run on standardized feature matrices and draw randomness only
// from named streams derived from the configured seed, so a given input and
// seed always produce the same flags and clusters.
package refine

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/rng"
	"github.com/mbd888/walletrisk/internal/scoring"
)

// Defaults for Config.
const (
	DefaultContamination = 0.05
	DefaultClusters      = 5
	DefaultTrees         = 100
	DefaultMaxSamples    = 256
	DefaultRestarts      = 10
	DefaultMaxIter       = 300
	DefaultTolerance     = 1e-4
)

// Config holds the refinement hyperparameters.
type Config struct {
	Contamination float64
	Clusters      int
	Trees         int
	MaxSamples    int
	Restarts      int
	MaxIter       int
	Tolerance     float64
	Seed          int64
}

// DefaultConfig returns the standard hyperparameters.
func DefaultConfig() Config {
	return Config{
		Contamination: DefaultContamination,
		Clusters:      DefaultClusters,
		Trees:         DefaultTrees,
		MaxSamples:    DefaultMaxSamples,
		Restarts:      DefaultRestarts,
		MaxIter:       DefaultMaxIter,
		Tolerance:     DefaultTolerance,
		Seed:          rng.DefaultSeed,
	}
}

// Summary describes one refinement pass.
type Summary struct {
	Wallets            int       `json:"wallets"`
	Anomalies          int       `json:"anomalies"`
	Clusters           int       `json:"clusters"`
	ClusterSizes       []int     `json:"clusterSizes"`
	ClusterAdjustments []float64 `json:"clusterAdjustments"`
}

// Refiner runs the anomaly and clustering models.
type Refiner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a refiner. Zero-valued config fields take their defaults.
func New(cfg Config, logger *slog.Logger) *Refiner {
	def := DefaultConfig()
	if cfg.Contamination <= 0 || cfg.Contamination > 0.5 {
		cfg.Contamination = def.Contamination
	}
	if cfg.Clusters <= 0 {
		cfg.Clusters = def.Clusters
	}
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	if cfg.Restarts <= 0 {
		cfg.Restarts = def.Restarts
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = def.MaxIter
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (r *Refiner) Config() Config {
	return r.cfg
}

// Refine flags anomalies and assigns clusters over the given feature columns.
// The input records are copied, never modified.
func (r *Refiner) Refine(scored []scoring.Scored, columns []features.Feature) ([]scoring.Refined, Summary) {
	n := len(scored)
	if n == 0 {
		return nil, Summary{}
	}

	x := Standardize(matrix(scored, columns))
	streams := rng.New(r.cfg.Seed)

	forest := growForest(x, r.cfg.Trees, r.cfg.MaxSamples, streams.Fresh(rng.IsolationForest))
	scores := forest.scores(x)
	anomalies := flagAnomalies(scores, r.cfg.Contamination)

	k := min(r.cfg.Clusters, n)
	labels := kmeans(x, k, r.cfg.Restarts, r.cfg.MaxIter, r.cfg.Tolerance, streams.Fresh(rng.KMeans))

	base := make([]float64, n)
	for i, s := range scored {
		base[i] = s.BaseRiskScore
	}
	adjustments, sizes := clusterAdjustments(base, labels, k)

	out := make([]scoring.Refined, n)
	summary := Summary{Wallets: n, Clusters: k, ClusterSizes: sizes, ClusterAdjustments: adjustments}
	for i, s := range scored {
		out[i] = scoring.Refined{
			Scored:                s,
			IsAnomaly:             anomalies[i],
			AnomalyScore:          scores[i],
			Cluster:               labels[i],
			ClusterRiskAdjustment: adjustments[labels[i]],
		}
		if anomalies[i] {
			summary.Anomalies++
		}
	}

	r.logger.Info("refinement complete",
		"wallets", n,
		"anomalies", summary.Anomalies,
		"clusters", k,
		"seed", r.cfg.Seed,
	)
	return out, summary
}

func matrix(scored []scoring.Scored, columns []features.Feature) [][]float64 {
	x := make([][]float64, len(scored))
	for i, s := range scored {
		row := make([]float64, len(columns))
		for j, f := range columns {
			row[j] = features.Finite(s.Values[f])
		}
		x[i] = row
	}
	return x
}

// constantTolerance is the spread, relative to the column mean, below which a
// column is treated as constant.
const constantTolerance = 1e-12

// Standardize returns a copy of x with every column shifted to zero mean and
// scaled to unit population standard deviation. Constant columns become 0.
func Standardize(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return nil
	}
	cols := len(x[0])
	out := make([][]float64, len(x))
	for i := range out {
		out[i] = make([]float64, cols)
	}

	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std <= constantTolerance*math.Abs(mean) || std == 0 {
			continue
		}
		for i := range x {
			out[i][j] = (x[i][j] - mean) / std
		}
	}
	return out
}

// clusterAdjustments returns mean base score per cluster over the population
// mean, and the cluster sizes. A zero population mean yields 1 everywhere, as
// does an empty cluster.
func clusterAdjustments(base []float64, labels []int, k int) ([]float64, []int) {
	sums := make([]float64, k)
	sizes := make([]int, k)
	total := 0.0
	for i, l := range labels {
		sums[l] += base[i]
		sizes[l]++
		total += base[i]
	}

	adj := make([]float64, k)
	popMean := total / float64(len(base))
	for c := range adj {
		adj[c] = 1
		if popMean != 0 && sizes[c] > 0 {
			adj[c] = sums[c] / float64(sizes[c]) / popMean
		}
	}
	return adj, sizes
}
