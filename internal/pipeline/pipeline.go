// Package pipeline runs the scoring stages in order: load, features, base
// score, refine, combine. A run either finishes all stages or reports why
// it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/walletrisk/internal/config"
	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/logging"
	"github.com/mbd888/walletrisk/internal/metrics"
	"github.com/mbd888/walletrisk/internal/refine"
	"github.com/mbd888/walletrisk/internal/report"
	"github.com/mbd888/walletrisk/internal/scoring"
	"github.com/mbd888/walletrisk/internal/traces"
	"github.com/mbd888/walletrisk/internal/txdata"
)

// Stage names used for spans and the stage duration histogram.
const (
	StageLoad     = "load"
	StageFeatures = "features"
	StageScore    = "score"
	StageRefine   = "refine"
	StageCombine  = "combine"
)

// Result is the outcome of one run.
type Result struct {
	Run     *report.Run
	Columns []features.Feature
	Finals  []scoring.Final
	Wallets []report.WalletScore
}

// Runner wires the stages together. It is safe for sequential reuse.
type Runner struct {
	loader  *txdata.Loader
	engine  *features.Engine
	scorer  *scoring.Scorer
	refiner *refine.Refiner
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*options)

type options struct {
	refine  refine.Config
	scorer  *scoring.Scorer
	workers int
	now     func() time.Time
}

// WithRefineConfig overrides the ML refiner parameters.
func WithRefineConfig(cfg refine.Config) Option {
	return func(o *options) { o.refine = cfg }
}

// WithScorer replaces the default base scorer.
func WithScorer(s *scoring.Scorer) Option {
	return func(o *options) { o.scorer = s }
}

// WithFeatureWorkers bounds feature extraction parallelism.
func WithFeatureWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithClock sets the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// ModelOptions turns the configured model settings into runner options.
// Settings left at zero keep the model defaults.
func ModelOptions(cfg *config.Config) ([]Option, error) {
	rc := refine.DefaultConfig()
	rc.Seed = cfg.RiskSeed
	if cfg.RiskContamination > 0 {
		rc.Contamination = cfg.RiskContamination
	}
	if cfg.RiskClusters > 0 {
		rc.Clusters = cfg.RiskClusters
	}
	if cfg.RiskTrees > 0 {
		rc.Trees = cfg.RiskTrees
	}
	opts := []Option{WithRefineConfig(rc), WithFeatureWorkers(cfg.FeatureWorkers)}

	if len(cfg.RiskWeights) > 0 {
		comps, err := scoring.DefaultComponents().Reweight(cfg.RiskWeights)
		if err != nil {
			return nil, fmt.Errorf("component weights: %w", err)
		}
		scorer, err := scoring.NewCustomScorer(comps, scoring.DefaultBoosts())
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithScorer(scorer))
	}
	return opts, nil
}

// NewRunner creates a runner with the default model.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{refine: refine.DefaultConfig(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.scorer == nil {
		o.scorer = scoring.NewScorer()
	}

	var engineOpts []features.Option
	if o.workers > 0 {
		engineOpts = append(engineOpts, features.WithWorkers(o.workers))
	}

	return &Runner{
		loader:  txdata.NewLoader(logger),
		engine:  features.NewEngine(logger, engineOpts...),
		scorer:  o.scorer,
		refiner: refine.New(o.refine, logger),
		logger:  logger,
		now:     o.now,
	}
}

// Seed returns the seed used by the ML stages.
func (r *Runner) Seed() int64 {
	return r.refiner.Config().Seed
}

// Model describes the active scoring model.
type Model struct {
	Seed          int64              `json:"seed"`
	Contamination float64            `json:"contamination"`
	Clusters      int                `json:"clusters"`
	Trees         int                `json:"trees"`
	Weights       map[string]float64 `json:"weights"`
}

// Model returns the runner's effective model settings.
func (r *Runner) Model() Model {
	rc := r.refiner.Config()
	return Model{
		Seed:          rc.Seed,
		Contamination: rc.Contamination,
		Clusters:      rc.Clusters,
		Trees:         rc.Trees,
		Weights:       r.scorer.Weights(),
	}
}

// RunFile scores the transactions in path. A missing file is not an error:
// the result carries StatusNoInput and no wallets.
func (r *Runner) RunFile(ctx context.Context, path string) (*Result, error) {
	run := r.newRun(path)
	ctx = logging.WithLogger(logging.WithRunID(ctx, run.ID), r.logger)
	ctx, span := traces.StartSpan(ctx, "pipeline.run", traces.RunID(run.ID), traces.InputPath(path))
	defer span.End()

	var tx *txdata.Table
	var stats txdata.Stats
	err := r.stage(ctx, StageLoad, func(ctx context.Context) error {
		var err error
		tx, stats, err = r.loader.LoadFile(ctx, path)
		return err
	})
	if errors.Is(err, txdata.ErrSourceNotFound) {
		return r.finishEmpty(ctx, run), nil
	}
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	return r.score(ctx, run, tx, stats)
}

// RunTable scores an already loaded transaction table.
func (r *Runner) RunTable(ctx context.Context, tx *txdata.Table, stats txdata.Stats) (*Result, error) {
	run := r.newRun("")
	ctx = logging.WithLogger(logging.WithRunID(ctx, run.ID), r.logger)
	ctx, span := traces.StartSpan(ctx, "pipeline.run", traces.RunID(run.ID))
	defer span.End()

	return r.score(ctx, run, tx, stats)
}

func (r *Runner) newRun(path string) *report.Run {
	return &report.Run{
		ID:        uuid.NewString(),
		Status:    report.StatusOK,
		InputPath: path,
		Seed:      r.Seed(),
		StartedAt: r.now().UTC(),
	}
}

func (r *Runner) finishEmpty(ctx context.Context, run *report.Run) *Result {
	run.Status = report.StatusNoInput
	run.CompletedAt = r.now().UTC()
	report.Summarize(run, nil)
	metrics.PipelineRunsTotal.WithLabelValues(report.StatusNoInput).Inc()
	logging.L(ctx).Warn("scoring run halted, no input", "path", run.InputPath)
	return &Result{Run: run}
}

func (r *Runner) score(ctx context.Context, run *report.Run, tx *txdata.Table, stats txdata.Stats) (*Result, error) {
	run.RowsTotal = stats.Rows
	run.RowsKept = stats.Kept
	run.RowsDropped = stats.Dropped
	metrics.RecordsDroppedTotal.Add(float64(stats.Dropped))

	var table *features.Table
	err := r.stage(ctx, StageFeatures, func(ctx context.Context) error {
		var err error
		table, err = r.engine.Build(ctx, tx)
		return err
	})
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build features: %w", err)
	}

	var scored []scoring.Scored
	r.timed(ctx, StageScore, func() {
		scored = r.scorer.Score(table)
	})

	var refined []scoring.Refined
	var summary refine.Summary
	r.timed(ctx, StageRefine, func() {
		refined, summary = r.refiner.Refine(scored, table.Columns)
	})

	var finals []scoring.Final
	r.timed(ctx, StageCombine, func() {
		finals = scoring.Combine(refined)
	})

	run.CompletedAt = r.now().UTC()
	run.Clusters = summary.Clusters
	run.ClusterSizes = summary.ClusterSizes
	run.ClusterAdjustments = summary.ClusterAdjustments
	wallets := report.WalletScores(run.ID, finals, table.Columns, run.CompletedAt)
	report.Summarize(run, wallets)

	metrics.PipelineRunsTotal.WithLabelValues(report.StatusOK).Inc()
	metrics.WalletsScoredTotal.Add(float64(len(finals)))
	metrics.AnomaliesFlaggedTotal.Add(float64(run.Anomalies))
	metrics.LastRunWallets.Set(float64(len(finals)))
	for _, f := range finals {
		metrics.FinalScore.Observe(f.FinalRiskScore)
	}

	logging.L(ctx).Info("scoring run completed",
		"wallets", run.Wallets,
		"anomalies", run.Anomalies,
		"clusters", run.Clusters,
		"mean_final_score", run.MeanFinalScore,
		"duration", run.CompletedAt.Sub(run.StartedAt),
	)

	return &Result{
		Run:     run,
		Columns: table.Columns,
		Finals:  finals,
		Wallets: wallets,
	}, nil
}

// timed runs a stage that cannot fail inside a span and records its
// duration.
func (r *Runner) timed(ctx context.Context, name string, fn func()) {
	_, span := traces.StartSpan(ctx, "pipeline."+name, traces.Stage(name))
	defer span.End()
	defer metrics.ObserveStage(name, time.Now())
	fn()
}

// stage runs fn inside a span and records its duration.
func (r *Runner) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := traces.StartSpan(ctx, "pipeline."+name, traces.Stage(name))
	defer span.End()
	defer metrics.ObserveStage(name, time.Now())

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
