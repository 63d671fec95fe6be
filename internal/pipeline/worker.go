package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/walletrisk/internal/report"
	"github.com/mbd888/walletrisk/internal/scoring"
	"github.com/mbd888/walletrisk/internal/syncutil"
)

// ErrRunInProgress is returned by Trigger while another run is executing.
var ErrRunInProgress = errors.New("pipeline: run in progress")

// Publisher receives notifications about finished runs. Both methods may
// block until the event is queued or ctx is done.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, run *report.Run) error
	PublishHighRiskWallet(ctx context.Context, score report.WalletScore) error
}

// DefaultPublishTimeout bounds how long one run's events may wait on a
// slow publisher.
const DefaultPublishTimeout = 5 * time.Second

// Worker periodically re-scores the configured input and persists each run.
type Worker struct {
	runner     *Runner
	store      report.Store
	publisher  Publisher
	publishTTL time.Duration
	inputPath  string
	outputPath string
	interval   time.Duration
	logger     *slog.Logger
	stop       chan struct{}

	mu syncutil.ContextMutex // one run at a time
}

// NewWorker creates a re-scoring worker.
// interval is typically 1 hour in production.
func NewWorker(runner *Runner, store report.Store, inputPath string, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		runner:     runner,
		store:      store,
		publishTTL: DefaultPublishTimeout,
		inputPath:  inputPath,
		interval:   interval,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// WithPublisher sets the event sink for completed runs.
func (w *Worker) WithPublisher(p Publisher) *Worker {
	w.publisher = p
	return w
}

// WithOutput makes every successful run also write the CSV table to path.
func (w *Worker) WithOutput(path string) *Worker {
	w.outputPath = path
	return w
}

// Start begins the re-score loop. Call in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on start
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

func (w *Worker) tick(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Warn("re-score failed", "path", w.inputPath, "error", err)
	}
}

// RunOnce scores the input, saves the run and publishes events. Runs never
// overlap; a caller waiting for the previous run gives up when ctx is done.
func (w *Worker) RunOnce(ctx context.Context) (*Result, error) {
	unlock, err := w.mu.LockContext(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return w.run(ctx)
}

// Trigger runs immediately unless a run is already executing, in which case
// it returns ErrRunInProgress.
func (w *Worker) Trigger(ctx context.Context) (*Result, error) {
	unlock, ok := w.mu.TryLock()
	if !ok {
		return nil, ErrRunInProgress
	}
	defer unlock()
	return w.run(ctx)
}

func (w *Worker) run(ctx context.Context) (*Result, error) {
	res, err := w.runner.RunFile(ctx, w.inputPath)
	if err != nil {
		return nil, err
	}

	if err := w.store.SaveRun(ctx, res.Run, res.Wallets); err != nil {
		return res, fmt.Errorf("save run %s: %w", res.Run.ID, err)
	}

	if res.Run.Status != report.StatusOK {
		return res, nil
	}

	if w.outputPath != "" {
		if err := report.WriteCSVFile(w.outputPath, res.Finals, res.Columns); err != nil {
			return res, fmt.Errorf("write output: %w", err)
		}
	}

	if w.publisher != nil {
		w.publish(ctx, res)
	}
	return res, nil
}

// publish announces the run and its critical wallets. Events still pending
// when the publish window closes are dropped with a warning.
func (w *Worker) publish(ctx context.Context, res *Result) {
	ctx, cancel := context.WithTimeout(ctx, w.publishTTL)
	defer cancel()

	if err := w.publisher.PublishRunCompleted(ctx, res.Run); err != nil {
		w.logger.Warn("run event not published", "run_id", res.Run.ID, "error", err)
		return
	}
	sent := 0
	for _, ws := range res.Wallets {
		if ws.FinalRiskScore < scoring.CriticalThreshold {
			continue
		}
		if err := w.publisher.PublishHighRiskWallet(ctx, ws); err != nil {
			w.logger.Warn("high-risk wallet events not published",
				"run_id", res.Run.ID, "published", sent, "error", err)
			return
		}
		sent++
	}
}
