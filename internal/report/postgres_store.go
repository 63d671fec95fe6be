package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed run store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const runColumns = `id, status, input_path, seed, rows_total, rows_kept, rows_dropped,
	wallets, anomalies, clusters, cluster_sizes, cluster_adjustments, band_counts,
	mean_final_score, started_at, completed_at`

const walletColumns = `run_id, address, features, base_risk_score, contributions, boosts,
	is_anomaly, anomaly_score, cluster, cluster_risk_adjustment, final_risk_score,
	risk_band, scored_at`

// clusterArrays converts the run's cluster summary into array parameters.
// Both are non-nil so runs that never reached clustering store '{}' rather
// than NULL in the NOT NULL columns.
func clusterArrays(run *Run) (pq.Int64Array, pq.Float64Array) {
	sizes := make(pq.Int64Array, 0, len(run.ClusterSizes))
	for _, s := range run.ClusterSizes {
		sizes = append(sizes, int64(s))
	}
	adjustments := make(pq.Float64Array, 0, len(run.ClusterAdjustments))
	adjustments = append(adjustments, run.ClusterAdjustments...)
	return sizes, adjustments
}

func (p *PostgresStore) SaveRun(ctx context.Context, run *Run, wallets []WalletScore) error {
	bands, err := json.Marshal(run.BandCounts)
	if err != nil {
		return fmt.Errorf("encode band counts: %w", err)
	}
	sizes, adjustments := clusterArrays(run)

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scoring_runs (`+runColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		run.ID, run.Status, run.InputPath, run.Seed,
		run.RowsTotal, run.RowsKept, run.RowsDropped,
		run.Wallets, run.Anomalies, run.Clusters,
		sizes, adjustments, bands,
		run.MeanFinalScore, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(wallets) > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("wallet_scores",
			"run_id", "address", "features", "base_risk_score", "contributions", "boosts",
			"is_anomaly", "anomaly_score", "cluster", "cluster_risk_adjustment",
			"final_risk_score", "risk_band", "scored_at"))
		if err != nil {
			return fmt.Errorf("prepare wallet copy: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, w := range wallets {
			feats, err := json.Marshal(w.Features)
			if err != nil {
				return fmt.Errorf("encode features for %s: %w", w.Address, err)
			}
			contrib, err := json.Marshal(w.Contributions)
			if err != nil {
				return fmt.Errorf("encode contributions for %s: %w", w.Address, err)
			}
			if _, err := stmt.ExecContext(ctx,
				run.ID, strings.ToLower(w.Address), string(feats), w.BaseRiskScore, string(contrib),
				pq.StringArray(w.Boosts), w.IsAnomaly, w.AnomalyScore, w.Cluster,
				w.ClusterRiskAdjustment, w.FinalRiskScore, w.RiskBand, w.ScoredAt,
			); err != nil {
				return fmt.Errorf("copy wallet %s: %w", w.Address, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flush wallet copy: %w", err)
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) LatestRun(ctx context.Context) (*Run, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM scoring_runs
		ORDER BY completed_at DESC, created_at DESC
		LIMIT 1`)
	return scanRun(row)
}

func (p *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM scoring_runs
		WHERE id = $1`, id)
	return scanRun(row)
}

func (p *PostgresStore) ListWallets(ctx context.Context, runID string, limit int) ([]WalletScore, error) {
	if _, err := p.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallet_scores
		WHERE run_id = $1
		ORDER BY final_risk_score DESC, address ASC
		LIMIT $2`, runID, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []WalletScore
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (p *PostgresStore) LatestScore(ctx context.Context, address string) (*WalletScore, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT w.run_id, w.address, w.features, w.base_risk_score, w.contributions, w.boosts,
			   w.is_anomaly, w.anomaly_score, w.cluster, w.cluster_risk_adjustment,
			   w.final_risk_score, w.risk_band, w.scored_at
		FROM wallet_scores w
		JOIN scoring_runs r ON r.id = w.run_id
		WHERE w.address = $1
		ORDER BY r.completed_at DESC, r.created_at DESC
		LIMIT 1`, strings.ToLower(strings.TrimSpace(address)))
	return scanWallet(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	r := &Run{}
	var sizes pq.Int64Array
	var adjustments pq.Float64Array
	var bands []byte
	err := row.Scan(&r.ID, &r.Status, &r.InputPath, &r.Seed,
		&r.RowsTotal, &r.RowsKept, &r.RowsDropped,
		&r.Wallets, &r.Anomalies, &r.Clusters,
		&sizes, &adjustments, &bands,
		&r.MeanFinalScore, &r.StartedAt, &r.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, s := range sizes {
		r.ClusterSizes = append(r.ClusterSizes, int(s))
	}
	r.ClusterAdjustments = adjustments
	if err := json.Unmarshal(bands, &r.BandCounts); err != nil {
		return nil, fmt.Errorf("decode band counts: %w", err)
	}
	return r, nil
}

func scanWallet(row scanner) (*WalletScore, error) {
	w := &WalletScore{}
	var feats, contrib []byte
	var boosts pq.StringArray
	err := row.Scan(&w.RunID, &w.Address, &feats, &w.BaseRiskScore, &contrib, &boosts,
		&w.IsAnomaly, &w.AnomalyScore, &w.Cluster, &w.ClusterRiskAdjustment,
		&w.FinalRiskScore, &w.RiskBand, &w.ScoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(feats, &w.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal(contrib, &w.Contributions); err != nil {
		return nil, fmt.Errorf("decode contributions: %w", err)
	}
	w.Boosts = []string(boosts)
	if w.Boosts == nil {
		w.Boosts = []string{}
	}
	return w, nil
}
