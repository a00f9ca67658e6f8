package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"train-orchestrator/core/models"
)

// PostgresMetricsSink appends per-epoch metrics to a plain insert-only
// table. Rows for the same run and epoch may repeat; nothing deduplicates.
type PostgresMetricsSink struct {
	db *DB
}

// NewPostgresMetricsSink creates the backing table if it does not exist yet.
func NewPostgresMetricsSink(db *DB) (*PostgresMetricsSink, error) {
	s := &PostgresMetricsSink{db: db}
	if err := s.createTableIfNotExists(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresMetricsSink) createTableIfNotExists() error {
	query := `
		CREATE TABLE IF NOT EXISTS run_metrics (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			epoch INT NOT NULL,
			metrics JSONB NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := s.db.Exec(query)
	return errors.Wrap(err, "creating run_metrics table")
}

// Append implements MetricsSink
func (s *PostgresMetricsSink) Append(ctx context.Context, record models.MetricRecord) error {
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return errors.Wrap(err, "encoding metrics")
	}
	recordedAt := record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	query := `
		INSERT INTO run_metrics (run_id, epoch, metrics, recorded_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = s.db.ExecContext(ctx, query, record.RunID, record.Epoch, metrics, recordedAt)
	return errors.Wrapf(err, "appending metrics for run %s epoch %d", record.RunID, record.Epoch)
}
