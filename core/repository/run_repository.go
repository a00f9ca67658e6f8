package repository

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"train-orchestrator/core/models"
)

// PostgresRunStore keeps run records as JSONB rows keyed by run ID.
type PostgresRunStore struct {
	db *DB
}

// NewPostgresRunStore creates the backing table if it does not exist yet.
func NewPostgresRunStore(db *DB) (*PostgresRunStore, error) {
	s := &PostgresRunStore{db: db}
	if err := s.createTableIfNotExists(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresRunStore) createTableIfNotExists() error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := s.db.Exec(query)
	return errors.Wrap(err, "creating runs table")
}

// Upsert implements RunStateStore
func (s *PostgresRunStore) Upsert(ctx context.Context, record models.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encoding run record")
	}

	query := `
		INSERT INTO runs (run_id, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (run_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query, record.RunID, data)
	return errors.Wrapf(err, "upserting run %s", record.RunID)
}

// LoadAll implements RunStateStore
func (s *PostgresRunStore) LoadAll(ctx context.Context) ([]models.RunRecord, error) {
	query := `SELECT data FROM runs ORDER BY updated_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "loading run records")
	}
	defer rows.Close()

	var records []models.RunRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "scanning run record")
		}
		var record models.RunRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, errors.Wrap(err, "decoding run record")
		}
		records = append(records, record)
	}
	return records, errors.Wrap(rows.Err(), "loading run records")
}
