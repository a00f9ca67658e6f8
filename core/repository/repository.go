// Package repository persists run records and per-epoch metrics. Two
// backends exist for each store: Postgres for deployments with a database
// and local files for single-node setups. The manager only sees the
// interfaces.
package repository

import (
	"context"

	"train-orchestrator/core/models"
)

// RunStateStore is durable storage for run records. Upsert writes the
// whole record under its run ID, replacing any previous version. LoadAll
// returns every stored record and feeds startup recovery.
type RunStateStore interface {
	Upsert(ctx context.Context, record models.RunRecord) error
	LoadAll(ctx context.Context) ([]models.RunRecord, error)
}

// MetricsSink is append-only storage for per-epoch training metrics.
// Records are never updated or deleted.
type MetricsSink interface {
	Append(ctx context.Context, record models.MetricRecord) error
}
