package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"jobmate/jobfeed-service/internal/model"
)

// The table only ever holds one row: the latest artifact.
const snapshotSchema = `
CREATE TABLE IF NOT EXISTS job_results_snapshot (
    id           SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    run_id       TEXT        NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL,
    record_count INTEGER     NOT NULL,
    records      JSONB       NOT NULL
)`

// Querier is the subset of *pgxpool.Pool the snapshot needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSnapshot mirrors the latest artifact into PostgreSQL so it
// survives a restart.
type PostgresSnapshot struct {
	db Querier
}

// NewPostgresSnapshot returns a snapshot backed by db.
func NewPostgresSnapshot(db Querier) *PostgresSnapshot {
	return &PostgresSnapshot{db: db}
}

// Name identifies the sink in logs.
func (p *PostgresSnapshot) Name() string { return "postgres" }

// EnsureSchema creates the snapshot table if needed.
func (p *PostgresSnapshot) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

// Write implements orchestrator.Sink. The previous row is replaced in a
// single statement.
func (p *PostgresSnapshot) Write(ctx context.Context, a *model.Artifact) error {
	records, err := json.Marshal(a.Records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	_, err = p.db.Exec(ctx,
		`INSERT INTO job_results_snapshot (id, run_id, generated_at, record_count, records)
		 VALUES (1, $1, $2, $3, $4::jsonb)
		 ON CONFLICT (id) DO UPDATE
		 SET run_id       = EXCLUDED.run_id,
		     generated_at = EXCLUDED.generated_at,
		     record_count = EXCLUDED.record_count,
		     records      = EXCLUDED.records`,
		a.RunID, a.GeneratedAt, a.Count, string(records),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Load returns the persisted artifact, or ErrNoArtifact when the table is empty.
func (p *PostgresSnapshot) Load(ctx context.Context) (*model.Artifact, error) {
	var (
		a       model.Artifact
		records []byte
		genAt   time.Time
	)
	err := p.db.QueryRow(ctx,
		`SELECT run_id, generated_at, record_count, records
		 FROM job_results_snapshot
		 WHERE id = 1`,
	).Scan(&a.RunID, &genAt, &a.Count, &records)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoArtifact
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if err := json.Unmarshal(records, &a.Records); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	if a.Records == nil {
		a.Records = []model.OutputRecord{}
	}
	a.GeneratedAt = genAt
	return &a, nil
}
