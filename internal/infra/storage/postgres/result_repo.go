package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/siteline/internal/batch"
)

// ResultRecord is one persisted per-item batch outcome.
type ResultRecord struct {
	BatchID   string         `db:"batch_id"`
	CoordKey  string         `db:"coord_key"`
	Kind      string         `db:"kind"`
	Success   bool           `db:"success"`
	CacheHit  bool           `db:"cache_hit"`
	Error     sql.NullString `db:"error"`
	ElapsedMs int64          `db:"elapsed_ms"`
	CreatedAt time.Time      `db:"created_at"`
}

// ResultRepo persists enrichment batch outcomes.
type ResultRepo struct {
	db *DB
}

// NewResultRepo creates a result repository.
func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// SaveResults implements batch.AuditSink over SaveBatch, so a scheduler
// constructed with batch.WithAudit persists every invocation's outcomes.
func (r *ResultRepo) SaveResults(ctx context.Context, records []batch.AuditRecord) error {
	return r.SaveBatch(ctx, toResultRecords(records))
}

func toResultRecords(records []batch.AuditRecord) []ResultRecord {
	out := make([]ResultRecord, len(records))
	for i, rec := range records {
		out[i] = ResultRecord{
			BatchID:   rec.BatchID,
			CoordKey:  rec.CoordKey,
			Kind:      rec.Kind,
			Success:   rec.Success,
			CacheHit:  rec.CacheHit,
			ElapsedMs: rec.ElapsedMs,
		}
		if rec.Error != "" {
			out[i].Error = sql.NullString{String: rec.Error, Valid: true}
		}
	}
	return out
}

// SaveBatch writes all records of one scheduler invocation in a single
// transaction.
func (r *ResultRepo) SaveBatch(ctx context.Context, records []ResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO enrichment_results
			(batch_id, coord_key, kind, success, cache_hit, error, elapsed_ms)
		VALUES
			(:batch_id, :coord_key, :kind, :success, :cache_hit, :error, :elapsed_ms)`
	for _, rec := range records {
		if _, err := tx.NamedExecContext(ctx, q, rec); err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

// CountByOutcome returns succeeded/failed counts since the given time.
func (r *ResultRepo) CountByOutcome(ctx context.Context, since time.Time) (succeeded, failed int, err error) {
	const q = `
		SELECT
			COUNT(*) FILTER (WHERE success)     AS succeeded,
			COUNT(*) FILTER (WHERE NOT success) AS failed
		FROM enrichment_results
		WHERE created_at >= $1`
	row := r.db.QueryRowxContext(ctx, q, since)
	if err := row.Scan(&succeeded, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count results: %w", err)
	}
	return succeeded, failed, nil
}
