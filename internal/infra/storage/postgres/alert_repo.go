package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/siteline/internal/perf"
)

// AlertRecord is one persisted performance alert.
type AlertRecord struct {
	Severity  string    `db:"severity"`
	Message   string    `db:"message"`
	Metric    string    `db:"metric"`
	Value     float64   `db:"value"`
	Threshold float64   `db:"threshold"`
	RaisedAt  time.Time `db:"raised_at"`
}

// AlertRepo persists performance alerts for offline audit.
type AlertRepo struct {
	db *DB
}

// NewAlertRepo creates an alert repository.
func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// Alert converts the persisted row back to the tracker's alert type.
func (rec AlertRecord) Alert() perf.Alert {
	return perf.Alert{
		Severity:  perf.Severity(rec.Severity),
		Message:   rec.Message,
		Metric:    rec.Metric,
		Value:     rec.Value,
		Threshold: rec.Threshold,
		At:        rec.RaisedAt,
	}
}

func newAlertRecord(a perf.Alert) AlertRecord {
	return AlertRecord{
		Severity:  string(a.Severity),
		Message:   a.Message,
		Metric:    a.Metric,
		Value:     a.Value,
		Threshold: a.Threshold,
		RaisedAt:  a.At,
	}
}

// Save persists a single alert.
func (r *AlertRepo) Save(ctx context.Context, a perf.Alert) error {
	const q = `
		INSERT INTO performance_alerts (severity, message, metric, value, threshold, raised_at)
		VALUES (:severity, :message, :metric, :value, :threshold, :raised_at)`
	if _, err := r.db.NamedExecContext(ctx, q, newAlertRecord(a)); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Recent returns the most recent alerts, newest first.
func (r *AlertRepo) Recent(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT severity, message, metric, value, threshold, raised_at
		FROM performance_alerts
		ORDER BY raised_at DESC
		LIMIT $1`
	var out []AlertRecord
	if err := r.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, fmt.Errorf("failed to select alerts: %w", err)
	}
	return out, nil
}

// RecentAlerts returns the most recent persisted alerts as tracker values,
// for the operator surface.
func (r *AlertRepo) RecentAlerts(ctx context.Context, limit int) ([]perf.Alert, error) {
	recs, err := r.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]perf.Alert, len(recs))
	for i, rec := range recs {
		out[i] = rec.Alert()
	}
	return out, nil
}
