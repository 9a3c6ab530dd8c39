package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/assetkart/iam/internal/jobs"
)

// AuditRetentionJob prunes audit log rows older than the retention window.
type AuditRetentionJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	defWait time.Duration
}

// NewAuditRetentionJob constructs the job. defaultRetention applies when a
// task carries no payload.
func NewAuditRetentionJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics, defaultRetention time.Duration) *AuditRetentionJob {
	return &AuditRetentionJob{Pool: pool, Logger: logger, Metrics: metrics, defWait: defaultRetention}
}

// Handle runs a single sweep.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return nil
	}
	tracker := j.metrics().Track(TaskAuditRetention)
	retention := j.defWait
	if len(t.Payload()) > 0 {
		var payload AuditRetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if payload.Retention > 0 {
			retention = payload.Retention
		}
	}
	if retention <= 0 {
		return tracker.End(nil)
	}
	cutoff := time.Now().UTC().Add(-retention)
	tag, err := j.Pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	if j.Logger != nil {
		j.Logger.Info("audit retention sweep",
			slog.Time("cutoff", cutoff),
			slog.Int64("deleted", tag.RowsAffected()),
		)
	}
	return tracker.End(nil)
}

func (j *AuditRetentionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
