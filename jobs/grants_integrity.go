package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/assetkart/iam/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// GrantsIntegrityJob reports directory drift: capabilities no role grants,
// roles granting nothing, and active principals without a role. Referential
// integrity proper is enforced by the store; this job surfaces the softer
// states an operator should know about.
type GrantsIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGrantsIntegrityJob constructs the job.
func NewGrantsIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *GrantsIntegrityJob {
	return &GrantsIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle runs a single scan.
func (j *GrantsIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return nil
	}
	tracker := j.metrics().Track(TaskGrantsIntegrity)
	var ungrantedCaps, emptyRoles, rolelessPrincipals int64

	const queryUngranted = `
SELECT COUNT(*) FROM capabilities c
WHERE NOT EXISTS (SELECT 1 FROM role_capabilities rc WHERE rc.capability_id = c.id)`
	if err := j.Pool.QueryRow(ctx, queryUngranted).Scan(&ungrantedCaps); err != nil {
		return tracker.End(err)
	}

	const queryEmptyRoles = `
SELECT COUNT(*) FROM roles r
WHERE NOT EXISTS (SELECT 1 FROM role_capabilities rc WHERE rc.role_id = r.id)`
	if err := j.Pool.QueryRow(ctx, queryEmptyRoles).Scan(&emptyRoles); err != nil {
		return tracker.End(err)
	}

	const queryRoleless = `
SELECT COUNT(*) FROM principals p
WHERE p.role_id IS NULL AND p.status = 'active'`
	if err := j.Pool.QueryRow(ctx, queryRoleless).Scan(&rolelessPrincipals); err != nil {
		return tracker.End(err)
	}

	j.metrics().AddDrift("ungranted_capability", ungrantedCaps)
	j.metrics().AddDrift("empty_role", emptyRoles)
	j.metrics().AddDrift("roleless_active_principal", rolelessPrincipals)

	if j.Logger != nil {
		j.Logger.Info("grants integrity scan",
			slog.Int64("ungranted_capabilities", ungrantedCaps),
			slog.Int64("empty_roles", emptyRoles),
			slog.Int64("roleless_active_principals", rolelessPrincipals),
		)
	}
	return tracker.End(nil)
}

func (j *GrantsIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
