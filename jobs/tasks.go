package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantsIntegrity scans the directory for drift worth flagging.
	TaskGrantsIntegrity = "authz:grants_integrity"
	// TaskAuditRetention prunes audit logs past the retention window.
	TaskAuditRetention = "audit:retention"
)

// AuditRetentionPayload carries the retention window for a sweep.
type AuditRetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewGrantsIntegrityTask constructs the integrity scan task.
func NewGrantsIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGrantsIntegrity, nil)
}

// NewAuditRetentionTask constructs an audit retention sweep task.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}
