// Package jobs hosts the background worker. Only read-side cache
// warm-ups run here; consumption itself is synchronous and inline with
// the sale transaction.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// QueueDefault is the queue used for all engine tasks.
const QueueDefault = "default"

// TaskSnapshotWarmup precomputes valuation snapshots into the report cache.
const TaskSnapshotWarmup = "reports:snapshot_warmup"

// SnapshotWarmupPayload carries scheduling metadata.
type SnapshotWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSnapshotWarmupTask constructs an Asynq task for snapshot warm-up.
func NewSnapshotWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SnapshotWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotWarmup, body, asynq.Queue(QueueDefault)), nil
}
