package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBackendWarmup pings the barcode backend so it is awake for the next user.
	TaskBackendWarmup = "backend:warmup"
)

// WarmupPayload describes why a warmup was requested.
type WarmupPayload struct {
	Reason string `json:"reason"`
}

// NewWarmupTask constructs an Asynq task for the backend warmup.
func NewWarmupTask(reason string) (*asynq.Task, error) {
	if reason == "" {
		reason = "schedule"
	}
	data, err := json.Marshal(WarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBackendWarmup, data), nil
}
