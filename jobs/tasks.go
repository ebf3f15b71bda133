package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrityScan is the nightly GL debit/credit drift scan.
	TaskGLIntegrityScan = "gl:integrity_scan"
)

// GLIntegrityScanPayload scopes a scan to specific tenants. Empty means all.
type GLIntegrityScanPayload struct {
	CompanyCodes []string `json:"companyCodes,omitempty"`
}

// NewGLIntegrityScanTask constructs the scan task.
func NewGLIntegrityScanTask(payload GLIntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrityScan, data), nil
}
