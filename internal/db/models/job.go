package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Field names shared by job tables
const (
	// JobStatusField is the database field name for the job status
	JobStatusField = "status"
	// JobCreatedAtField is the database field name for the job creation timestamp
	JobCreatedAtField = "created_at"
	// JobFinishedAtField is the database field name for the job finish timestamp
	JobFinishedAtField = "finished_at"
)

// JobKind identifies which kind of job a record is
type JobKind string

const (
	// JobKindTestRun is a test suite execution
	JobKindTestRun JobKind = "test_run"
	// JobKindDeployment is a deployment to an environment
	JobKindDeployment JobKind = "deployment"
)

// String returns the string representation of the job kind
func (k JobKind) String() string {
	return string(k)
}

// Noun returns the human readable name of the job kind
func (k JobKind) Noun() string {
	return strings.ReplaceAll(string(k), "_", " ")
}

// JobStatus represents the current state of a job in the system
type JobStatus string

// Job status constants. Not every status is reachable for every job kind.
const (
	// JobStatusPending indicates the job has been accepted and waits for execution
	JobStatusPending JobStatus = "PENDING"
	// JobStatusRunning indicates a test run is executing
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusInProgress indicates a deployment is executing
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	// JobStatusPassed indicates a test run finished successfully
	JobStatusPassed JobStatus = "PASSED"
	// JobStatusDeployed indicates a deployment finished successfully
	JobStatusDeployed JobStatus = "DEPLOYED"
	// JobStatusFailed indicates the job failed
	JobStatusFailed JobStatus = "FAILED"
	// JobStatusCancelled indicates the job was cancelled before it finished
	JobStatusCancelled JobStatus = "CANCELLED"
	// JobStatusRolledBack indicates a deployment was superseded by a rollback
	JobStatusRolledBack JobStatus = "ROLLED_BACK"
)

var allJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusRunning,
	JobStatusInProgress,
	JobStatusPassed,
	JobStatusDeployed,
	JobStatusFailed,
	JobStatusCancelled,
	JobStatusRolledBack,
}

// String returns the string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

// ParseJobStatus converts a string representation of a job status to JobStatus type.
// Matching is case insensitive.
func ParseJobStatus(str string) (JobStatus, error) {
	for _, status := range allJobStatuses {
		if strings.EqualFold(string(status), str) {
			return status, nil
		}
	}
	return "", fmt.Errorf("invalid job status: %s", str)
}

// UnmarshalJSON implements json.Unmarshaler for JobStatus
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseJobStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// JobRecord holds the lifecycle fields shared by every job kind.
// Status is only ever written through the engine's state machine.
type JobRecord struct {
	Status        JobStatus         `json:"status" gorm:"not null;index"`
	ExecutionID   string            `json:"execution_id,omitempty" gorm:"type:varchar(36);index"`
	Configuration datatypes.JSONMap `json:"configuration,omitempty" gorm:"type:json"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty" gorm:"index"`
	Logs          string            `json:"logs,omitempty" gorm:"type:text"`
	Error         string            `json:"error,omitempty" gorm:"type:text"`
	WebhookSent   bool              `json:"webhook_sent" gorm:"not null;default:false"`
}

// Job is implemented by every persisted job kind
type Job interface {
	JobKind() JobKind
	JobID() uint
	Record() *JobRecord
}

// ConfigurationCopy returns a copy of the configuration payload with numbers
// decoded as float64, whether the record came from a request or the database
func (r *JobRecord) ConfigurationCopy() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Configuration))
	for k, v := range r.Configuration {
		out[k] = normalizeValue(v)
	}
	return out
}
