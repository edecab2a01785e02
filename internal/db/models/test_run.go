package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Test run field names
const (
	// TestRunTotalTestsField is the database field name for the total test counter
	TestRunTotalTestsField = "total_tests"
	// TestRunPassedTestsField is the database field name for the passed test counter
	TestRunPassedTestsField = "passed_tests"
	// TestRunFailedTestsField is the database field name for the failed test counter
	TestRunFailedTestsField = "failed_tests"
	// TestRunCoverageField is the database field name for the coverage ratio
	TestRunCoverageField = "coverage"
)

// TestRun is one execution of a test suite
type TestRun struct {
	gorm.Model
	JobRecord
	ProjectID   uint      `json:"project_id" gorm:"not null;index"`
	TestSuiteID uint      `json:"test_suite_id" gorm:"not null;index"`
	TriggeredBy string    `json:"triggered_by" gorm:"not null"`
	Environment string    `json:"environment" gorm:"not null"`
	Branch      string    `json:"branch"`
	TotalTests  int       `json:"total_tests"`
	PassedTests int       `json:"passed_tests"`
	FailedTests int       `json:"failed_tests"`
	Coverage    *float64  `json:"coverage,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

var _ Job = (*TestRun)(nil)

// JobKind implements Job
func (r *TestRun) JobKind() JobKind { return JobKindTestRun }

// JobID implements Job
func (r *TestRun) JobID() uint { return r.ID }

// Record implements Job
func (r *TestRun) Record() *JobRecord { return &r.JobRecord }

// Validate ensures that the test run data is valid
func (r *TestRun) Validate() error {
	if r.TestSuiteID == 0 {
		return fmt.Errorf("test run test_suite_id cannot be empty")
	}
	if r.Environment == "" {
		return fmt.Errorf("test run environment cannot be empty")
	}
	if r.TriggeredBy == "" {
		return fmt.Errorf("test run triggered_by cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new test run
func (r *TestRun) BeforeCreate(_ *gorm.DB) error {
	if r.Status == "" {
		r.Status = JobStatusPending
	}
	return r.Validate()
}
