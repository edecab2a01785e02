// Package webhook notifies projects about finished jobs
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/internal/events"
	"github.com/celestiaorg/shipyard/internal/logger"
	"github.com/celestiaorg/shipyard/internal/metrics"
)

const (
	// DefaultTimeout bounds a single webhook request
	DefaultTimeout = 10 * time.Second
	// EventHeader carries the event name on every webhook request
	EventHeader = "X-Shipyard-Event"
	// FinishedEvent is the event name of terminal status notifications
	FinishedEvent = "job.finished"
)

// Projects resolves the webhook URL of a project
type Projects interface {
	Get(ctx context.Context, id uint) (*models.Project, error)
}

// TestRuns is the test run access the notifier needs
type TestRuns interface {
	GetByID(ctx context.Context, id uint) (*models.TestRun, error)
	MarkWebhookSent(ctx context.Context, id uint) error
}

// Deployments is the deployment access the notifier needs
type Deployments interface {
	Get(ctx context.Context, id uint) (*models.Deployment, error)
	MarkWebhookSent(ctx context.Context, id uint) error
}

// Payload is the JSON body posted to a project's webhook URL
type Payload struct {
	Event     string           `json:"event"`
	Kind      models.JobKind   `json:"kind"`
	JobID     uint             `json:"job_id"`
	ProjectID uint             `json:"project_id"`
	Status    models.JobStatus `json:"status"`
	Job       interface{}      `json:"job"`
	SentAt    time.Time        `json:"sent_at"`
}

// Notifier posts finished jobs to the webhook URL of their project
type Notifier struct {
	projects    Projects
	runs        TestRuns
	deployments Deployments
	metrics     metrics.Sink
	timeout     time.Duration
}

// NewNotifier creates a webhook notifier
func NewNotifier(projects Projects, runs TestRuns, deployments Deployments) *Notifier {
	return &Notifier{
		projects:    projects,
		runs:        runs,
		deployments: deployments,
		metrics:     metrics.NewNoopSink(),
		timeout:     DefaultTimeout,
	}
}

// WithMetrics attaches a metrics sink
func (n *Notifier) WithMetrics(sink metrics.Sink) *Notifier {
	if sink != nil {
		n.metrics = sink
	}
	return n
}

// WithTimeout overrides the request timeout
func (n *Notifier) WithTimeout(timeout time.Duration) *Notifier {
	n.timeout = timeout
	return n
}

// Subscribe registers the notifier for finished jobs on bus
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.EventJobFinished, n.Handle)
}

// Handle delivers the webhook for one finished job
func (n *Notifier) Handle(ctx context.Context, e events.Event) error {
	job, projectID, err := n.load(ctx, e.Kind, e.JobID)
	if err != nil {
		return err
	}
	// A rolled back deployment was already reported as DEPLOYED; report the rollback too.
	if job.Record().WebhookSent && e.Cause != engine.EventRollBack {
		return nil
	}

	project, err := n.projects.Get(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load project %d: %w", projectID, err)
	}
	if project.WebhookURL == "" {
		n.metrics.WebhookDelivery(metrics.WebhookOutcomeSkipped, 0)
		return nil
	}

	payload := Payload{
		Event:     FinishedEvent,
		Kind:      e.Kind,
		JobID:     e.JobID,
		ProjectID: projectID,
		Status:    job.Record().Status,
		Job:       job,
		SentAt:    time.Now().UTC(),
	}

	start := time.Now()
	if err := n.post(project.WebhookURL, payload); err != nil {
		n.metrics.WebhookDelivery(metrics.WebhookOutcomeFailed, time.Since(start))
		logger.WarnWithFields("webhook delivery failed", map[string]interface{}{
			"job_kind":   e.Kind,
			"job_id":     e.JobID,
			"project_id": projectID,
			"error":      err.Error(),
		})
		return err
	}
	n.metrics.WebhookDelivery(metrics.WebhookOutcomeDelivered, time.Since(start))

	if err := n.markSent(ctx, e.Kind, e.JobID); err != nil {
		return fmt.Errorf("failed to mark webhook sent: %w", err)
	}
	logger.DebugWithFields("webhook delivered", map[string]interface{}{
		"job_kind": e.Kind,
		"job_id":   e.JobID,
		"status":   payload.Status,
	})
	return nil
}

func (n *Notifier) load(ctx context.Context, kind models.JobKind, id uint) (models.Job, uint, error) {
	switch kind {
	case models.JobKindTestRun:
		run, err := n.runs.GetByID(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		return run, run.ProjectID, nil
	case models.JobKindDeployment:
		d, err := n.deployments.Get(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		return d, d.ProjectID, nil
	default:
		return nil, 0, fmt.Errorf("unknown job kind %q", kind)
	}
}

func (n *Notifier) markSent(ctx context.Context, kind models.JobKind, id uint) error {
	if kind == models.JobKindTestRun {
		return n.runs.MarkWebhookSent(ctx, id)
	}
	return n.deployments.MarkWebhookSent(ctx, id)
}

func (n *Notifier) post(url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	agent := fiber.Post(url)
	agent.Timeout(n.timeout)
	agent.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	agent.Set(EventHeader, FinishedEvent)
	agent.Body(body)

	statusCode, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending webhook: %w", errs[0])
	}
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", statusCode)
	}
	return nil
}
