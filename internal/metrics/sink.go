// Package metrics exposes engine and webhook activity as metrics
package metrics

import (
	"time"

	"github.com/celestiaorg/shipyard/internal/engine"
)

// Webhook delivery outcomes
const (
	WebhookOutcomeDelivered = "delivered"
	WebhookOutcomeFailed    = "failed"
	WebhookOutcomeSkipped   = "skipped"
)

// Recovery actions taken at startup
const (
	RecoveryFailed       = "failed"
	RecoveryCancelled    = "cancelled"
	RecoveryRedispatched = "redispatched"
)

// Sink receives every metric shipyard records. All methods must be non-blocking.
type Sink interface {
	engine.MetricsSink

	WebhookDelivery(outcome string, duration time.Duration)
	JobsRecovered(action string, count int)
}
