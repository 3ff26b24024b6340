package metrics

import (
	"context"
	"time"
)

// Metrics represents the current state of the delivery system.
type Metrics struct {
	// QueueDepth is the total number of deliveries waiting on the due queue
	QueueDepth int64 `json:"queue_depth"`

	// DueNow is the number of queued deliveries whose retry time has passed
	DueNow int64 `json:"due_now"`

	// StatusCounts maps delivery status name to count
	StatusCounts map[string]int64 `json:"status_counts"`

	// Webhooks counts subscriptions by circuit-breaker state
	Webhooks WebhookCounts `json:"webhooks"`

	// Throughput represents deliveries completed per time window
	Throughput ThroughputMetrics `json:"throughput"`

	// Workers lists the delivery workers with a live heartbeat
	Workers []WorkerInfo `json:"workers"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// WebhookCounts splits subscriptions into active and deactivated.
type WebhookCounts struct {
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

// ThroughputMetrics represents successful deliveries over different time windows.
type ThroughputMetrics struct {
	// LastMinute is deliveries completed in the last 1 minute
	LastMinute int64 `json:"last_minute"`

	// LastFiveMinutes is deliveries completed in the last 5 minutes
	LastFiveMinutes int64 `json:"last_five_minutes"`

	// LastFifteenMinutes is deliveries completed in the last 15 minutes
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// WorkerInfo represents information about an active delivery worker.
type WorkerInfo struct {
	// WorkerID is a unique identifier for the worker
	WorkerID string `json:"worker_id"`

	// Status is the current status of the worker (e.g., "idle", "processing")
	Status string `json:"status"`

	// LastHeartbeat is the timestamp of the last heartbeat
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Collector defines the interface for collecting metrics from the delivery system.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetQueueDepth returns the queued and currently-due delivery counts
	GetQueueDepth(ctx context.Context) (queued, dueNow int64, err error)

	// GetStatusCounts returns the count of deliveries by status
	GetStatusCounts(ctx context.Context) (map[string]int64, error)

	// GetWebhookCounts returns subscription counts by active flag
	GetWebhookCounts(ctx context.Context) (WebhookCounts, error)

	// GetThroughput returns deliveries completed over time windows
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)

	// GetActiveWorkers returns information about live workers
	GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error)
}
