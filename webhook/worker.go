package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

/* Pool runs the delivery workers. Each worker pulls due deliveries from
 * the queue, takes an exclusive claim so no two workers share one, and
 * drives a single attempt through the dispatcher. The transition result
 * is persisted and the delivery is rescheduled or retired.
 */

// Heartbeater reports worker liveness for the metrics collector.
// Optional: a nil Heartbeater disables heartbeats.
type Heartbeater interface {
	SetWorkerHeartbeat(ctx context.Context, workerID, status string) error
}

type Pool struct {
	Repo       Repository
	Dispatcher *Dispatcher
	Registry   RegistryUseCase
	Schedule   Schedule
	Heartbeat  Heartbeater
	Logger     *slog.Logger

	Workers      int
	BatchSize    int
	PollInterval time.Duration
	ClaimTTL     time.Duration
}

// NewPool creates a worker pool with the given parallelism
func NewPool(repo Repository, dispatcher *Dispatcher, registry RegistryUseCase, sched Schedule, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		Repo:         repo,
		Dispatcher:   dispatcher,
		Registry:     registry,
		Schedule:     sched,
		Logger:       logger,
		Workers:      workers,
		BatchSize:    50,
		PollInterval: 1 * time.Second,
		ClaimTTL:     2 * dispatcherTimeout(dispatcher),
	}
}

func dispatcherTimeout(d *Dispatcher) time.Duration {
	if d != nil && d.Client != nil && d.Client.Timeout > 0 {
		return d.Client.Timeout
	}
	return 30 * time.Second
}

// Start launches the workers and blocks until the context is cancelled
func (p *Pool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			p.run(ctx, workerID)
		}(fmt.Sprintf("worker-%d", i))
	}
	wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.heartbeat(ctx, workerID, "idle")
			if n := p.RunOnce(ctx); n > 0 {
				p.heartbeat(ctx, workerID, "processing")
			}
		}
	}
}

/* RunOnce pulls one batch of due deliveries and processes every
 * delivery it manages to claim. Returns the number processed.
 * Exposed so tests and one-shot tools can drive the pool directly
 */
func (p *Pool) RunOnce(ctx context.Context) int {
	now := time.Now().UTC()
	due, err := p.Repo.Due(ctx, now, p.BatchSize)
	if err != nil {
		p.logError("fetching due deliveries", err)
		return 0
	}

	processed := 0
	for _, d := range due {
		if ctx.Err() != nil {
			return processed
		}
		if p.processDelivery(ctx, d.ID) {
			processed++
		}
	}
	return processed
}

// processDelivery runs a single attempt for one delivery under a claim
func (p *Pool) processDelivery(ctx context.Context, deliveryID string) bool {
	claimed, err := p.Repo.Claim(ctx, deliveryID, p.ClaimTTL)
	if err != nil {
		p.logError("claiming delivery", err)
		return false
	}
	if !claimed {
		// another worker got here first
		return false
	}
	defer func() {
		if err := p.Repo.Release(ctx, deliveryID); err != nil {
			p.logError("releasing claim", err)
		}
	}()

	// Re-read under the claim: the queue snapshot may be stale
	d, err := p.Repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		p.logError("getting delivery", err)
		return false
	}

	now := time.Now().UTC()
	if !d.Due(now) {
		return false
	}

	wh, err := p.Repo.GetWebhook(ctx, d.WebhookID)
	if err != nil {
		p.logError("getting webhook", err)
		return false
	}

	/* A webhook deactivated between scheduling and dispatch gets no new
	 * attempt. The delivery keeps its state but leaves the due queue;
	 * reactivation re-enters it via the admin path
	 */
	if !wh.Active {
		unqueued := d
		unqueued.NextRetryAt = nil
		if err := p.Repo.Schedule(ctx, unqueued); err != nil {
			p.logError("unscheduling delivery", err)
		}
		if p.Logger != nil {
			p.Logger.Info("skipping delivery for inactive webhook",
				"delivery_id", d.ID,
				"webhook_id", wh.ID,
			)
		}
		return false
	}

	// In-flight marker; a concurrent reader sees the attempt in progress
	d.Status = Attempting
	d.UpdatedAt = now
	if err := p.Repo.StoreDelivery(ctx, d); err != nil {
		p.logError("marking delivery attempting", err)
		return false
	}

	outcome := p.Dispatcher.Dispatch(ctx, d, wh)
	now = time.Now().UTC()

	updated := d.Apply(outcome, p.Schedule, now)
	if err := p.Repo.StoreDelivery(ctx, updated); err != nil {
		p.logError("storing delivery", err)
		return false
	}

	/* Attempt history is best-effort audit data. A broken history write
	 * is logged and the delivery transition stands
	 */
	if attempt, ok := updated.LastAttempt(); ok {
		if err := p.Repo.AppendAttempt(ctx, updated.ID, attempt); err != nil {
			p.logError("appending attempt history", err)
		}
	}

	if err := p.Repo.Schedule(ctx, updated); err != nil {
		p.logError("scheduling delivery", err)
	}

	if err := p.Registry.RecordOutcome(ctx, wh.ID, outcome.Succeeded); err != nil {
		p.logError("recording outcome", err)
	}

	if p.Logger != nil {
		p.Logger.Info("delivery attempt",
			"delivery_id", updated.ID,
			"webhook_id", wh.ID,
			"attempt", len(updated.Attempts),
			"status", updated.Status.String(),
			"http_status", outcome.StatusCode,
			"error", outcome.Error,
		)
	}
	return true
}

func (p *Pool) heartbeat(ctx context.Context, workerID, status string) {
	if p.Heartbeat == nil {
		return
	}
	if err := p.Heartbeat.SetWorkerHeartbeat(ctx, workerID, status); err != nil {
		p.logError("setting heartbeat", err)
	}
}

func (p *Pool) logError(msg string, err error) {
	if p.Logger != nil {
		p.Logger.Error(msg, "error", err)
	}
}
