package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	webhookredis "github.com/marcelsud/webhook-outbox/webhook/redis"
	"github.com/redis/go-redis/v9"
)

const (
	dueQueueKey  = "deliveries:due"
	completedKey = "deliveries:completed"
)

// RedisCollector implements the Collector interface over the Redis repository
type RedisCollector struct {
	repo   *webhookredis.Repository
	client *redis.Client
}

// NewRedisCollector creates a new Redis metrics collector
func NewRedisCollector(repo *webhookredis.Repository) *RedisCollector {
	var client *redis.Client
	if repo != nil {
		client = repo.GetClient()
	}
	return &RedisCollector{
		repo:   repo,
		client: client,
	}
}

// Collect gathers all metrics from Redis
func (c *RedisCollector) Collect(ctx context.Context) (Metrics, error) {
	queued, dueNow, err := c.GetQueueDepth(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting queue depth: %w", err)
	}

	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	webhooks, err := c.GetWebhookCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting webhook counts: %w", err)
	}

	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting throughput: %w", err)
	}

	workers, err := c.GetActiveWorkers(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting active workers: %w", err)
	}

	return Metrics{
		QueueDepth:   queued,
		DueNow:       dueNow,
		StatusCounts: statusCounts,
		Webhooks:     webhooks,
		Throughput:   throughput,
		Workers:      workers,
		Timestamp:    time.Now(),
	}, nil
}

// GetQueueDepth returns the total queued deliveries and how many are due now
func (c *RedisCollector) GetQueueDepth(ctx context.Context) (int64, int64, error) {
	queued, err := c.client.ZCard(ctx, dueQueueKey).Result()
	if err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("reading queue size: %w", err)
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	dueNow, err := c.client.ZCount(ctx, dueQueueKey, "-inf", now).Result()
	if err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("counting due deliveries: %w", err)
	}

	return queued, dueNow, nil
}

// GetStatusCounts returns counts of deliveries grouped by status
func (c *RedisCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	statusCounts := map[string]int64{
		"pending":    0,
		"attempting": 0,
		"success":    0,
		"failed":     0,
		"exhausted":  0,
	}

	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, "delivery:*", 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning delivery keys: %w", err)
		}

		for _, key := range keys {
			// Skip auxiliary keys (delivery:{id}:attempts, delivery:{id}:claim)
			if strings.Count(key, ":") != 1 {
				continue
			}

			status, err := c.client.HGet(ctx, key, "status").Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading delivery status: %w", err)
			}
			statusCounts[status]++
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return statusCounts, nil
}

// GetWebhookCounts returns subscription counts by active flag
func (c *RedisCollector) GetWebhookCounts(ctx context.Context) (WebhookCounts, error) {
	ids, err := c.client.SMembers(ctx, "webhooks:index").Result()
	if err != nil && err != redis.Nil {
		return WebhookCounts{}, fmt.Errorf("reading webhook index: %w", err)
	}

	var counts WebhookCounts
	for _, id := range ids {
		active, err := c.client.HGet(ctx, "webhook:"+id, "active").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return WebhookCounts{}, fmt.Errorf("reading webhook flag: %w", err)
		}
		if active == "1" {
			counts.Active++
		} else {
			counts.Inactive++
		}
	}
	return counts, nil
}

// GetThroughput returns successful deliveries over the standard windows.
// Entries older than the widest window are trimmed as a side effect.
func (c *RedisCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	now := time.Now()

	count := func(window time.Duration) (int64, error) {
		min := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
		n, err := c.client.ZCount(ctx, completedKey, min, "+inf").Result()
		if err != nil && err != redis.Nil {
			return 0, err
		}
		return n, nil
	}

	lastMinute, err := count(1 * time.Minute)
	if err != nil {
		return ThroughputMetrics{}, fmt.Errorf("counting 1m window: %w", err)
	}
	lastFive, err := count(5 * time.Minute)
	if err != nil {
		return ThroughputMetrics{}, fmt.Errorf("counting 5m window: %w", err)
	}
	lastFifteen, err := count(15 * time.Minute)
	if err != nil {
		return ThroughputMetrics{}, fmt.Errorf("counting 15m window: %w", err)
	}

	// Trim what no window can see anymore
	cutoff := strconv.FormatInt(now.Add(-15*time.Minute).UnixMilli(), 10)
	c.client.ZRemRangeByScore(ctx, completedKey, "-inf", "("+cutoff)

	return ThroughputMetrics{
		LastMinute:         lastMinute,
		LastFiveMinutes:    lastFive,
		LastFifteenMinutes: lastFifteen,
	}, nil
}

// GetActiveWorkers returns the workers with a live heartbeat
func (c *RedisCollector) GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error) {
	heartbeats, err := c.repo.GetActiveWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading heartbeats: %w", err)
	}

	workers := make([]WorkerInfo, 0, len(heartbeats))
	for _, hb := range heartbeats {
		workers = append(workers, WorkerInfo{
			WorkerID:      hb.WorkerID,
			Status:        hb.Status,
			LastHeartbeat: hb.LastHeartbeat,
		})
	}
	return workers, nil
}
