// -----------------------------------------------------------------------
// Redis Broker - At-least-once work queue over Redis lists
//
// Wire layout (all keys share the configured prefix):
//   {prefix}:queue               list of visible work item payloads
//   {prefix}:pending             list of in-flight payloads
//   {prefix}:reserved:{job-id}   reservation marker with TTL = visibility timeout
//   {prefix}:deliveries:{job-id} delivery counter, survives redelivery
//
// Reserve atomically moves a payload from queue to pending and stamps a
// reservation marker. A payload still in pending whose marker has expired
// was held by a dead or stuck worker; the reclaim loop moves it back to
// the queue for redelivery.
// -----------------------------------------------------------------------

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
)

const defaultReserveWait = 1 * time.Second

// RedisBroker implements the TaskBroker interface over a Redis instance.
type RedisBroker struct {
	rdb               *goredis.Client
	logger            arbor.ILogger
	prefix            string
	visibilityTimeout time.Duration
	maxDeliveries     int
	reclaimInterval   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(logger arbor.ILogger, config *common.BrokerConfig) (*RedisBroker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	visibility, err := time.ParseDuration(config.VisibilityTimeout)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("invalid visibility timeout: %w", err)
	}
	reclaim, err := time.ParseDuration(config.ReclaimInterval)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("invalid reclaim interval: %w", err)
	}

	broker := &RedisBroker{
		rdb:               rdb,
		logger:            logger,
		prefix:            config.QueueName,
		visibilityTimeout: visibility,
		maxDeliveries:     config.MaxDeliveries,
		reclaimInterval:   reclaim,
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}

	logger.Info().
		Str("addr", config.Addr).
		Str("prefix", config.QueueName).
		Dur("visibility_timeout", visibility).
		Int("max_deliveries", config.MaxDeliveries).
		Msg("Redis broker connected")

	return broker, nil
}

func (b *RedisBroker) queueKey() string   { return b.prefix + ":queue" }
func (b *RedisBroker) pendingKey() string { return b.prefix + ":pending" }
func (b *RedisBroker) reservedKey(jobID string) string {
	return b.prefix + ":reserved:" + jobID
}
func (b *RedisBroker) deliveriesKey(jobID string) string {
	return b.prefix + ":deliveries:" + jobID
}

// MaxDeliveries returns the configured per-item delivery budget.
func (b *RedisBroker) MaxDeliveries() int {
	return b.maxDeliveries
}

// Enqueue appends the item to the visible queue.
func (b *RedisBroker) Enqueue(ctx context.Context, item *models.WorkItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	payload, err := item.ToJSON()
	if err != nil {
		return err
	}

	if err := b.rdb.RPush(ctx, b.queueKey(), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue work item: %w", err)
	}

	b.logger.Debug().
		Str("job_id", item.JobID).
		Str("variant", string(item.Variant)).
		Msg("Work item enqueued")

	return nil
}

// Reserve leases the next visible item, blocking until the context deadline
// or the default wait. Returns models.ErrNoWork when nothing arrives.
func (b *RedisBroker) Reserve(ctx context.Context) (*interfaces.Reservation, error) {
	wait := defaultReserveWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
		if wait <= 0 {
			return nil, models.ErrNoWork
		}
	}

	// Oldest first: enqueue appends right, reserve pops left
	payload, err := b.rdb.BLMove(ctx, b.queueKey(), b.pendingKey(), "LEFT", "RIGHT", wait).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return nil, models.ErrNoWork
		}
		return nil, fmt.Errorf("failed to reserve work item: %w", err)
	}

	item, err := models.WorkItemFromJSON([]byte(payload))
	if err != nil {
		// Undecodable payload can never be processed; drop it from pending
		b.logger.Warn().Err(err).Msg("Dropping malformed work item payload")
		b.rdb.LRem(ctx, b.pendingKey(), 1, payload)
		return nil, models.ErrNoWork
	}

	deliveries, err := b.rdb.Incr(ctx, b.deliveriesKey(item.JobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count delivery: %w", err)
	}

	if err := b.rdb.Set(ctx, b.reservedKey(item.JobID), payload, b.visibilityTimeout).Err(); err != nil {
		return nil, fmt.Errorf("failed to mark reservation: %w", err)
	}

	b.logger.Debug().
		Str("job_id", item.JobID).
		Int("deliveries", int(deliveries)).
		Msg("Work item reserved")

	return &interfaces.Reservation{
		Item:       item,
		Deliveries: int(deliveries),
		Payload:    []byte(payload),
	}, nil
}

// Ack permanently removes a reserved item and its delivery counter.
func (b *RedisBroker) Ack(ctx context.Context, res *interfaces.Reservation) error {
	jobID := res.Item.JobID

	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, b.reservedKey(jobID))
	pipe.LRem(ctx, b.pendingKey(), 1, res.Payload)
	pipe.Del(ctx, b.deliveriesKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack work item: %w", err)
	}

	b.logger.Debug().Str("job_id", jobID).Msg("Work item acknowledged")
	return nil
}

// Nack releases a reservation. Retryable items below the delivery budget
// return to the queue; everything else is dropped for good.
func (b *RedisBroker) Nack(ctx context.Context, res *interfaces.Reservation, retryable bool) error {
	jobID := res.Item.JobID
	requeue := retryable && res.Deliveries < b.maxDeliveries

	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, b.reservedKey(jobID))
	pipe.LRem(ctx, b.pendingKey(), 1, res.Payload)
	if requeue {
		pipe.RPush(ctx, b.queueKey(), res.Payload)
	} else {
		pipe.Del(ctx, b.deliveriesKey(jobID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack work item: %w", err)
	}

	b.logger.Debug().
		Str("job_id", jobID).
		Bool("requeued", requeue).
		Int("deliveries", res.Deliveries).
		Msg("Work item released")

	return nil
}

// Ping verifies broker connectivity.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// StartReclaimer launches the background loop that returns expired
// reservations to the queue. Stops when ctx is cancelled or Close is called.
func (b *RedisBroker) StartReclaimer(ctx context.Context) {
	go func() {
		defer close(b.doneCh)

		ticker := time.NewTicker(b.reclaimInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := b.reclaimExpired(ctx); err != nil && ctx.Err() == nil {
					b.logger.Warn().Err(err).Msg("Reclaim sweep failed")
				}
			}
		}
	}()
}

// reclaimExpired scans pending payloads and requeues those whose reservation
// marker has expired.
func (b *RedisBroker) reclaimExpired(ctx context.Context) error {
	payloads, err := b.rdb.LRange(ctx, b.pendingKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to scan pending list: %w", err)
	}

	for _, payload := range payloads {
		item, err := models.WorkItemFromJSON([]byte(payload))
		if err != nil {
			b.rdb.LRem(ctx, b.pendingKey(), 1, payload)
			continue
		}

		exists, err := b.rdb.Exists(ctx, b.reservedKey(item.JobID)).Result()
		if err != nil {
			return fmt.Errorf("failed to check reservation: %w", err)
		}
		if exists > 0 {
			continue // Reservation still live
		}

		// The holder is gone. Move the payload back for redelivery; the
		// delivery counter is left intact so the budget keeps counting.
		pipe := b.rdb.TxPipeline()
		pipe.LRem(ctx, b.pendingKey(), 1, payload)
		pipe.RPush(ctx, b.queueKey(), payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to reclaim work item: %w", err)
		}

		b.logger.Warn().
			Str("job_id", item.JobID).
			Msg("Reclaimed expired reservation")
	}

	return nil
}

// Close stops the reclaim loop and closes the Redis connection.
func (b *RedisBroker) Close() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	return b.rdb.Close()
}
