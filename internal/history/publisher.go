// internal/history/publisher.go
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list finished games are pushed onto.
const DefaultQueueName = "bluff_games"

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher hands finished games to the historian through a Redis list.
type Publisher struct {
	rdb   redis.Cmdable
	queue string
}

// NewPublisher pushes onto queue, or DefaultQueueName when empty.
func NewPublisher(rdb redis.Cmdable, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queue: queue}
}

// Record serializes rec and RPushes it.
func (p *Publisher) Record(ctx context.Context, rec GameRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal GameRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// RedisQueue pops records pushed by a Publisher.
type RedisQueue struct {
	rdb   redis.Cmdable
	queue string
}

// NewRedisQueue reads from queue, or DefaultQueueName when empty.
func NewRedisQueue(rdb redis.Cmdable, queue string) *RedisQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &RedisQueue{rdb: rdb, queue: queue}
}

// Pop blocks up to timeout for the next record. It returns ErrEmpty on timeout.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (GameRecord, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return GameRecord{}, ErrEmpty
	}
	if err != nil {
		return GameRecord{}, err
	}
	if len(res) < 2 {
		return GameRecord{}, ErrEmpty
	}

	// res[0] is the queue name and res[1] the payload.
	var rec GameRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return GameRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return rec, nil
}
