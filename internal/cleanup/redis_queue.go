package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKey = "padlink:cleanup"
	redisPopTimeout = time.Second
)

// RedisQueue keeps pending tasks in a Redis list, so they survive restarts
// and are shared by every replica.
type RedisQueue struct {
	client *redis.Client
	key    string
	closed atomic.Bool
}

// NewRedisQueue connects to redisURL and checks the connection.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisQueueWithClient(client, DefaultRedisKey), nil
}

// NewRedisQueueWithClient creates a queue from an existing Redis client.
func NewRedisQueueWithClient(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, task Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal cleanup task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push cleanup task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (Task, error) {
	for {
		if q.closed.Load() {
			return Task{}, ErrQueueClosed
		}
		result, err := q.client.BRPop(ctx, redisPopTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Task{}, ctxErr
			}
			if q.closed.Load() || errors.Is(err, redis.ErrClosed) {
				return Task{}, ErrQueueClosed
			}
			return Task{}, fmt.Errorf("pop cleanup task: %w", err)
		}
		// BRPOP replies with [key, value].
		if len(result) != 2 {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			return Task{}, fmt.Errorf("unmarshal cleanup task: %w", err)
		}
		return task, nil
	}
}

// Len returns the number of pending tasks.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close stops the queue and closes the Redis connection. Pending tasks stay
// in Redis for the next process.
func (q *RedisQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	return q.client.Close()
}
