package cleanup

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("cleanup queue is full")
	ErrQueueClosed = errors.New("cleanup queue is closed")
)

// Queue holds tasks until a dispatcher worker picks them up.
type Queue interface {
	// Push must not block on a slow consumer.
	Push(ctx context.Context, task Task) error
	// Pop blocks until a task is available. It returns ErrQueueClosed once the
	// queue is closed and has nothing left to hand out.
	Pop(ctx context.Context) (Task, error)
	Close() error
}

// ChannelQueue is an in-process queue backed by a buffered channel.
type ChannelQueue struct {
	tasks     chan Task
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannelQueue(size int) *ChannelQueue {
	if size < 1 {
		size = 1
	}
	return &ChannelQueue{
		tasks: make(chan Task, size),
		done:  make(chan struct{}),
	}
}

func (q *ChannelQueue) Push(ctx context.Context, task Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Pop(ctx context.Context) (Task, error) {
	select {
	case task := <-q.tasks:
		return task, nil
	default:
	}
	select {
	case task := <-q.tasks:
		return task, nil
	case <-q.done:
		select {
		case task := <-q.tasks:
			return task, nil
		default:
			return Task{}, ErrQueueClosed
		}
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Len returns the number of buffered tasks.
func (q *ChannelQueue) Len() int {
	return len(q.tasks)
}

// Close stops accepting tasks. Buffered tasks can still be popped.
func (q *ChannelQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
