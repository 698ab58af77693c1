package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"padlink/api/internal/etherpad"
)

const (
	DefaultWorkers = 4
	DefaultTimeout = 10 * time.Second
	pushTimeout    = 2 * time.Second
	popRetryDelay  = 500 * time.Millisecond
)

// Remote performs the deletions on the Etherpad server.
type Remote interface {
	DeletePad(ctx context.Context, padID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Observer is told about every executed task and its outcome.
type Observer func(task Task, err error)

type Options struct {
	Workers  int
	Timeout  time.Duration
	Logger   *zap.Logger
	Observer Observer
}

// Dispatcher feeds queued tasks to a fixed pool of workers.
type Dispatcher struct {
	queue    Queue
	remote   Remote
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewDispatcher starts the workers. Call Close to stop them.
func NewDispatcher(queue Queue, remote Remote, opts Options) *Dispatcher {
	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:    queue,
		remote:   remote,
		timeout:  timeout,
		logger:   logger.Named("cleanup"),
		observer: opts.Observer,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
	return d
}

// Submit queues tasks without waiting for them to run. A task that cannot be
// queued is logged and dropped.
func (d *Dispatcher) Submit(ctx context.Context, tasks ...Task) {
	if len(tasks) == 0 {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	for _, task := range tasks {
		if err := d.queue.Push(pushCtx, task); err != nil {
			d.logger.Warn("cleanup task dropped",
				zap.String("kind", string(task.Kind)),
				zap.String("target", task.Target),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting tasks and waits for the workers to finish what is
// already queued. When ctx ends first, running tasks are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	var closeErr error
	d.once.Do(func() {
		closeErr = d.queue.Close()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return closeErr
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) work(worker int) {
	defer d.wg.Done()
	for {
		if d.ctx.Err() != nil {
			return
		}
		task, err := d.queue.Pop(d.ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || d.ctx.Err() != nil {
				return
			}
			d.logger.Error("cleanup queue pop failed", zap.Int("worker", worker), zap.Error(err))
			select {
			case <-time.After(popRetryDelay):
			case <-d.ctx.Done():
				return
			}
			continue
		}
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	err := d.execute(ctx, task)
	switch {
	case err == nil:
		d.logger.Debug("cleanup task done",
			zap.String("kind", string(task.Kind)),
			zap.String("target", task.Target),
		)
	case etherpad.IsNotFound(err):
		d.logger.Debug("cleanup target already gone",
			zap.String("kind", string(task.Kind)),
			zap.String("target", task.Target),
			zap.Error(err),
		)
		err = nil
	default:
		d.logger.Error("cleanup task failed",
			zap.String("kind", string(task.Kind)),
			zap.String("target", task.Target),
			zap.Duration("queued", time.Since(task.EnqueuedAt)),
			zap.Error(err),
		)
	}
	if d.observer != nil {
		d.observer(task, err)
	}
}

func (d *Dispatcher) execute(ctx context.Context, task Task) error {
	switch task.Kind {
	case KindDeletePad:
		return d.remote.DeletePad(ctx, task.Target)
	case KindDeleteSession:
		return d.remote.DeleteSession(ctx, task.Target)
	default:
		return fmt.Errorf("unknown cleanup task kind %q", task.Kind)
	}
}
