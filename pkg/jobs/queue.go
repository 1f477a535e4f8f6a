package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Enqueue when the buffer has no room. Callers
// should surface it instead of blocking the request goroutine.
var ErrQueueFull = errors.New("jobs: queue full")

// Job is a unit of background work. The handler owns interpretation of
// Payload; failures are the handler's to record, the queue does not retry.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a single job. A returned error is logged and the job is
// dropped.
type Handler func(context.Context, Job) error

type QueueConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
}

// Queue fans queued jobs out to a fixed pool of worker goroutines.
type Queue struct {
	name         string
	handler      Handler
	logger       *zap.SugaredLogger
	workersCount int

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	wg      sync.WaitGroup
	started bool
}

// NewQueue builds a queue; Start must be called before Enqueue.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		name:    name,
		handler: handler,
		logger:  logger.Sugar(),
		jobs:    make(chan Job, cfg.BufferSize),
	}
	q.workersCount = cfg.Workers
	return q
}

// Start launches the workers. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workersCount; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Infow("queue started", "queue", q.name, "workers", q.workersCount)
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Infow("queue stopped", "queue", q.name)
}

// Enqueue submits a job without blocking. It fails fast when the queue is
// stopped or the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("jobs: queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("jobs: queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			start := time.Now()
			if err := q.handler(q.ctx, job); err != nil {
				q.logger.Errorw("job failed",
					"queue", q.name, "job_id", job.ID, "type", job.Type,
					"waited", start.Sub(job.Enqueued), "error", err)
				continue
			}
			q.logger.Debugw("job done",
				"queue", q.name, "job_id", job.ID, "type", job.Type,
				"took", time.Since(start))
		}
	}
}
