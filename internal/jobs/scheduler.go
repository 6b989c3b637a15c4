// Package jobs runs background ingestion work on a bounded worker pool.
package jobs

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// ErrBusy indicates the queue is full; the caller may retry later.
var ErrBusy = errors.New("job queue full")

// ErrStopped indicates the scheduler is shutting down.
var ErrStopped = errors.New("scheduler stopped")

// Job is one unit of background work. Run observes ctx cooperatively; the
// scheduler enforces the soft deadline through it.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config holds scheduler settings.
type Config struct {
	Workers      int
	QueueSize    int
	SoftDeadline time.Duration
}

// Scheduler owns the worker pool. Submit never blocks; overflow surfaces
// as ErrBusy.
type Scheduler struct {
	queue        chan Job
	softDeadline time.Duration
	logger       *observability.Logger
	metrics      *observability.Metrics

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// New creates and starts a scheduler.
func New(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	softDeadline := cfg.SoftDeadline
	if softDeadline <= 0 {
		softDeadline = 10 * time.Minute
	}
	if logger == nil {
		logger = observability.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		queue:        make(chan Job, queueSize),
		softDeadline: softDeadline,
		logger:       logger,
		metrics:      metrics,
		cancel:       cancel,
	}

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker(ctx)
	}

	return s
}

// Submit enqueues a job without blocking.
func (s *Scheduler) Submit(job Job) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.mu.Unlock()

	select {
	case s.queue <- job:
		if s.metrics != nil {
			s.metrics.JobsQueueDepth.Inc()
		}
		return nil
	default:
		return ErrBusy
	}
}

// Stop cancels running jobs and waits for workers to exit, up to the given
// context's deadline. Queued jobs that never started are dropped. The queue
// channel is never closed; a Submit racing Stop lands in the buffer and is
// dropped with the rest of the backlog.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			// Shutdown; remaining queued jobs are dropped.
			return
		case job := <-s.queue:
			if s.metrics != nil {
				s.metrics.JobsQueueDepth.Dec()
			}
			if ctx.Err() != nil {
				continue
			}
			s.run(ctx, job)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	if s.metrics != nil {
		s.metrics.JobsInflight.Inc()
		defer s.metrics.JobsInflight.Dec()
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.softDeadline)
	defer cancel()

	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.IngestDuration.Observe(elapsed.Seconds())
	}

	if err != nil {
		if s.metrics != nil {
			s.metrics.JobsFailed.Inc()
		}
		s.logger.Error().
			Str("job", job.Name).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("Job failed")
		return
	}

	if s.metrics != nil {
		s.metrics.JobsCompleted.Inc()
	}
	s.logger.Info().
		Str("job", job.Name).
		Dur("elapsed", elapsed).
		Msg("Job completed")
}
