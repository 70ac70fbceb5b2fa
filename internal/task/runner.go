package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrQueueFull indicates the submission queue has no room; the caller may
	// retry later or run the work inline.
	ErrQueueFull = errors.New("task queue is full")

	// ErrStopped indicates the runner is no longer accepting work.
	ErrStopped = errors.New("task runner stopped")
)

// TaskError pairs a failed task with its error on the runner's error channel.
type TaskError struct {
	Task Task
	Err  error
}

// Config holds runner tuning.
type Config struct {
	// Workers is the number of concurrent task processors.
	Workers int

	// QueueSize buffers submissions ahead of the workers.
	QueueSize int

	// ErrorBuffer sizes the error channel. When nobody drains it, further
	// errors are logged and dropped rather than blocking workers.
	ErrorBuffer int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{Workers: 2, QueueSize: 64, ErrorBuffer: 16}
}

// Runner executes submitted tasks on a fixed worker pool.
type Runner struct {
	cfg    Config
	tasks  chan Task
	errs   chan TaskError
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewRunner creates a runner; call Start before submitting.
func NewRunner(cfg Config, log *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ErrorBuffer <= 0 {
		cfg.ErrorBuffer = DefaultConfig().ErrorBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.QueueSize),
		errs:   make(chan TaskError, cfg.ErrorBuffer),
		logger: log.With(slog.String("component", "task_runner")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop rejects further submissions, cancels running tasks and waits for the
// workers to drain. The error channel closes once the last worker exits.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.tasks)
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	close(r.errs)
}

// Submit queues a task without blocking.
func (r *Runner) Submit(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	select {
	case r.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Errors returns the channel failed tasks surface on.
func (r *Runner) Errors() <-chan TaskError {
	return r.errs
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	log := r.logger.With(slog.Int("worker_id", id))

	for t := range r.tasks {
		start := time.Now()
		log.Debug("task started",
			slog.String("task_id", t.ID().String()),
			slog.String("task_type", t.Type()))

		if err := t.Execute(r.ctx); err != nil {
			log.Error("task failed",
				slog.String("task_id", t.ID().String()),
				slog.String("task_type", t.Type()),
				slog.String("error", err.Error()))
			select {
			case r.errs <- TaskError{Task: t, Err: err}:
			default:
				log.Warn("error channel full, dropping task error",
					slog.String("task_id", t.ID().String()))
			}
			continue
		}
		log.Debug("task finished",
			slog.String("task_id", t.ID().String()),
			slog.String("task_type", t.Type()),
			slog.Duration("elapsed", time.Since(start)))
	}
}
