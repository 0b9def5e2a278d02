package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"stagegate/internal/domain"
	"stagegate/internal/event"
)

// DeadLetters stores notification jobs that exhausted their retries.
// Satisfied by repo.Repo.
type DeadLetters interface {
	RecordFailedNotification(ctx context.Context, f domain.FailedNotification) error
}

// Job is one fired event awaiting routing and delivery.
type Job struct {
	Event   event.Event
	Project domain.Project
}

// DispatcherConfig bounds the async delivery worker. Zero values fall back
// to the defaults: 3 attempts, 5s base backoff, 2m budget per attempt.
type DispatcherConfig struct {
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	JobTimeout  time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 5 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	return c
}

// Dispatcher decouples mail I/O from the request path: the engine enqueues
// fired events and returns; a single worker goroutine routes and delivers
// them with bounded retries, dead-lettering what cannot be delivered.
type Dispatcher struct {
	cfg    DispatcherConfig
	router *Router
	dead   DeadLetters
	log    *zap.Logger

	jobs      chan Job
	pending   sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(cfg DispatcherConfig, router *Router, dead DeadLetters, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		cfg:    cfg,
		router: router,
		dead:   dead,
		log:    log,
		jobs:   make(chan Job, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue hands a fired event to the worker. It blocks only when the queue
// is full; the business transaction that fired the event has already
// committed by the time this is called.
func (d *Dispatcher) Enqueue(ev event.Event, project domain.Project) {
	d.pending.Add(1)
	d.jobs <- Job{Event: ev, Project: project}
}

// Flush blocks until every enqueued job has been processed.
func (d *Dispatcher) Flush() {
	d.pending.Wait()
}

// Close stops the worker after draining the queue.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.pending.Wait()
		close(d.jobs)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for job := range d.jobs {
		d.process(job)
		d.pending.Done()
	}
}

func (d *Dispatcher) process(job Job) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
		err := d.router.Route(ctx, job.Event, job.Project)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		if errors.Is(err, ErrMissingRecipients) {
			// Config defect: retrying cannot help, fail the job now.
			d.log.Error("notification config resolved empty",
				zap.String("event_type", string(job.Event.Type())),
				zap.String("project_id", job.Project.ID),
				zap.Error(err),
			)
			d.deadLetter(job, err, attempt)
			return
		}
		d.log.Warn("notification delivery failed",
			zap.String("event_type", string(job.Event.Type())),
			zap.String("project_id", job.Project.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < d.cfg.MaxAttempts {
			time.Sleep(d.cfg.Backoff * time.Duration(attempt))
		}
	}
	d.log.Error("notification job exhausted retries",
		zap.String("event_type", string(job.Event.Type())),
		zap.String("project_id", job.Project.ID),
		zap.Error(lastErr),
	)
	d.deadLetter(job, lastErr, d.cfg.MaxAttempts)
}

func (d *Dispatcher) deadLetter(job Job, cause error, attempts int) {
	if d.dead == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := d.dead.RecordFailedNotification(ctx, domain.FailedNotification{
		ProjectID: job.Project.ID,
		EventType: string(job.Event.Type()),
		Reason:    cause.Error(),
		Attempts:  attempts,
	})
	if err != nil {
		d.log.Error("dead-letter write failed", zap.Error(err))
	}
}
