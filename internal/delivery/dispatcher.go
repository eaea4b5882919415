package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mytaskpro/internal/metrics"
	"mytaskpro/internal/model"
	"mytaskpro/internal/repository"
)

const (
	defaultBatchSize   = 100
	defaultRetryDelay  = time.Minute
	defaultMaxAttempts = 5
)

// Dispatcher implements Gateway on top of a JobStore and delivers due jobs.
type Dispatcher struct {
	store     JobStore
	tasks     TaskLookup
	presenter Presenter
	locks     Locker
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
	batchSize int

	retryDelay  time.Duration
	maxAttempts int
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithBatchSize bounds how many due jobs one RunDue call handles.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithRetry sets the backoff step and the number of presentation attempts
// before a job is given up.
func WithRetry(delay time.Duration, attempts int) Option {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.retryDelay = delay
		}
		if attempts > 0 {
			d.maxAttempts = attempts
		}
	}
}

// WithMetrics records delivery counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(store JobStore, tasks TaskLookup, presenter Presenter, locks Locker, log *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		tasks:     tasks,
		presenter: presenter,
		locks:     locks,
		log:       log,
		now:       time.Now,
		batchSize: defaultBatchSize,

		retryDelay:  defaultRetryDelay,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetPresenter swaps the presenter. Must be called before the first RunDue.
func (d *Dispatcher) SetPresenter(p Presenter) {
	d.presenter = p
}

func (d *Dispatcher) ScheduleAt(ctx context.Context, key model.NotificationKey, when time.Time, payload model.NotificationPayload) error {
	payload.TaskID = key.TaskID
	payload.Kind = key.Kind
	job := model.ScheduledNotification{
		TaskID:  key.TaskID,
		Kind:    key.Kind,
		FireAt:  when,
		Token:   uuid.NewString(),
		Payload: payload,
	}
	if err := d.store.Upsert(ctx, job); err != nil {
		return fmt.Errorf("schedule %s for task %d: %w", key.Kind, key.TaskID, err)
	}
	d.metrics.Scheduled(string(key.Kind))
	return nil
}

func (d *Dispatcher) Cancel(ctx context.Context, key model.NotificationKey) error {
	if err := d.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("cancel %s for task %d: %w", key.Kind, key.TaskID, err)
	}
	d.metrics.Cancelled(string(key.Kind))
	return nil
}

// RunDue claims and delivers up to one batch of jobs whose fire time has
// passed. It returns the number of notifications presented.
func (d *Dispatcher) RunDue(ctx context.Context) (int, error) {
	res, err := d.runBatch(ctx)
	return res.delivered, err
}

// Drain runs batches until the backlog of due jobs is gone.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		res, err := d.runBatch(ctx)
		total += res.delivered
		if err != nil {
			return total, err
		}
		// A short batch means nothing is left. A batch where every job failed
		// would be listed again as is.
		if res.listed < d.batchSize || res.failed == res.listed {
			return total, nil
		}
	}
}

type batchResult struct {
	listed    int
	delivered int
	failed    int
}

func (d *Dispatcher) runBatch(ctx context.Context) (batchResult, error) {
	var res batchResult
	jobs, err := d.store.Due(ctx, d.now(), d.batchSize)
	if err != nil {
		return res, fmt.Errorf("list due notifications: %w", err)
	}
	res.listed = len(jobs)

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		ok, err := d.fire(ctx, job)
		if err != nil {
			res.failed++
			d.metrics.Failure("deliver")
			d.log.Warn("delivery failed",
				zap.Uint("task_id", job.TaskID),
				zap.String("kind", string(job.Kind)),
				zap.Int("attempts", job.Attempts+1),
				zap.Error(err))
			continue
		}
		if ok {
			res.delivered++
		}
	}
	return res, nil
}

func (d *Dispatcher) fire(ctx context.Context, job model.ScheduledNotification) (bool, error) {
	unlock := d.locks.Lock(job.TaskID)
	defer unlock()

	claimed, err := d.store.Claim(ctx, job)
	if err != nil {
		return false, err
	}
	if !claimed {
		// Replaced or cancelled since it was listed.
		return false, nil
	}
	ok, err := d.DeliverNow(ctx, job.Payload)
	if err != nil {
		d.retry(ctx, job)
		return false, err
	}
	return ok, nil
}

// retry puts a job whose presentation failed back into the schedule. Callers
// must hold the task lock.
func (d *Dispatcher) retry(ctx context.Context, job model.ScheduledNotification) {
	job.Attempts++
	if job.Attempts >= d.maxAttempts {
		d.metrics.Failure("give_up")
		d.log.Error("notification dropped after repeated failures",
			zap.Uint("task_id", job.TaskID),
			zap.String("kind", string(job.Kind)),
			zap.Int("attempts", job.Attempts))
		return
	}
	job.FireAt = d.now().Add(time.Duration(job.Attempts) * d.retryDelay)
	restored, err := d.store.Restore(ctx, job)
	switch {
	case err != nil:
		d.metrics.Failure("retry")
		d.log.Warn("requeue notification failed",
			zap.Uint("task_id", job.TaskID),
			zap.String("kind", string(job.Kind)),
			zap.Error(err))
	case restored:
		d.log.Info("notification requeued",
			zap.Uint("task_id", job.TaskID),
			zap.String("kind", string(job.Kind)),
			zap.Time("fire_at", job.FireAt))
	}
}

// Pending lists the deliveries still scheduled for a task.
func (d *Dispatcher) Pending(ctx context.Context, taskID uint) ([]model.ScheduledNotification, error) {
	jobs, err := d.store.Pending(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("pending notifications for task %d: %w", taskID, err)
	}
	return jobs, nil
}

// DeliverNow presents payload unless the task is gone or no longer expects it.
// Callers must hold the task lock.
func (d *Dispatcher) DeliverNow(ctx context.Context, payload model.NotificationPayload) (bool, error) {
	task, err := d.tasks.GetByID(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			d.dropStale(payload, "task deleted")
			return false, nil
		}
		return false, err
	}
	if reason := staleReason(task, payload); reason != "" {
		d.dropStale(payload, reason)
		return false, nil
	}

	if err := d.presenter.Present(ctx, task, payload); err != nil {
		return false, fmt.Errorf("present: %w", err)
	}
	d.metrics.Delivered(string(payload.Kind))
	d.log.Info("notification delivered",
		zap.Uint("task_id", task.ID),
		zap.String("kind", string(payload.Kind)),
		zap.Time("scheduled_for", payload.ScheduledFor))
	return true, nil
}

func (d *Dispatcher) dropStale(payload model.NotificationPayload, reason string) {
	d.metrics.Stale(string(payload.Kind))
	d.log.Info("stale notification dropped",
		zap.Uint("task_id", payload.TaskID),
		zap.String("kind", string(payload.Kind)),
		zap.String("reason", reason))
}

func staleReason(task *model.Task, payload model.NotificationPayload) string {
	if task.IsCompleted {
		return "task completed"
	}
	switch payload.Kind {
	case model.KindReminder:
		if task.ReminderTime == nil || !task.ReminderTime.Equal(payload.ScheduledFor) {
			return "reminder moved"
		}
	case model.KindDueDate:
		if !task.NotifyOnDueDate || !task.DueDate.Equal(payload.ScheduledFor) {
			return "due date moved"
		}
	default:
		return "unknown kind"
	}
	return ""
}
