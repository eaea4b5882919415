package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mytaskpro/internal/delivery"
	"mytaskpro/internal/metrics"
	"mytaskpro/internal/model"
	"mytaskpro/internal/recurrence"
	"mytaskpro/internal/repository"
)

// TaskStore is the persistence the reminder scheduler needs.
type TaskStore interface {
	GetByID(ctx context.Context, id uint) (*model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	Insert(ctx context.Context, task *model.Task) (uint, error)
	Delete(ctx context.Context, id uint) error
}

// ReminderScheduler keeps a task's pending deliveries in line with its due and
// reminder times, and reacts to snooze, complete and delete. Every operation on
// a task runs under that task's lock.
type ReminderScheduler struct {
	tasks   TaskStore
	gateway delivery.Gateway
	locks   delivery.Locker
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
	loc     *time.Location
}

// SchedulerOption customizes a ReminderScheduler.
type SchedulerOption func(*ReminderScheduler)

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *ReminderScheduler) { s.now = now }
}

// WithLocation sets the calendar recurrence is computed in.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *ReminderScheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *ReminderScheduler) { s.metrics = m }
}

func NewReminderScheduler(tasks TaskStore, gateway delivery.Gateway, locks delivery.Locker, log *zap.Logger, opts ...SchedulerOption) *ReminderScheduler {
	s := &ReminderScheduler{
		tasks:   tasks,
		gateway: gateway,
		locks:   locks,
		log:     log,
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTaskCreatedOrUpdated replaces the task's pending deliveries with ones
// matching its current state. Delivery errors are logged, not returned.
func (s *ReminderScheduler) OnTaskCreatedOrUpdated(ctx context.Context, task *model.Task) {
	unlock := s.locks.Lock(task.ID)
	defer unlock()
	s.reschedule(ctx, task)
}

// Resync reschedules every given task. Used at startup and after a job store loss.
func (s *ReminderScheduler) Resync(ctx context.Context, tasks []model.Task) {
	for i := range tasks {
		if ctx.Err() != nil {
			return
		}
		s.OnTaskCreatedOrUpdated(ctx, &tasks[i])
	}
}

// Edit applies mutate to the stored task, persists it and reschedules it.
func (s *ReminderScheduler) Edit(ctx context.Context, taskID uint, mutate func(*model.Task) error) (*model.Task, error) {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := mutate(task); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	s.reschedule(ctx, task)
	return task, nil
}

// OnSnooze pushes both the due date and the reminder to now+d. The first
// snooze keeps the original values so it can be undone.
func (s *ReminderScheduler) OnSnooze(ctx context.Context, taskID uint, d time.Duration) (*model.Task, error) {
	if d <= 0 {
		return nil, ErrInvalidSnooze
	}

	unlock := s.locks.Lock(taskID)
	defer unlock()

	task, err := s.load(ctx, taskID, "snooze")
	if task == nil || err != nil {
		return nil, err
	}
	if task.IsCompleted {
		s.log.Info("snooze ignored for completed task", zap.Uint("task_id", taskID))
		return task, nil
	}

	if !task.IsSnoozed {
		due := task.DueDate
		task.OriginalDueDate = &due
		task.OriginalReminderTime = copyTime(task.ReminderTime)
	}
	newTime := s.now().Add(d)
	reminder := newTime
	task.DueDate = newTime
	task.ReminderTime = &reminder
	task.SnoozeCount++
	task.IsSnoozed = true

	if saved, err := s.save(ctx, task, "snooze"); !saved {
		return nil, err
	}
	s.metrics.Snoozed()
	s.log.Info("task snoozed",
		zap.Uint("task_id", task.ID),
		zap.Int("snooze_count", task.SnoozeCount),
		zap.Time("until", newTime))
	s.reschedule(ctx, task)
	return task, nil
}

// OnUndoSnooze restores the pre-snooze due date and reminder.
func (s *ReminderScheduler) OnUndoSnooze(ctx context.Context, taskID uint) (*model.Task, error) {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	task, err := s.load(ctx, taskID, "undo snooze")
	if task == nil || err != nil {
		return nil, err
	}
	if !task.IsSnoozed {
		return task, nil
	}

	if task.OriginalDueDate != nil {
		task.DueDate = *task.OriginalDueDate
	}
	task.ReminderTime = copyTime(task.OriginalReminderTime)
	task.OriginalDueDate = nil
	task.OriginalReminderTime = nil
	task.IsSnoozed = false
	task.SnoozeCount = 0

	if saved, err := s.save(ctx, task, "undo snooze"); !saved {
		return nil, err
	}
	s.log.Info("snooze undone", zap.Uint("task_id", task.ID), zap.Time("due_date", task.DueDate))
	s.reschedule(ctx, task)
	return task, nil
}

// OnComplete cancels the task's deliveries, marks it done and, for recurring
// tasks, inserts and schedules the next occurrence. next is nil when the
// series has ended.
func (s *ReminderScheduler) OnComplete(ctx context.Context, taskID uint) (done *model.Task, next *model.Task, err error) {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	task, err := s.load(ctx, taskID, "complete")
	if task == nil || err != nil {
		return nil, nil, err
	}
	if task.IsCompleted {
		return task, nil, nil
	}

	s.cancelAll(ctx, taskID)

	completedAt := s.now()
	task.IsCompleted = true
	task.CompletionDate = &completedAt
	if task.IsRecurring() && task.SeriesID == 0 {
		task.SeriesID = task.ID
	}
	if saved, err := s.save(ctx, task, "complete"); !saved {
		return nil, nil, err
	}
	s.log.Info("task completed", zap.Uint("task_id", task.ID), zap.Bool("recurring", task.IsRecurring()))

	if !task.IsRecurring() {
		return task, nil, nil
	}

	next, err = s.nextOccurrence(ctx, task)
	if err != nil {
		return task, nil, err
	}
	return task, next, nil
}

func (s *ReminderScheduler) nextOccurrence(ctx context.Context, task *model.Task) (*model.Task, error) {
	anchor := task.AnchorDueDate().In(s.loc)
	nextDue, ok := recurrence.Next(anchor, *task.Repeat)
	if !ok {
		s.log.Info("series ended",
			zap.Uint("task_id", task.ID),
			zap.Uint("series_id", task.SeriesID),
			zap.String("repeat", string(task.Repeat.Type)))
		return nil, nil
	}

	next := &model.Task{
		UserID:          task.UserID,
		SeriesID:        task.SeriesID,
		Title:           task.Title,
		Description:     task.Description,
		Category:        task.Category,
		DueDate:         nextDue,
		NotifyOnDueDate: task.NotifyOnDueDate,
		Repeat:          task.Repeat.NextInSeries(),
	}
	if reminder := task.AnchorReminderTime(); reminder != nil {
		lead := anchor.Sub(*reminder)
		at := nextDue.Add(-lead)
		next.ReminderTime = &at
	}

	if _, err := s.tasks.Insert(ctx, next); err != nil {
		return nil, fmt.Errorf("create next occurrence: %w", err)
	}
	s.metrics.OccurrenceCreated()
	s.log.Info("next occurrence created",
		zap.Uint("task_id", next.ID),
		zap.Uint("series_id", next.SeriesID),
		zap.Int("occurrence", next.Repeat.OccurrenceIndex),
		zap.Time("due_date", next.DueDate))

	unlock := s.locks.Lock(next.ID)
	defer unlock()
	s.reschedule(ctx, next)
	return next, nil
}

// OnDelete cancels the task's deliveries and removes it.
func (s *ReminderScheduler) OnDelete(ctx context.Context, taskID uint) error {
	unlock := s.locks.Lock(taskID)
	defer unlock()

	s.cancelAll(ctx, taskID)
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return err
	}
	s.log.Info("task deleted", zap.Uint("task_id", taskID))
	return nil
}

// load returns nil without error when the task no longer exists.
func (s *ReminderScheduler) load(ctx context.Context, taskID uint, op string) (*model.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			s.log.Info("task not found", zap.String("op", op), zap.Uint("task_id", taskID))
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return task, nil
}

// save reports false with a nil error when the task vanished underneath us.
func (s *ReminderScheduler) save(ctx context.Context, task *model.Task, op string) (bool, error) {
	if err := s.tasks.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			s.log.Info("task not found", zap.String("op", op), zap.Uint("task_id", task.ID))
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// reschedule assumes the task lock is held.
func (s *ReminderScheduler) reschedule(ctx context.Context, task *model.Task) {
	now := s.now()
	for _, kind := range model.NotificationKinds {
		key := model.NotificationKey{TaskID: task.ID, Kind: kind}
		at, ok := deliveryTime(task, kind, now)
		if !ok {
			s.cancel(ctx, key)
			continue
		}
		payload := model.NotificationPayload{
			Title:        task.Title,
			Body:         s.body(task, kind),
			ScheduledFor: at,
		}
		if err := s.gateway.ScheduleAt(ctx, key, at, payload); err != nil {
			s.metrics.Failure("schedule")
			s.log.Warn("schedule delivery failed",
				zap.Uint("task_id", task.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
}

// deliveryTime reports when a delivery of kind should fire. Past instants are skipped.
func deliveryTime(task *model.Task, kind model.NotificationKind, now time.Time) (time.Time, bool) {
	if task.IsCompleted {
		return time.Time{}, false
	}
	switch kind {
	case model.KindReminder:
		if task.ReminderTime != nil && task.ReminderTime.After(now) {
			return *task.ReminderTime, true
		}
	case model.KindDueDate:
		if task.NotifyOnDueDate && task.DueDate.After(now) {
			return task.DueDate, true
		}
	}
	return time.Time{}, false
}

func (s *ReminderScheduler) body(task *model.Task, kind model.NotificationKind) string {
	due := task.DueDate.In(s.loc).Format("2006-01-02 15:04")
	if kind == model.KindDueDate {
		return "Due now (" + due + ")"
	}
	return "Due " + due
}

func (s *ReminderScheduler) cancelAll(ctx context.Context, taskID uint) {
	for _, kind := range model.NotificationKinds {
		s.cancel(ctx, model.NotificationKey{TaskID: taskID, Kind: kind})
	}
}

func (s *ReminderScheduler) cancel(ctx context.Context, key model.NotificationKey) {
	if err := s.gateway.Cancel(ctx, key); err != nil {
		s.metrics.Failure("cancel")
		s.log.Warn("cancel delivery failed",
			zap.Uint("task_id", key.TaskID),
			zap.String("kind", string(key.Kind)),
			zap.Error(err))
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
