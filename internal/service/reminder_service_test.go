package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mytaskpro/internal/lock"
	"mytaskpro/internal/model"
	"mytaskpro/internal/repository"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ScheduleAt(ctx context.Context, key model.NotificationKey, when time.Time, payload model.NotificationPayload) error {
	return m.Called(ctx, key, when, payload).Error(0)
}

func (m *mockGateway) Cancel(ctx context.Context, key model.NotificationKey) error {
	return m.Called(ctx, key).Error(0)
}

func (e *env) insert(t *testing.T, task *model.Task) *model.Task {
	t.Helper()
	_, err := e.tasks.Insert(e.ctx, task)
	require.NoError(t, err)
	return task
}

func TestReminderScheduler_SchedulesReminderAndDueDate(t *testing.T) {
	e := newEnv(t)
	task := e.insert(t, &model.Task{
		Title:           "Pay rent",
		DueDate:         e.now.Add(2 * time.Hour),
		ReminderTime:    timePtr(e.now.Add(time.Hour)),
		NotifyOnDueDate: true,
	})

	e.reminders.OnTaskCreatedOrUpdated(e.ctx, task)

	reminder := e.pending(t, task.ID, model.KindReminder)
	require.NotNil(t, reminder)
	assert.True(t, reminder.FireAt.Equal(e.now.Add(time.Hour)))
	due := e.pending(t, task.ID, model.KindDueDate)
	require.NotNil(t, due)
	assert.True(t, due.FireAt.Equal(e.now.Add(2*time.Hour)))
}

func TestReminderScheduler_RescheduleIsIdempotent(t *testing.T) {
	e := newEnv(t)
	task := e.insert(t, &model.Task{
		Title:        "Call mom",
		DueDate:      e.now.Add(2 * time.Hour),
		ReminderTime: timePtr(e.now.Add(time.Hour)),
	})

	e.reminders.OnTaskCreatedOrUpdated(e.ctx, task)
	e.reminders.OnTaskCreatedOrUpdated(e.ctx, task)

	assert.Equal(t, 1, e.jobCount(t, task.ID))

	e.now = e.now.Add(90 * time.Minute)
	assert.Equal(t, 1, e.runDue(t))
	assert.Equal(t, 0, e.runDue(t))
}

func TestReminderScheduler_PastInstantsAreNotScheduled(t *testing.T) {
	e := newEnv(t)
	task := e.insert(t, &model.Task{
		Title:           "Late",
		DueDate:         e.now.Add(-time.Hour),
		ReminderTime:    timePtr(e.now.Add(-2 * time.Hour)),
		NotifyOnDueDate: true,
	})

	e.reminders.OnTaskCreatedOrUpdated(e.ctx, task)

	assert.Zero(t, e.jobCount(t, task.ID))
}

func TestReminderScheduler_EditMovesReminder(t *testing.T) {
	e := newEnv(t)
	task := e.insert(t, &model.Task{
		Title:        "Dentist",
		DueDate:      e.now.Add(3 * time.Hour),
		ReminderTime: timePtr(e.now.Add(time.Hour)),
	})
	e.reminders.OnTaskCreatedOrUpdated(e.ctx, task)

	moved := e.now.Add(2 * time.Hour)
	_, err := e.reminders.Edit(e.ctx, task.ID, func(task *model.Task) error {
		task.ReminderTime = &moved
		return nil
	})
	require.NoError(t, err)

	job := e.pending(t, task.ID, model.KindReminder)
	require.NotNil(t, job)
	assert.True(t, job.FireAt.Equal(moved))

	e.now = e.now.Add(90 * time.Minute)
	assert.Equal(t, 0, e.runDue(t))
	e.now = e.now.Add(time.Hour)
	assert.Equal(t, 1, e.runDue(t))
}

func TestReminderScheduler_SnoozeAndUndo(t *testing.T) {
	e := newEnv(t)
	due := e.now.Add(2 * time.Hour)
	reminder := e.now.Add(90 * time.Minute)
	task := e.insert(t, &model.Task{Title: "Stretch", DueDate: due, ReminderTime: &reminder})
	e.reminders.OnTaskCreatedOrUpdated(e.ctx, task)

	snoozed, err := e.reminders.OnSnooze(e.ctx, task.ID, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, snoozed.IsSnoozed)
	assert.Equal(t, 1, snoozed.SnoozeCount)
	assert.True(t, snoozed.DueDate.Equal(e.now.Add(10*time.Minute)))
	require.NotNil(t, snoozed.ReminderTime)
	assert.True(t, snoozed.ReminderTime.Equal(e.now.Add(10*time.Minute)))

	e.now = e.now.Add(5 * time.Minute)
	again, err := e.reminders.OnSnooze(e.ctx, task.ID, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, again.SnoozeCount)
	require.NotNil(t, again.OriginalDueDate)
	assert.True(t, again.OriginalDueDate.Equal(due))

	job := e.pending(t, task.ID, model.KindReminder)
	require.NotNil(t, job)
	assert.True(t, job.FireAt.Equal(e.now.Add(10*time.Minute)))

	restored, err := e.reminders.OnUndoSnooze(e.ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsSnoozed)
	assert.Zero(t, restored.SnoozeCount)
	assert.True(t, restored.DueDate.Equal(due))
	require.NotNil(t, restored.ReminderTime)
	assert.True(t, restored.ReminderTime.Equal(reminder))
	assert.Nil(t, restored.OriginalDueDate)

	job = e.pending(t, task.ID, model.KindReminder)
	require.NotNil(t, job)
	assert.True(t, job.FireAt.Equal(reminder))
}

func TestReminderScheduler_SnoozeRejectsNonPositiveDuration(t *testing.T) {
	e := newEnv(t)
	task := e.insert(t, &model.Task{Title: "Nap", DueDate: e.now.Add(time.Hour)})

	_, err := e.reminders.OnSnooze(e.ctx, task.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidSnooze)
}

func TestReminderScheduler_SnoozeMissingTaskIsNoop(t *testing.T) {
	e := newEnv(t)

	task, err := e.reminders.OnSnooze(e.ctx, 404, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestReminderScheduler_UndoWithoutSnoozeIsNoop(t *testing.T) {
	e := newEnv(t)
	due := e.now.Add(time.Hour)
	task := e.insert(t, &model.Task{Title: "Read", DueDate: due})

	got, err := e.reminders.OnUndoSnooze(e.ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(due))
	assert.False(t, got.IsSnoozed)
}

func TestReminderScheduler_SnoozeCompletedTaskIsNoop(t *testing.T) {
	e := newEnv(t)
	task := e.insert(t, &model.Task{Title: "Done", DueDate: e.now.Add(time.Hour)})
	_, _, err := e.reminders.OnComplete(e.ctx, task.ID)
	require.NoError(t, err)

	got, err := e.reminders.OnSnooze(e.ctx, task.ID, time.Minute)
	require.NoError(t, err)
	assert.False(t, got.IsSnoozed)
	assert.Zero(t, got.SnoozeCount)
}

func TestReminderScheduler_CompleteOneTime(t *testing.T) {
	e := newEnv(t)
	task := e.insert(t, &model.Task{
		Title:           "Ship release",
		DueDate:         e.now.Add(2 * time.Hour),
		ReminderTime:    timePtr(e.now.Add(time.Hour)),
		NotifyOnDueDate: true,
	})
	e.reminders.OnTaskCreatedOrUpdated(e.ctx, task)

	done, next, err := e.reminders.OnComplete(e.ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletionDate)
	assert.True(t, done.CompletionDate.Equal(e.now))

	assert.Zero(t, e.jobCount(t, task.ID))

	e.now = e.now.Add(3 * time.Hour)
	assert.Equal(t, 0, e.runDue(t))

	again, next, err := e.reminders.OnComplete(e.ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.True(t, again.CompletionDate.Equal(*done.CompletionDate))
}

func TestReminderScheduler_CompleteAfterOccurrences(t *testing.T) {
	e := newEnv(t)
	rule := &model.RecurrenceRule{
		Type:            model.RepeatDaily,
		Interval:        1,
		End:             model.EndCondition{Type: model.EndAfterOccurrences, Count: 3},
		OccurrenceIndex: 1,
	}
	first := e.insert(t, &model.Task{
		Title:        "Vitamins",
		DueDate:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		ReminderTime: timePtr(time.Date(2024, 6, 1, 8, 45, 0, 0, time.UTC)),
		Repeat:       rule,
	})

	_, second, err := e.reminders.OnComplete(e.ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, second.SeriesID)
	assert.Equal(t, 2, second.Repeat.OccurrenceIndex)
	assert.True(t, second.DueDate.Equal(time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)))
	require.NotNil(t, second.ReminderTime)
	assert.True(t, second.ReminderTime.Equal(time.Date(2024, 6, 2, 8, 45, 0, 0, time.UTC)))
	assert.False(t, second.IsCompleted)
	require.NotNil(t, e.pending(t, second.ID, model.KindReminder))

	_, third, err := e.reminders.OnComplete(e.ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, 3, third.Repeat.OccurrenceIndex)

	_, fourth, err := e.reminders.OnComplete(e.ctx, third.ID)
	require.NoError(t, err)
	assert.Nil(t, fourth)

	open, err := e.tasks.ListOpen(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestReminderScheduler_CompleteMonthlyClampsEndOfMonth(t *testing.T) {
	e := newEnv(t)
	e.now = time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	task := e.insert(t, &model.Task{
		Title:   "Invoice",
		DueDate: time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
		Repeat:  &model.RecurrenceRule{Type: model.RepeatMonthly, Interval: 1, OccurrenceIndex: 1},
	})

	_, next, err := e.reminders.OnComplete(e.ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.DueDate.Equal(time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)))

	_, after, err := e.reminders.OnComplete(e.ctx, next.ID)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.True(t, after.DueDate.Equal(time.Date(2024, 3, 29, 10, 0, 0, 0, time.UTC)))
}

func TestReminderScheduler_CompleteSnoozedUsesOriginalDueDate(t *testing.T) {
	e := newEnv(t)
	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	task := e.insert(t, &model.Task{
		Title:   "Standup",
		DueDate: due,
		Repeat:  &model.RecurrenceRule{Type: model.RepeatDaily, Interval: 1, OccurrenceIndex: 1},
	})
	_, err := e.reminders.OnSnooze(e.ctx, task.ID, 3*time.Hour)
	require.NoError(t, err)

	_, next, err := e.reminders.OnComplete(e.ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.DueDate.Equal(due.AddDate(0, 0, 1)))
	assert.False(t, next.IsSnoozed)
	assert.Zero(t, next.SnoozeCount)
}

func TestReminderScheduler_DeleteCancelsEverything(t *testing.T) {
	e := newEnv(t)
	task := e.insert(t, &model.Task{
		Title:           "Gym",
		DueDate:         e.now.Add(2 * time.Hour),
		ReminderTime:    timePtr(e.now.Add(time.Hour)),
		NotifyOnDueDate: true,
	})
	e.reminders.OnTaskCreatedOrUpdated(e.ctx, task)

	require.NoError(t, e.reminders.OnDelete(e.ctx, task.ID))

	assert.Zero(t, e.jobCount(t, task.ID))
	_, err := e.tasks.GetByID(e.ctx, task.ID)
	assert.ErrorIs(t, err, repository.ErrTaskNotFound)

	e.now = e.now.Add(3 * time.Hour)
	assert.Equal(t, 0, e.runDue(t))
	assert.Zero(t, e.presenter.count())

	require.NoError(t, e.reminders.OnDelete(e.ctx, task.ID))
}

func TestReminderScheduler_ResyncRebuildsJobs(t *testing.T) {
	e := newEnv(t)
	a := e.insert(t, &model.Task{Title: "A", DueDate: e.now.Add(time.Hour), NotifyOnDueDate: true})
	b := e.insert(t, &model.Task{Title: "B", DueDate: e.now.Add(2 * time.Hour), ReminderTime: timePtr(e.now.Add(time.Hour))})

	open, err := e.tasks.ListOpen(e.ctx)
	require.NoError(t, err)
	e.reminders.Resync(e.ctx, open)

	assert.NotNil(t, e.pending(t, a.ID, model.KindDueDate))
	assert.Nil(t, e.pending(t, a.ID, model.KindReminder))
	assert.NotNil(t, e.pending(t, b.ID, model.KindReminder))
	assert.Nil(t, e.pending(t, b.ID, model.KindDueDate))
}

func TestReminderScheduler_GatewayFailureIsAbsorbed(t *testing.T) {
	e := newEnv(t)
	gw := &mockGateway{}
	gw.On("ScheduleAt", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	gw.On("Cancel", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	reminders := NewReminderScheduler(e.tasks, gw, lock.NewKeyed(), zap.NewNop(),
		WithClock(func() time.Time { return e.now }), WithLocation(time.UTC))

	task := e.insert(t, &model.Task{
		Title:        "Flaky",
		DueDate:      e.now.Add(2 * time.Hour),
		ReminderTime: timePtr(e.now.Add(time.Hour)),
	})
	reminders.OnTaskCreatedOrUpdated(e.ctx, task)

	snoozed, err := reminders.OnSnooze(e.ctx, task.ID, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, snoozed.IsSnoozed)

	done, _, err := reminders.OnComplete(e.ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)

	gw.AssertCalled(t, "ScheduleAt", mock.Anything,
		model.NotificationKey{TaskID: task.ID, Kind: model.KindReminder}, mock.Anything, mock.Anything)
}
