package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mytaskpro/internal/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestTaskRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))

	due := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	reminder := due.Add(-time.Hour)
	task := &model.Task{
		UserID:          1,
		Title:           "Pay rent",
		Category:        model.BuiltinCategory(model.TagPersonal),
		DueDate:         due,
		ReminderTime:    &reminder,
		NotifyOnDueDate: true,
		Repeat: &model.RecurrenceRule{
			Type:            model.RepeatMonthly,
			Interval:        1,
			MonthDay:        31,
			End:             model.EndCondition{Type: model.EndAfterOccurrences, Count: 12},
			OccurrenceIndex: 1,
		},
	}

	id, err := repo.Insert(ctx, task)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pay rent", got.Title)
	assert.True(t, due.Equal(got.DueDate))
	require.NotNil(t, got.ReminderTime)
	assert.True(t, reminder.Equal(*got.ReminderTime))
	assert.Equal(t, model.CategoryBuiltin, got.Category.Kind)
	assert.Equal(t, model.TagPersonal, got.Category.Tag)
	require.NotNil(t, got.Repeat)
	assert.Equal(t, model.RepeatMonthly, got.Repeat.Type)
	assert.Equal(t, 31, got.Repeat.MonthDay)
	assert.Equal(t, 12, got.Repeat.End.Count)

	got.IsSnoozed = true
	got.SnoozeCount = 2
	got.ReminderTime = nil
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, again.IsSnoozed)
	assert.Equal(t, 2, again.SnoozeCount)
	assert.Nil(t, again.ReminderTime)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.GetByID(ctx, id)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// Updating a deleted row must not bring it back.
	assert.ErrorIs(t, repo.Update(ctx, again), ErrTaskNotFound)
	_, err = repo.GetByID(ctx, id)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.NoError(t, repo.Delete(ctx, id))
}

func TestTaskRepository_ListUpcoming(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	completedAt := now
	seed := []model.Task{
		{UserID: 1, Title: "later", DueDate: now.Add(48 * time.Hour)},
		{UserID: 1, Title: "overdue", DueDate: now.Add(-time.Hour)},
		{UserID: 2, Title: "soon", DueDate: now.Add(time.Hour)},
		{UserID: 1, Title: "done", DueDate: now.Add(2 * time.Hour), IsCompleted: true, CompletionDate: &completedAt},
		{UserID: 1, Title: "tomorrow", DueDate: now.Add(24 * time.Hour).In(time.FixedZone("UTC+5", 5*3600))},
	}
	for i := range seed {
		_, err := repo.Insert(ctx, &seed[i])
		require.NoError(t, err)
	}

	tasks, err := repo.ListUpcoming(ctx, 10, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"soon", "tomorrow", "later"}, titles(tasks))

	tasks, err = repo.ListUpcoming(ctx, 2, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"soon", "tomorrow"}, titles(tasks))

	tasks, err = repo.ListUpcomingByUser(ctx, 1, 0, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"tomorrow", "later"}, titles(tasks))

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 4)
}

func TestNotificationRepository_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(setupTestDB(t))
	key := model.NotificationKey{TaskID: 5, Kind: model.KindReminder}
	first := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, model.ScheduledNotification{
		TaskID: 5, Kind: model.KindReminder, FireAt: first, Token: "a",
		Payload: model.NotificationPayload{TaskID: 5, Kind: model.KindReminder, Title: "t", ScheduledFor: first},
	}))
	require.NoError(t, repo.Upsert(ctx, model.ScheduledNotification{
		TaskID: 5, Kind: model.KindReminder, FireAt: first.Add(time.Hour), Token: "b",
		Payload: model.NotificationPayload{TaskID: 5, Kind: model.KindReminder, Title: "t2", ScheduledFor: first.Add(time.Hour)},
	}))
	require.NoError(t, repo.Upsert(ctx, model.ScheduledNotification{
		TaskID: 5, Kind: model.KindDueDate, FireAt: first, Token: "c",
	}))

	pending, err := repo.Pending(ctx, 5)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, model.KindDueDate, pending[0].Kind)
	assert.Equal(t, "b", pending[1].Token)
	assert.Equal(t, "t2", pending[1].Payload.Title)
	assert.True(t, first.Add(time.Hour).Equal(pending[1].FireAt))

	require.NoError(t, repo.Remove(ctx, key))
	require.NoError(t, repo.Remove(ctx, key))
	pending, err = repo.Pending(ctx, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].Token)
}

func TestNotificationRepository_Restore(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(setupTestDB(t))
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	job := model.ScheduledNotification{TaskID: 3, Kind: model.KindReminder, FireAt: now, Token: "old"}

	require.NoError(t, repo.Upsert(ctx, job))
	won, err := repo.Claim(ctx, job)
	require.NoError(t, err)
	require.True(t, won)

	job.FireAt = now.Add(time.Minute)
	job.Attempts = 1
	restored, err := repo.Restore(ctx, job)
	require.NoError(t, err)
	assert.True(t, restored)

	pending, err := repo.Pending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "old", pending[0].Token)

	// A reschedule after the claim takes the slot; the retry must not clobber it.
	require.NoError(t, repo.Upsert(ctx, model.ScheduledNotification{TaskID: 3, Kind: model.KindReminder, FireAt: now.Add(time.Hour), Token: "new"}))
	restored, err = repo.Restore(ctx, job)
	require.NoError(t, err)
	assert.False(t, restored)

	pending, err = repo.Pending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "new", pending[0].Token)
	assert.Zero(t, pending[0].Attempts)
}

func TestNotificationRepository_DueAndClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(setupTestDB(t))
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{-time.Minute, -time.Hour, time.Hour} {
		require.NoError(t, repo.Upsert(ctx, model.ScheduledNotification{
			TaskID: uint(i + 1), Kind: model.KindReminder, FireAt: now.Add(offset), Token: fmt.Sprintf("tok-%d", i),
		}))
	}

	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, uint(2), due[0].TaskID)
	assert.Equal(t, uint(1), due[1].TaskID)

	stale := due[0]
	stale.Token = "replaced"
	ok, err := repo.Claim(ctx, stale)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Claim(ctx, due[0])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, due[0])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCategoryRepository_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewCategoryRepository(setupTestDB(t))

	created, err := repo.GetOrCreate(ctx, 1, "Garden", "#00ff00")
	require.NoError(t, err)
	again, err := repo.GetOrCreate(ctx, 1, "Garden", "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "#00ff00", again.Color)

	recolored, err := repo.GetOrCreate(ctx, 1, "Garden", "#ff0000")
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", recolored.Color)

	_, err = repo.GetOrCreate(ctx, 2, "Garden", "")
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	none, err := repo.GetOrCreate(ctx, 1, "", "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUserRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t))

	user, err := repo.UpsertFromTelegram(ctx, 42, "Ann", "", "ann")
	require.NoError(t, err)
	again, err := repo.UpsertFromTelegram(ctx, 42, "Ann", "Lee", "ann")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lee", got.LastName)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.UpsertFromTelegram(ctx, 7, "Bo", "", "")
	require.NoError(t, err)
	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(42), all[0].TelegramID)
	assert.True(t, all[0].DigestEnabled)

	require.NoError(t, repo.SetDigest(ctx, user.ID, false))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.DigestEnabled)
	assert.ErrorIs(t, repo.SetDigest(ctx, 999, true), ErrUserNotFound)
}

func titles(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}
