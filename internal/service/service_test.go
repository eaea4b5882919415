package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mytaskpro/internal/delivery"
	"mytaskpro/internal/lock"
	"mytaskpro/internal/model"
	"mytaskpro/internal/repository"
)

type recordingPresenter struct {
	mu    sync.Mutex
	shown []model.NotificationPayload
}

func (p *recordingPresenter) Present(_ context.Context, _ *model.Task, payload model.NotificationPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, payload)
	return nil
}

func (p *recordingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.shown)
}

type env struct {
	ctx        context.Context
	now        time.Time
	tasks      *repository.TaskRepository
	jobs       *repository.NotificationRepository
	presenter  *recordingPresenter
	dispatcher *delivery.Dispatcher
	reminders  *ReminderScheduler
	service    *TaskService
}

func newEnv(t *testing.T, opts ...delivery.Option) *env {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	e := &env{
		ctx:       context.Background(),
		now:       time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		tasks:     repository.NewTaskRepository(db),
		jobs:      repository.NewNotificationRepository(db),
		presenter: &recordingPresenter{},
	}
	clock := func() time.Time { return e.now }
	locks := lock.NewKeyed()
	e.dispatcher = delivery.NewDispatcher(e.jobs, e.tasks, e.presenter, locks, zap.NewNop(),
		append([]delivery.Option{delivery.WithClock(clock)}, opts...)...)
	e.reminders = NewReminderScheduler(e.tasks, e.dispatcher, locks, zap.NewNop(),
		WithClock(clock), WithLocation(time.UTC))
	categories := NewCategoryService(repository.NewCategoryRepository(db))
	e.service = NewTaskService(e.tasks, categories, e.reminders)
	return e
}

func (e *env) pending(t *testing.T, taskID uint, kind model.NotificationKind) *model.ScheduledNotification {
	t.Helper()
	jobs, err := e.jobs.Pending(e.ctx, taskID)
	require.NoError(t, err)
	for i := range jobs {
		if jobs[i].Kind == kind {
			return &jobs[i]
		}
	}
	return nil
}

func (e *env) jobCount(t *testing.T, taskID uint) int {
	t.Helper()
	jobs, err := e.jobs.Pending(e.ctx, taskID)
	require.NoError(t, err)
	return len(jobs)
}

func (e *env) runDue(t *testing.T) int {
	t.Helper()
	n, err := e.dispatcher.RunDue(e.ctx)
	require.NoError(t, err)
	return n
}

func timePtr(t time.Time) *time.Time {
	return &t
}
