package service

import (
	"context"
	"strings"
	"time"

	"mytaskpro/internal/model"
	"mytaskpro/internal/recurrence"
	"mytaskpro/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title           string
	Description     string
	Category        string
	CategoryColor   string
	DueDate         time.Time
	ReminderTime    *time.Time
	NotifyOnDueDate bool
	Repeat          *model.RecurrenceRule
}

// TaskPatch lists the fields an edit may change. Nil fields are left alone.
type TaskPatch struct {
	Title           *string
	Description     *string
	DueDate         *time.Time
	ReminderTime    *time.Time
	ClearReminder   bool
	NotifyOnDueDate *bool
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo   *repository.TaskRepository
	categories *CategoryService
	reminders  *ReminderScheduler
}

func NewTaskService(taskRepo *repository.TaskRepository, categories *CategoryService, reminders *ReminderScheduler) *TaskService {
	return &TaskService{taskRepo: taskRepo, categories: categories, reminders: reminders}
}

func (s *TaskService) CreateTask(ctx context.Context, userID uint, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if input.Repeat != nil && !recurrence.Valid(*input.Repeat) {
		return nil, ErrInvalidRule
	}

	category, err := s.categories.Resolve(ctx, userID, input.Category, input.CategoryColor)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		UserID:          userID,
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		Category:        category,
		DueDate:         input.DueDate,
		ReminderTime:    input.ReminderTime,
		NotifyOnDueDate: input.NotifyOnDueDate,
	}
	if input.Repeat != nil && input.Repeat.Type != model.RepeatOneTime {
		rule := *input.Repeat
		rule.OccurrenceIndex = 1
		task.Repeat = &rule
	}

	if _, err := s.taskRepo.Insert(ctx, &task); err != nil {
		return nil, err
	}
	if task.IsRecurring() {
		task.SeriesID = task.ID
		if err := s.taskRepo.Update(ctx, &task); err != nil {
			return nil, err
		}
	}

	s.reminders.OnTaskCreatedOrUpdated(ctx, &task)
	return &task, nil
}

// UpdateTask applies patch and reschedules the task's deliveries.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID uint, patch TaskPatch) (*model.Task, error) {
	return s.reminders.Edit(ctx, taskID, func(task *model.Task) error {
		if task.UserID != userID {
			return repository.ErrTaskNotFound
		}
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return ErrTitleRequired
			}
			task.Title = title
		}
		if patch.Description != nil {
			task.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.DueDate != nil {
			task.DueDate = *patch.DueDate
		}
		if patch.ClearReminder {
			task.ReminderTime = nil
		} else if patch.ReminderTime != nil {
			reminder := *patch.ReminderTime
			task.ReminderTime = &reminder
		}
		if patch.NotifyOnDueDate != nil {
			task.NotifyOnDueDate = *patch.NotifyOnDueDate
		}
		return nil
	})
}

// GetTask returns the task if it belongs to userID.
func (s *TaskService) GetTask(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, repository.ErrTaskNotFound
	}
	return task, nil
}

// Upcoming lists open tasks due at or after now across all users, soonest first.
func (s *TaskService) Upcoming(ctx context.Context, limit int, now time.Time) ([]model.Task, error) {
	return s.taskRepo.ListUpcoming(ctx, limit, now)
}

func (s *TaskService) UpcomingForUser(ctx context.Context, userID uint, limit int, now time.Time) ([]model.Task, error) {
	return s.taskRepo.ListUpcomingByUser(ctx, userID, limit, now)
}

func (s *TaskService) CompleteTask(ctx context.Context, userID, taskID uint) (*model.Task, *model.Task, error) {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return nil, nil, err
	}
	done, next, err := s.reminders.OnComplete(ctx, taskID)
	if err == nil && done == nil {
		return nil, nil, repository.ErrTaskNotFound
	}
	return done, next, err
}

func (s *TaskService) SnoozeTask(ctx context.Context, userID, taskID uint, d time.Duration) (*model.Task, error) {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	task, err := s.reminders.OnSnooze(ctx, taskID, d)
	if err == nil && task == nil {
		return nil, repository.ErrTaskNotFound
	}
	return task, err
}

func (s *TaskService) UndoSnooze(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	task, err := s.reminders.OnUndoSnooze(ctx, taskID)
	if err == nil && task == nil {
		return nil, repository.ErrTaskNotFound
	}
	return task, err
}

// DeleteTask cancels the task's deliveries and removes it.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID uint) error {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return err
	}
	return s.reminders.OnDelete(ctx, taskID)
}

// ResyncDeliveries rebuilds the delivery schedule from the open tasks.
func (s *TaskService) ResyncDeliveries(ctx context.Context) (int, error) {
	tasks, err := s.taskRepo.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	s.reminders.Resync(ctx, tasks)
	return len(tasks), nil
}
