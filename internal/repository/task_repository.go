package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"mytaskpro/internal/model"
)

// TaskRepository stores task occurrences.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Insert stores a new task and returns its id.
func (r *TaskRepository) Insert(ctx context.Context, task *model.Task) (uint, error) {
	task.ID = 0
	normalizeTimes(task)
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	return task.ID, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// Update writes every column of task. A missing row is reported as ErrTaskNotFound
// rather than re-created.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	normalizeTimes(task)
	res := r.db.WithContext(ctx).Model(task).Select("*").Omit("id", "created_at").Updates(task)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Delete removes a task. Deleting a missing task is not an error.
func (r *TaskRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, id).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListUpcoming returns open tasks due at or after now, soonest first.
func (r *TaskRepository) ListUpcoming(ctx context.Context, limit int, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	query := r.db.WithContext(ctx).
		Where("is_completed = ? AND due_date >= ?", false, now.UTC()).
		Order("due_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list upcoming tasks: %w", err)
	}
	return tasks, nil
}

// ListUpcomingByUser is ListUpcoming restricted to one owner.
func (r *TaskRepository) ListUpcomingByUser(ctx context.Context, userID uint, limit int, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND is_completed = ? AND due_date >= ?", userID, false, now.UTC()).
		Order("due_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list upcoming tasks: %w", err)
	}
	return tasks, nil
}

// ListOpen returns every task that is not completed. Used to rebuild deliveries at startup.
func (r *TaskRepository) ListOpen(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("is_completed = ?", false).Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	return tasks, nil
}

// normalizeTimes stores instants in UTC so SQLite text comparisons order correctly.
func normalizeTimes(task *model.Task) {
	task.DueDate = task.DueDate.UTC()
	task.ReminderTime = utcPtr(task.ReminderTime)
	task.CompletionDate = utcPtr(task.CompletionDate)
	task.OriginalDueDate = utcPtr(task.OriginalDueDate)
	task.OriginalReminderTime = utcPtr(task.OriginalReminderTime)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
