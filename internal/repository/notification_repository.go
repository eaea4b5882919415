package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mytaskpro/internal/model"
)

// NotificationRepository keeps the durable delivery schedule in SQLite.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Upsert replaces the pending delivery stored under the same (task, kind) key.
func (r *NotificationRepository) Upsert(ctx context.Context, n model.ScheduledNotification) error {
	n.ID = 0
	n.FireAt = n.FireAt.UTC()
	n.Payload.ScheduledFor = n.Payload.ScheduledFor.UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"fire_at", "token", "payload", "attempts", "updated_at"}),
	}).Create(&n).Error
	if err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) Remove(ctx context.Context, key model.NotificationKey) error {
	if err := r.db.WithContext(ctx).
		Where("task_id = ? AND kind = ?", key.TaskID, key.Kind).
		Delete(&model.ScheduledNotification{}).Error; err != nil {
		return fmt.Errorf("remove notification: %w", err)
	}
	return nil
}

// Due lists deliveries whose fire time has passed, oldest first.
func (r *NotificationRepository) Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledNotification, error) {
	var due []model.ScheduledNotification
	query := r.db.WithContext(ctx).Where("fire_at <= ?", now.UTC()).Order("fire_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&due).Error; err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	return due, nil
}

// Claim deletes n only if it still carries the same token. It reports whether
// this caller won the delivery.
func (r *NotificationRepository) Claim(ctx context.Context, n model.ScheduledNotification) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("task_id = ? AND kind = ? AND token = ?", n.TaskID, n.Kind, n.Token).
		Delete(&model.ScheduledNotification{})
	if res.Error != nil {
		return false, fmt.Errorf("claim notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Restore re-inserts a claimed job. A job stored under the same key since the
// claim wins and Restore reports false.
func (r *NotificationRepository) Restore(ctx context.Context, n model.ScheduledNotification) (bool, error) {
	n.ID = 0
	n.FireAt = n.FireAt.UTC()
	n.Payload.ScheduledFor = n.Payload.ScheduledFor.UTC()
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&n)
	if res.Error != nil {
		return false, fmt.Errorf("restore notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *NotificationRepository) Pending(ctx context.Context, taskID uint) ([]model.ScheduledNotification, error) {
	var jobs []model.ScheduledNotification
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("fire_at ASC, id ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list task notifications: %w", err)
	}
	return jobs, nil
}
