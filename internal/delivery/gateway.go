// Package delivery keeps the durable notification schedule and fires due
// notifications exactly once per (task, kind) slot.
package delivery

import (
	"context"
	"time"

	"mytaskpro/internal/model"
)

// Gateway is what the reminder scheduler needs from the delivery platform.
type Gateway interface {
	// ScheduleAt replaces any pending delivery under key.
	ScheduleAt(ctx context.Context, key model.NotificationKey, when time.Time, payload model.NotificationPayload) error
	// Cancel removes the pending delivery under key, if any.
	Cancel(ctx context.Context, key model.NotificationKey) error
}

// JobStore is the durable side of the schedule.
type JobStore interface {
	Upsert(ctx context.Context, n model.ScheduledNotification) error
	Remove(ctx context.Context, key model.NotificationKey) error
	Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledNotification, error)
	// Claim removes n if its token still matches and reports whether it did.
	Claim(ctx context.Context, n model.ScheduledNotification) (bool, error)
	// Restore puts a claimed job back unless its slot was filled again meanwhile.
	Restore(ctx context.Context, n model.ScheduledNotification) (bool, error)
	// Pending lists the jobs of one task, earliest first.
	Pending(ctx context.Context, taskID uint) ([]model.ScheduledNotification, error)
}

// TaskLookup reads the current state of a task when a delivery fires.
type TaskLookup interface {
	GetByID(ctx context.Context, id uint) (*model.Task, error)
}

// Presenter shows a notification with Complete and Snooze actions.
type Presenter interface {
	Present(ctx context.Context, task *model.Task, payload model.NotificationPayload) error
}

// Locker serializes work on one task.
type Locker interface {
	Lock(key uint) func()
}
