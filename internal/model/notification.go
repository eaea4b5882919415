package model

import "time"

// NotificationKind distinguishes the two deliveries a task can have.
type NotificationKind string

const (
	KindReminder NotificationKind = "REMINDER"
	KindDueDate  NotificationKind = "DUE_DATE"
)

// NotificationKinds lists every kind, in cancellation order.
var NotificationKinds = []NotificationKind{KindReminder, KindDueDate}

// NotificationKey identifies the single pending delivery slot of a task.
type NotificationKey struct {
	TaskID uint             `json:"task_id"`
	Kind   NotificationKind `json:"kind"`
}

// NotificationPayload is what is shown to the user when a delivery fires.
type NotificationPayload struct {
	TaskID uint             `json:"task_id"`
	Kind   NotificationKind `json:"kind"`
	Title  string           `json:"title"`
	Body   string           `json:"body,omitempty"`
	// ScheduledFor is the task instant the delivery was created for.
	ScheduledFor time.Time `json:"scheduled_for"`
}

// ScheduledNotification is a durable pending delivery. Token changes on every
// reschedule so a stale copy cannot be claimed.
type ScheduledNotification struct {
	ID        uint                `gorm:"primaryKey" json:"-"`
	TaskID    uint                `gorm:"uniqueIndex:idx_notification_key" json:"task_id"`
	Kind      NotificationKind    `gorm:"size:16;uniqueIndex:idx_notification_key" json:"kind"`
	FireAt    time.Time           `gorm:"index" json:"fire_at"`
	Token     string              `gorm:"size:36" json:"token"`
	Payload   NotificationPayload `gorm:"serializer:json" json:"payload"`
	// Attempts counts failed presentations of this job.
	Attempts  int                 `gorm:"not null;default:0" json:"attempts,omitempty"`
	CreatedAt time.Time           `json:"-"`
	UpdatedAt time.Time           `json:"-"`
}

func (n ScheduledNotification) Key() NotificationKey {
	return NotificationKey{TaskID: n.TaskID, Kind: n.Kind}
}
