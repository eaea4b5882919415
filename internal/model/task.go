package model

import "time"

// Task is one concrete occurrence of a user's task. Recurring series are
// materialized as one row per occurrence linked by SeriesID.
type Task struct {
	ID              uint `gorm:"primaryKey"`
	UserID          uint `gorm:"index"`
	SeriesID        uint `gorm:"index"`
	Title           string
	Description     string
	Category        Category  `gorm:"embedded;embeddedPrefix:category_"`
	DueDate         time.Time `gorm:"index"`
	ReminderTime    *time.Time
	IsCompleted     bool `gorm:"default:false"`
	CompletionDate  *time.Time
	IsSnoozed       bool            `gorm:"default:false"`
	SnoozeCount     int             `gorm:"default:0"`
	NotifyOnDueDate bool            `gorm:"default:false"`
	Repeat          *RecurrenceRule `gorm:"serializer:json"`

	// Pre-snooze values, kept so a snooze can be undone.
	OriginalDueDate      *time.Time
	OriginalReminderTime *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRecurring reports whether completing the task may produce another occurrence.
func (t *Task) IsRecurring() bool {
	return t.Repeat != nil && t.Repeat.Type != RepeatOneTime
}

// AnchorDueDate is the due date the series is computed from, ignoring snoozes.
func (t *Task) AnchorDueDate() time.Time {
	if t.IsSnoozed && t.OriginalDueDate != nil {
		return *t.OriginalDueDate
	}
	return t.DueDate
}

// AnchorReminderTime is the reminder time before any snooze.
func (t *Task) AnchorReminderTime() *time.Time {
	if t.IsSnoozed {
		return t.OriginalReminderTime
	}
	return t.ReminderTime
}
