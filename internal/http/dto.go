package http

import (
	"time"

	"mytaskpro/internal/model"
)

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Title           string             `json:"title" validate:"required,max=200"`
	Description     string             `json:"description" validate:"max=2000"`
	Category        string             `json:"category" validate:"max=64"`
	CategoryColor   string             `json:"category_color" validate:"omitempty,hexcolor"`
	DueDate         time.Time          `json:"due_date"`
	ReminderTime    *time.Time         `json:"reminder_time"`
	NotifyOnDueDate bool               `json:"notify_on_due_date"`
	Repeat          *RecurrenceRequest `json:"repeat"`
}

// RecurrenceRequest describes a repeat rule on the wire.
type RecurrenceRequest struct {
	Type         string     `json:"type" validate:"required,oneof=ONE_TIME DAILY WEEKDAYS WEEKLY MONTHLY YEARLY"`
	Interval     int        `json:"interval" validate:"min=0,max=1000"`
	WeekDays     []int      `json:"week_days" validate:"dive,min=0,max=6"`
	MonthDay     int        `json:"month_day" validate:"min=0,max=31"`
	MonthWeek    int        `json:"month_week" validate:"min=0,max=5"`
	MonthWeekDay int        `json:"month_week_day" validate:"min=0,max=6"`
	EndType      string     `json:"end_type" validate:"omitempty,oneof=NEVER BY_DATE AFTER_OCCURRENCES"`
	Until        *time.Time `json:"until"`
	Count        int        `json:"count" validate:"min=0"`
}

// UpdateTaskRequest is the body of PATCH /tasks/:id. Absent fields are unchanged.
type UpdateTaskRequest struct {
	Title           *string    `json:"title" validate:"omitempty,max=200"`
	Description     *string    `json:"description" validate:"omitempty,max=2000"`
	DueDate         *time.Time `json:"due_date"`
	ReminderTime    *time.Time `json:"reminder_time"`
	ClearReminder   bool       `json:"clear_reminder"`
	NotifyOnDueDate *bool      `json:"notify_on_due_date"`
}

// SnoozeRequest is the optional body of POST /tasks/:id/snooze.
type SnoozeRequest struct {
	Minutes int `json:"minutes" validate:"min=0,max=10080"`
}

// TaskResponse is the JSON view of a task.
type TaskResponse struct {
	ID              uint                  `json:"id"`
	SeriesID        uint                  `json:"series_id,omitempty"`
	Title           string                `json:"title"`
	Description     string                `json:"description,omitempty"`
	Category        string                `json:"category"`
	CategoryColor   string                `json:"category_color,omitempty"`
	DueDate         time.Time             `json:"due_date"`
	ReminderTime    *time.Time            `json:"reminder_time,omitempty"`
	NotifyOnDueDate bool                  `json:"notify_on_due_date"`
	IsCompleted     bool                  `json:"is_completed"`
	CompletionDate  *time.Time            `json:"completion_date,omitempty"`
	IsSnoozed       bool                  `json:"is_snoozed"`
	SnoozeCount     int                   `json:"snooze_count"`
	Repeat          *model.RecurrenceRule `json:"repeat,omitempty"`
	Deliveries      []DeliveryResponse    `json:"deliveries,omitempty"`
}

// DeliveryResponse is one notification still scheduled for a task.
type DeliveryResponse struct {
	Kind     string    `json:"kind"`
	FireAt   time.Time `json:"fire_at"`
	Attempts int       `json:"attempts,omitempty"`
}

// CompleteResponse carries the completed task and the next occurrence, if any.
type CompleteResponse struct {
	Task *TaskResponse `json:"task"`
	Next *TaskResponse `json:"next,omitempty"`
}

func (r *RecurrenceRequest) toRule() *model.RecurrenceRule {
	rule := &model.RecurrenceRule{
		Type:         model.RepeatType(r.Type),
		Interval:     r.Interval,
		MonthDay:     r.MonthDay,
		MonthWeek:    r.MonthWeek,
		MonthWeekDay: r.MonthWeekDay,
		End: model.EndCondition{
			Type:  model.EndType(r.EndType),
			Until: r.Until,
			Count: r.Count,
		},
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if rule.End.Type == "" {
		rule.End.Type = model.EndNever
	}
	for _, d := range r.WeekDays {
		rule.WeekDays = append(rule.WeekDays, time.Weekday(d))
	}
	return rule
}

func newDeliveryResponses(jobs []model.ScheduledNotification) []DeliveryResponse {
	out := make([]DeliveryResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, DeliveryResponse{Kind: string(j.Kind), FireAt: j.FireAt, Attempts: j.Attempts})
	}
	return out
}

func newTaskResponse(t *model.Task) *TaskResponse {
	if t == nil {
		return nil
	}
	return &TaskResponse{
		ID:              t.ID,
		SeriesID:        t.SeriesID,
		Title:           t.Title,
		Description:     t.Description,
		Category:        t.Category.Label(),
		CategoryColor:   t.Category.Color,
		DueDate:         t.DueDate,
		ReminderTime:    t.ReminderTime,
		NotifyOnDueDate: t.NotifyOnDueDate,
		IsCompleted:     t.IsCompleted,
		CompletionDate:  t.CompletionDate,
		IsSnoozed:       t.IsSnoozed,
		SnoozeCount:     t.SnoozeCount,
		Repeat:          t.Repeat,
	}
}
