package model

import "time"

// RepeatType selects the calendar unit a rule advances by.
type RepeatType string

const (
	RepeatOneTime  RepeatType = "ONE_TIME"
	RepeatDaily    RepeatType = "DAILY"
	RepeatWeekdays RepeatType = "WEEKDAYS"
	RepeatWeekly   RepeatType = "WEEKLY"
	RepeatMonthly  RepeatType = "MONTHLY"
	RepeatYearly   RepeatType = "YEARLY"
)

// EndType decides when a series stops.
type EndType string

const (
	EndNever            EndType = "NEVER"
	EndByDate           EndType = "BY_DATE"
	EndAfterOccurrences EndType = "AFTER_OCCURRENCES"
)

// EndCondition bounds a recurring series.
type EndCondition struct {
	Type  EndType    `json:"type"`
	Until *time.Time `json:"until,omitempty"`
	Count int        `json:"count,omitempty"`
}

// RecurrenceRule is stored as a JSON blob on the owning task.
type RecurrenceRule struct {
	Type     RepeatType     `json:"type"`
	Interval int            `json:"interval"`
	WeekDays []time.Weekday `json:"week_days,omitempty"`
	// MonthDay anchors MONTHLY and YEARLY rules to a fixed day (0 = follow the previous occurrence).
	MonthDay int `json:"month_day,omitempty"`
	// MonthWeek (1-5) and MonthWeekDay (0 = Sunday) describe "nth weekday of
	// month". They are stored and returned but the calculator does not read them.
	MonthWeek    int          `json:"month_week,omitempty"`
	MonthWeekDay int          `json:"month_week_day,omitempty"`
	End          EndCondition `json:"end"`
	// OccurrenceIndex is the 1-based position of the owning task in its series.
	OccurrenceIndex int `json:"occurrence_index"`
}

// NextInSeries returns a copy of the rule for the following occurrence.
func (r RecurrenceRule) NextInSeries() *RecurrenceRule {
	next := r
	if len(r.WeekDays) > 0 {
		next.WeekDays = append([]time.Weekday(nil), r.WeekDays...)
	}
	if r.End.Until != nil {
		until := *r.End.Until
		next.End.Until = &until
	}
	if next.OccurrenceIndex < 1 {
		next.OccurrenceIndex = 1
	}
	next.OccurrenceIndex++
	return &next
}
