// Package recurrence computes the next occurrence of a repeating task.
package recurrence

import (
	"sort"
	"time"

	"mytaskpro/internal/model"
)

// Next returns the occurrence that follows current under rule. The boolean is
// false when the series has ended or the rule cannot be evaluated.
func Next(current time.Time, rule model.RecurrenceRule) (time.Time, bool) {
	if !Valid(rule) || rule.Type == model.RepeatOneTime {
		return time.Time{}, false
	}
	if rule.End.Type == model.EndAfterOccurrences && occurrenceIndex(rule) >= rule.End.Count {
		return time.Time{}, false
	}

	var next time.Time
	switch rule.Type {
	case model.RepeatDaily:
		next = current.AddDate(0, 0, rule.Interval)
	case model.RepeatWeekdays:
		next = nextWeekday(current)
	case model.RepeatWeekly:
		next = nextWeekly(current, rule.Interval, rule.WeekDays)
	case model.RepeatMonthly:
		next = addMonths(current, rule.Interval, anchorDay(current, rule))
	case model.RepeatYearly:
		next = addMonths(current, 12*rule.Interval, anchorDay(current, rule))
	}

	if rule.End.Type == model.EndByDate && afterDay(next, *rule.End.Until) {
		return time.Time{}, false
	}
	return next, true
}

// afterDay reports whether t falls on a calendar day later than until, both
// read in t's location.
func afterDay(t, until time.Time) bool {
	y, m, d := until.In(t.Location()).Date()
	return !t.Before(time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()))
}

// Valid reports whether every field of rule is in range.
func Valid(rule model.RecurrenceRule) bool {
	switch rule.Type {
	case model.RepeatOneTime:
		return true
	case model.RepeatDaily, model.RepeatWeekdays, model.RepeatWeekly, model.RepeatMonthly, model.RepeatYearly:
	default:
		return false
	}
	if rule.Interval <= 0 || rule.MonthDay < 0 || rule.MonthDay > 31 {
		return false
	}
	if rule.MonthWeek < 0 || rule.MonthWeek > 5 || rule.MonthWeekDay < 0 || rule.MonthWeekDay > 6 {
		return false
	}
	for _, d := range rule.WeekDays {
		if d < time.Sunday || d > time.Saturday {
			return false
		}
	}
	switch rule.End.Type {
	case "", model.EndNever:
	case model.EndByDate:
		if rule.End.Until == nil {
			return false
		}
	case model.EndAfterOccurrences:
		if rule.End.Count <= 0 {
			return false
		}
	default:
		return false
	}
	return true
}

func occurrenceIndex(rule model.RecurrenceRule) int {
	if rule.OccurrenceIndex < 1 {
		return 1
	}
	return rule.OccurrenceIndex
}

func anchorDay(current time.Time, rule model.RecurrenceRule) int {
	if rule.MonthDay > 0 {
		return rule.MonthDay
	}
	return current.Day()
}

// addMonths moves t by n months and lands on day, clamped to the month length.
func addMonths(t time.Time, n, day int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := DaysInMonth(first.Month(), first.Year()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func nextWeekday(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// mondayIndex maps Monday..Sunday to 0..6.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func nextWeekly(t time.Time, interval int, days []time.Weekday) time.Time {
	if len(days) == 0 {
		return t.AddDate(0, 0, 7*interval)
	}

	idx := make([]int, 0, len(days))
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		i := mondayIndex(d)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)

	today := mondayIndex(t.Weekday())
	for _, i := range idx {
		if i > today {
			return t.AddDate(0, 0, i-today)
		}
	}
	// Nothing left this week: go to the Monday interval weeks later.
	return t.AddDate(0, 0, 7*interval-today+idx[0])
}

// DaysInMonth returns the number of days in month of year.
func DaysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	firstOfNextMonth := firstOfMonth.AddDate(0, 1, 0)
	lastOfMonth := firstOfNextMonth.AddDate(0, 0, -1)
	return lastOfMonth.Day()
}
