package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mytaskpro/internal/model"
)

const (
	cbCompletePrefix = "complete:"
	cbSnoozePrefix   = "snooze:"
	cbUndoPrefix     = "undo:"
	cbDeletePrefix   = "delete:"
)

const (
	dateLayout = "2006-01-02 15:04"

	iconDefault   = "🟢"
	iconDue       = "⏳"
	iconOverdue   = "⚠️"
	iconRecurring = "♻️"
	iconReminder  = "🔔"

	menuLabelUpcoming   = "📋 Upcoming"
	menuLabelCategories = "📂 Categories"
	menuLabelHelp       = "ℹ️ Help"
)

var errAddUsage = errors.New("usage: /add Title | 2006-01-02 15:04 [| daily|weekdays|weekly|monthly|yearly [N]] [| 30m]")

// addCommand is a parsed /add request.
type addCommand struct {
	Title    string
	Category string
	DueDate  time.Time
	Repeat   *model.RecurrenceRule
	Lead     time.Duration
}

// parseAddCommand parses "Title[#category] | date [| rule] [| lead]". The date is read in loc.
func parseAddCommand(args string, loc *time.Location) (addCommand, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 2 || len(parts) > 4 {
		return addCommand{}, errAddUsage
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var cmd addCommand
	cmd.Title, cmd.Category = splitCategory(parts[0])
	if cmd.Title == "" {
		return addCommand{}, errAddUsage
	}

	due, err := time.ParseInLocation(dateLayout, parts[1], loc)
	if err != nil {
		return addCommand{}, fmt.Errorf("bad date %q, expected %s", parts[1], dateLayout)
	}
	cmd.DueDate = due

	for _, extra := range parts[2:] {
		if extra == "" {
			continue
		}
		if lead, err := time.ParseDuration(extra); err == nil {
			if lead < 0 {
				return addCommand{}, fmt.Errorf("reminder lead must not be negative")
			}
			cmd.Lead = lead
			continue
		}
		rule, err := parseRule(extra, due)
		if err != nil {
			return addCommand{}, err
		}
		cmd.Repeat = rule
	}
	return cmd, nil
}

// splitCategory splits a trailing "#tag" off the title.
func splitCategory(raw string) (string, string) {
	idx := strings.LastIndex(raw, "#")
	if idx < 0 {
		return strings.TrimSpace(raw), ""
	}
	return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx+1:])
}

func parseRule(raw string, due time.Time) (*model.RecurrenceRule, error) {
	fields := strings.Fields(strings.ToLower(raw))
	interval := 1
	if len(fields) == 2 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad interval %q", fields[1])
		}
		interval = n
	} else if len(fields) != 1 {
		return nil, fmt.Errorf("bad repeat rule %q", raw)
	}

	rule := &model.RecurrenceRule{Interval: interval, End: model.EndCondition{Type: model.EndNever}}
	switch fields[0] {
	case "daily":
		rule.Type = model.RepeatDaily
	case "weekdays":
		rule.Type = model.RepeatWeekdays
	case "weekly":
		rule.Type = model.RepeatWeekly
		rule.WeekDays = []time.Weekday{due.Weekday()}
	case "monthly":
		rule.Type = model.RepeatMonthly
		rule.MonthDay = due.Day()
	case "yearly":
		rule.Type = model.RepeatYearly
		rule.MonthDay = due.Day()
	default:
		return nil, fmt.Errorf("unknown repeat rule %q", fields[0])
	}
	return rule, nil
}

type callbackAction int

const (
	actionComplete callbackAction = iota
	actionSnooze
	actionUndo
	actionDelete
)

func parseCallback(data string) (callbackAction, uint, error) {
	for prefix, action := range map[string]callbackAction{
		cbCompletePrefix: actionComplete,
		cbSnoozePrefix:   actionSnooze,
		cbUndoPrefix:     actionUndo,
		cbDeletePrefix:   actionDelete,
	} {
		if strings.HasPrefix(data, prefix) {
			id, err := parseTaskID(data, prefix)
			return action, id, err
		}
	}
	return 0, 0, fmt.Errorf("unknown callback %q", data)
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if value == 0 {
		return 0, fmt.Errorf("task id must be positive")
	}
	return uint(value), nil
}

func callbackData(prefix string, taskID uint) string {
	return prefix + strconv.FormatUint(uint64(taskID), 10)
}

func reminderKeyboard(taskID uint, snooze time.Duration) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Complete", callbackData(cbCompletePrefix, taskID)),
			tgbotapi.NewInlineKeyboardButtonData("⏰ Snooze "+formatDuration(snooze), callbackData(cbSnoozePrefix, taskID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", callbackData(cbDeletePrefix, taskID)),
		),
	)
}

func undoKeyboard(taskID uint) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↩️ Undo snooze", callbackData(cbUndoPrefix, taskID)),
			tgbotapi.NewInlineKeyboardButtonData("✅ Complete", callbackData(cbCompletePrefix, taskID)),
		),
	)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelUpcoming),
			tgbotapi.NewKeyboardButton(menuLabelCategories),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func formatNotification(task *model.Task, payload model.NotificationPayload) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b>\n", iconReminder, escape(normalizeTitle(payload.Title))))
	if payload.Body != "" {
		b.WriteString(escape(payload.Body))
		b.WriteByte('\n')
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("📝 %s\n", escape(task.Description)))
	}
	if label := task.Category.Label(); label != "" {
		b.WriteString(categoryLabel(label))
		b.WriteByte('\n')
	}
	if task.SnoozeCount > 0 {
		b.WriteString(fmt.Sprintf("😴 Snoozed %d×\n", task.SnoozeCount))
	}
	return strings.TrimSpace(b.String())
}

func formatTask(task model.Task, now time.Time) string {
	var b strings.Builder
	icon := iconDefault
	due := task.DueDate.In(now.Location())
	switch {
	case task.IsRecurring():
		icon = iconRecurring
	case now.After(due):
		icon = iconOverdue
	case due.Sub(now) <= 48*time.Hour:
		icon = iconDue
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", icon, task.ID, escape(normalizeTitle(task.Title))))
	b.WriteString(fmt.Sprintf("   ⏰ Due: %s\n", due.Format(dateLayout)))
	if task.ReminderTime != nil {
		b.WriteString(fmt.Sprintf("   %s Reminder: %s\n", iconReminder, task.ReminderTime.In(now.Location()).Format(dateLayout)))
	}
	if task.IsRecurring() {
		b.WriteString(fmt.Sprintf("   🔄 %s\n", ruleLabel(*task.Repeat)))
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	return b.String()
}

// formatUpcoming renders a task list with a heading. Empty lists get a hint instead.
func formatUpcoming(heading string, tasks []model.Task, now time.Time) string {
	if len(tasks) == 0 {
		return "Nothing upcoming. Add a task with /add."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>%s</b>\n\n", heading))
	for _, task := range tasks {
		b.WriteString(formatTask(task, now))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func ruleLabel(rule model.RecurrenceRule) string {
	var unit string
	switch rule.Type {
	case model.RepeatDaily:
		unit = "day"
	case model.RepeatWeekdays:
		return "Every weekday"
	case model.RepeatWeekly:
		unit = "week"
	case model.RepeatMonthly:
		unit = "month"
	case model.RepeatYearly:
		unit = "year"
	default:
		return "Once"
	}
	label := "Every " + unit
	if rule.Interval > 1 {
		label = fmt.Sprintf("Every %d %ss", rule.Interval, unit)
	}
	if rule.End.Type == model.EndAfterOccurrences {
		label += fmt.Sprintf(" (%d of %d)", rule.OccurrenceIndex, rule.End.Count)
	}
	if rule.End.Type == model.EndByDate && rule.End.Until != nil {
		label += " until " + rule.End.Until.Format("2006-01-02")
	}
	return label
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return d.String()
	}
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func categoryLabel(name string) string {
	base := strings.TrimSpace(name)
	var icon string
	switch strings.ToLower(base) {
	case model.TagWork:
		icon = "💼"
	case model.TagPersonal:
		icon = "🧩"
	case model.TagShopping:
		icon = "🛒"
	case model.TagHealth:
		icon = "🩺"
	case model.TagOther:
		icon = "📁"
	default:
		icon = "🏷️"
	}
	return fmt.Sprintf("%s %s", icon, escape(normalizeTitle(base)))
}
