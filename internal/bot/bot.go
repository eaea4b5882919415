package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"mytaskpro/internal/model"
	"mytaskpro/internal/repository"
	"mytaskpro/internal/service"
)

const (
	upcomingLimit = 10
	digestLimit   = 10
)

// sender is the part of the Telegram API the bot writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot aggregates Telegram API with services. It also presents due
// notifications with Complete and Snooze buttons.
type Bot struct {
	api        *tgbotapi.BotAPI
	out        sender
	users      *repository.UserRepository
	tasks      *service.TaskService
	categories *service.CategoryService
	snooze     time.Duration
	loc        *time.Location
	log        *zap.Logger
	now        func() time.Time
}

func New(token string, users *repository.UserRepository, tasks *service.TaskService, categories *service.CategoryService, snooze time.Duration, loc *time.Location, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("bot authorized", zap.String("account", api.Self.UserName))

	b := newBot(api, users, tasks, categories, snooze, loc, log)
	b.api = api
	return b, nil
}

func newBot(out sender, users *repository.UserRepository, tasks *service.TaskService, categories *service.CategoryService, snooze time.Duration, loc *time.Location, log *zap.Logger) *Bot {
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		out:        out,
		users:      users,
		tasks:      tasks,
		categories: categories,
		snooze:     snooze,
		loc:        loc,
		log:        log,
		now:        time.Now,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Warn("handle callback", zap.Error(err))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Warn("handle message", zap.Error(err))
			}
		}
	}

	return nil
}

// Present sends a due notification to the task owner's chat.
func (b *Bot) Present(ctx context.Context, task *model.Task, payload model.NotificationPayload) error {
	user, err := b.users.GetByID(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("resolve chat for task %d: %w", task.ID, err)
	}
	msg := tgbotapi.NewMessage(user.TelegramID, formatNotification(task, payload))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = reminderKeyboard(task.ID, b.snooze)
	if _, err := b.out.Send(msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// SendDigests sends every user the list of their upcoming tasks.
func (b *Bot) SendDigests(ctx context.Context) error {
	users, err := b.users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now().In(b.loc)
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !user.DigestEnabled {
			continue
		}
		tasks, err := b.tasks.UpcomingForUser(ctx, user.ID, digestLimit, now)
		if err != nil {
			b.log.Warn("build digest", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
			continue
		}
		if len(tasks) == 0 {
			continue
		}
		if err := b.sendText(user.TelegramID, formatUpcoming("Your plan", tasks, now)); err != nil {
			b.log.Warn("send digest", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		b.log.Debug("command",
			zap.Int64("from", msg.From.ID),
			zap.String("command", msg.Command()),
			zap.String("args", msg.CommandArguments()))
		return b.handleCommand(ctx, msg)
	}

	switch strings.TrimSpace(msg.Text) {
	case menuLabelUpcoming:
		return b.handleUpcoming(ctx, msg)
	case menuLabelCategories:
		return b.handleCategories(ctx, msg)
	case menuLabelHelp:
		return b.handleHelp(msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Use /add to create a task or /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "upcoming", "tasks":
		return b.handleUpcoming(ctx, msg)
	case "add":
		return b.handleAdd(ctx, msg)
	case "complete":
		return b.handleByID(ctx, msg, actionComplete)
	case "snooze":
		return b.handleByID(ctx, msg, actionSnooze)
	case "delete":
		return b.handleByID(ctx, msg, actionDelete)
	case "categories":
		return b.handleCategories(ctx, msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unsupported command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep track of your tasks and remind you on time.</b>\n\n%s", escape(user.DisplayName()), helpText)
	return b.sendText(msg.Chat.ID, text)
}

const helpText = "Commands:\n" +
	"• /add Title #category | 2006-01-02 15:04 | weekly | 30m - add a task (repeat and reminder lead are optional)\n" +
	"• /upcoming - show upcoming tasks\n" +
	"• /complete &lt;id&gt; - mark a task as done\n" +
	"• /snooze &lt;id&gt; - snooze a task\n" +
	"• /delete &lt;id&gt; - delete a task\n" +
	"• /categories - list categories\n" +
	"• /digest on|off - daily summary of upcoming tasks\n" +
	"• /help - this message"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+helpText)
}

func (b *Bot) handleUpcoming(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	now := b.now().In(b.loc)
	tasks, err := b.tasks.UpcomingForUser(ctx, user.ID, upcomingLimit, now)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, formatUpcoming("", nil, now))
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 24)), callbackData(cbCompletePrefix, task.ID)),
		))
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, formatUpcoming("Upcoming tasks", tasks, now), tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message) error {
	cmd, err := parseAddCommand(msg.CommandArguments(), b.loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	input := service.TaskInput{
		Title:           cmd.Title,
		Category:        cmd.Category,
		DueDate:         cmd.DueDate,
		NotifyOnDueDate: true,
		Repeat:          cmd.Repeat,
	}
	if cmd.Lead > 0 {
		reminder := cmd.DueDate.Add(-cmd.Lead)
		input.ReminderTime = &reminder
	}

	task, err := b.tasks.CreateTask(ctx, user.ID, input)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the task: %s", escape(err.Error())))
	}
	b.log.Info("task created from chat", zap.Uint("task_id", task.ID), zap.Uint("user_id", user.ID))
	return b.sendText(msg.Chat.ID, "✅ Saved\n\n"+formatTask(*task, b.now().In(b.loc)))
}

func (b *Bot) handleCategories(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	names, err := b.categories.List(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load categories: %s", escape(err.Error())))
	}
	var builder strings.Builder
	builder.WriteString("📂 <b>Categories</b>\n")
	for _, name := range names {
		builder.WriteString("• " + categoryLabel(name) + "\n")
	}
	builder.WriteString("\nAppend #name to a title in /add to use one.")
	return b.sendText(msg.Chat.ID, builder.String())
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(msg.CommandArguments())) {
	case "on":
		enabled = true
	case "off":
	default:
		state := "off"
		if user.DigestEnabled {
			state = "on"
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Daily digest is %s. Use /digest on or /digest off.", state))
	}
	if err := b.users.SetDigest(ctx, user.ID, enabled); err != nil {
		return err
	}
	if enabled {
		return b.sendText(msg.Chat.ID, "🗓 Daily digest enabled.")
	}
	return b.sendText(msg.Chat.ID, "🔕 Daily digest disabled.")
}

// handleByID runs an action from a "/command <id>" message.
func (b *Bot) handleByID(ctx context.Context, msg *tgbotapi.Message, action callbackAction) error {
	args := strings.TrimSpace(msg.CommandArguments())
	taskID, err := strconv.ParseUint(args, 10, 64)
	if err != nil || taskID == 0 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Give the task id, e.g. /%s 12", msg.Command()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, markup := b.apply(ctx, user, action, uint(taskID))
	if markup != nil {
		return b.sendWithReplyMarkup(msg.Chat.ID, text, *markup)
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	action, taskID, err := parseCallback(cb.Data)
	if err != nil {
		b.ack(cb, "")
		return nil
	}
	b.log.Debug("callback", zap.Int64("from", cb.From.ID), zap.String("data", cb.Data))

	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		b.ack(cb, "")
		return err
	}

	text, markup := b.apply(ctx, user, action, taskID)
	b.ack(cb, "")

	chatID := cb.Message.Chat.ID
	if action == actionComplete || action == actionDelete {
		b.clearButtons(chatID, cb.Message.MessageID)
	}
	if markup != nil {
		return b.sendWithReplyMarkup(chatID, text, *markup)
	}
	return b.sendText(chatID, text)
}

// apply runs action on the task and returns the reply to show.
func (b *Bot) apply(ctx context.Context, user *model.User, action callbackAction, taskID uint) (string, *tgbotapi.InlineKeyboardMarkup) {
	switch action {
	case actionComplete:
		done, next, err := b.tasks.CompleteTask(ctx, user.ID, taskID)
		if err != nil {
			return b.failureText("complete", taskID, err), nil
		}
		text := fmt.Sprintf("✅ Done: <b>%s</b>", escape(normalizeTitle(done.Title)))
		if next != nil {
			text += fmt.Sprintf("\n🔄 Next: %s", next.DueDate.In(b.loc).Format(dateLayout))
		}
		return text, nil
	case actionSnooze:
		task, err := b.tasks.SnoozeTask(ctx, user.ID, taskID, b.snooze)
		if err != nil {
			return b.failureText("snooze", taskID, err), nil
		}
		if !task.IsSnoozed {
			return "This task is already done.", nil
		}
		markup := undoKeyboard(task.ID)
		return fmt.Sprintf("⏰ Snoozed <b>%s</b> until %s", escape(normalizeTitle(task.Title)), task.DueDate.In(b.loc).Format("15:04")), &markup
	case actionUndo:
		task, err := b.tasks.UndoSnooze(ctx, user.ID, taskID)
		if err != nil {
			return b.failureText("undo snooze", taskID, err), nil
		}
		return fmt.Sprintf("↩️ <b>%s</b> is due %s again", escape(normalizeTitle(task.Title)), task.DueDate.In(b.loc).Format(dateLayout)), nil
	case actionDelete:
		task, err := b.tasks.GetTask(ctx, user.ID, taskID)
		if err != nil {
			return b.failureText("delete", taskID, err), nil
		}
		if err := b.tasks.DeleteTask(ctx, user.ID, taskID); err != nil {
			return b.failureText("delete", taskID, err), nil
		}
		return fmt.Sprintf("🗑 Task \"%s\" deleted.", escape(normalizeTitle(task.Title))), nil
	default:
		return "Unsupported action.", nil
	}
}

func (b *Bot) failureText(op string, taskID uint, err error) string {
	if errors.Is(err, repository.ErrTaskNotFound) {
		return "Task not found."
	}
	b.log.Warn(op+" from chat failed", zap.Uint("task_id", taskID), zap.Error(err))
	return fmt.Sprintf("Could not %s the task.", op)
}

func (b *Bot) ack(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.out.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Debug("callback ack", zap.Error(err))
	}
}

func (b *Bot) clearButtons(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := b.out.Request(edit); err != nil {
		b.log.Debug("clear buttons", zap.Error(err))
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.out.Send(msg)
	return err
}
