package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mytaskpro/internal/model"
	"mytaskpro/internal/repository"
	"mytaskpro/internal/service"
)

const (
	headerUserID        = "X-User-ID"
	defaultUpcomingSize = 20
	maxUpcomingSize     = 100
)

// RequestValidator plugs validator/v10 into echo.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validator: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

// DeliveryLister reports what is still scheduled for a task.
type DeliveryLister interface {
	Pending(ctx context.Context, taskID uint) ([]model.ScheduledNotification, error)
}

type Handler struct {
	tasks      *service.TaskService
	deliveries DeliveryLister
	snooze     time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewHandler(tasks *service.TaskService, deliveries DeliveryLister, snooze time.Duration, log *zap.Logger) *Handler {
	return &Handler{tasks: tasks, deliveries: deliveries, snooze: snooze, log: log, now: time.Now}
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *Handler) CreateTask(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return err
	}
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DueDate.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "due_date is required")
	}

	input := service.TaskInput{
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		CategoryColor:   req.CategoryColor,
		DueDate:         req.DueDate,
		ReminderTime:    req.ReminderTime,
		NotifyOnDueDate: req.NotifyOnDueDate,
	}
	if req.Repeat != nil {
		input.Repeat = req.Repeat.toRule()
	}

	task, err := h.tasks.CreateTask(c.Request().Context(), userID, input)
	if err != nil {
		return h.fail("create task", err)
	}
	return c.JSON(http.StatusCreated, newTaskResponse(task))
}

func (h *Handler) GetTask(c echo.Context) error {
	userID, taskID, err := h.ids(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	task, err := h.tasks.GetTask(ctx, userID, taskID)
	if err != nil {
		return h.fail("get task", err)
	}
	jobs, err := h.deliveries.Pending(ctx, task.ID)
	if err != nil {
		return h.fail("list deliveries", err)
	}
	resp := newTaskResponse(task)
	resp.Deliveries = newDeliveryResponses(jobs)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateTask(c echo.Context) error {
	userID, taskID, err := h.ids(c)
	if err != nil {
		return err
	}
	var req UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	task, err := h.tasks.UpdateTask(c.Request().Context(), userID, taskID, service.TaskPatch{
		Title:           req.Title,
		Description:     req.Description,
		DueDate:         req.DueDate,
		ReminderTime:    req.ReminderTime,
		ClearReminder:   req.ClearReminder,
		NotifyOnDueDate: req.NotifyOnDueDate,
	})
	if err != nil {
		return h.fail("update task", err)
	}
	return c.JSON(http.StatusOK, newTaskResponse(task))
}

// Upcoming lists the caller's open tasks, or everyone's when no user header is sent.
func (h *Handler) Upcoming(c echo.Context) error {
	limit := defaultUpcomingSize
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxUpcomingSize {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 100")
		}
		limit = n
	}

	ctx := c.Request().Context()
	var (
		list []model.Task
		err  error
	)
	if c.Request().Header.Get(headerUserID) != "" {
		userID, idErr := userIDFrom(c)
		if idErr != nil {
			return idErr
		}
		list, err = h.tasks.UpcomingForUser(ctx, userID, limit, h.now())
	} else {
		list, err = h.tasks.Upcoming(ctx, limit, h.now())
	}
	if err != nil {
		return h.fail("list upcoming", err)
	}

	tasks := make([]*TaskResponse, 0, len(list))
	for i := range list {
		tasks = append(tasks, newTaskResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"count": len(tasks),
		"tasks": tasks,
	})
}

func (h *Handler) CompleteTask(c echo.Context) error {
	userID, taskID, err := h.ids(c)
	if err != nil {
		return err
	}
	done, next, err := h.tasks.CompleteTask(c.Request().Context(), userID, taskID)
	if err != nil {
		return h.fail("complete task", err)
	}
	return c.JSON(http.StatusOK, CompleteResponse{Task: newTaskResponse(done), Next: newTaskResponse(next)})
}

func (h *Handler) SnoozeTask(c echo.Context) error {
	userID, taskID, err := h.ids(c)
	if err != nil {
		return err
	}
	var req SnoozeRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
		}
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	d := h.snooze
	if req.Minutes > 0 {
		d = time.Duration(req.Minutes) * time.Minute
	}

	task, err := h.tasks.SnoozeTask(c.Request().Context(), userID, taskID, d)
	if err != nil {
		return h.fail("snooze task", err)
	}
	return c.JSON(http.StatusOK, newTaskResponse(task))
}

func (h *Handler) UndoSnooze(c echo.Context) error {
	userID, taskID, err := h.ids(c)
	if err != nil {
		return err
	}
	task, err := h.tasks.UndoSnooze(c.Request().Context(), userID, taskID)
	if err != nil {
		return h.fail("undo snooze", err)
	}
	return c.JSON(http.StatusOK, newTaskResponse(task))
}

func (h *Handler) DeleteTask(c echo.Context) error {
	userID, taskID, err := h.ids(c)
	if err != nil {
		return err
	}
	if err := h.tasks.DeleteTask(c.Request().Context(), userID, taskID); err != nil {
		return h.fail("delete task", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ids(c echo.Context) (uint, uint, error) {
	userID, err := userIDFrom(c)
	if err != nil {
		return 0, 0, err
	}
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || taskID == 0 {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	return userID, uint(taskID), nil
}

func userIDFrom(c echo.Context) (uint, error) {
	raw := c.Request().Header.Get(headerUserID)
	if raw == "" {
		return 0, echo.NewHTTPError(http.StatusBadRequest, headerUserID+" header is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+headerUserID+" header")
	}
	return uint(id), nil
}

// fail maps service errors to HTTP errors.
func (h *Handler) fail(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	case errors.Is(err, service.ErrTitleRequired),
		errors.Is(err, service.ErrInvalidRule),
		errors.Is(err, service.ErrInvalidSnooze):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.log.Error(op+" failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to "+op)
	}
}
