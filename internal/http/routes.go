package http

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	middleware "mytaskpro/internal/http/middlewares"
)

// NewServer builds the echo instance with validation, logging and recovery installed.
func NewServer(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				log.Warn("http request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Debug("http request", fields...)
			return nil
		},
	}))
	return e
}

// Register mounts the task API. Task routes are rate limited per client IP.
func Register(e *echo.Echo, h *Handler, gatherer prometheus.Gatherer, rateLimitPerMinute int) {
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	tasks := e.Group("/tasks", middleware.RateLimiter(rateLimitPerMinute))
	tasks.POST("", h.CreateTask)
	tasks.GET("/upcoming", h.Upcoming)
	tasks.GET("/:id", h.GetTask)
	tasks.PATCH("/:id", h.UpdateTask)
	tasks.DELETE("/:id", h.DeleteTask)
	tasks.POST("/:id/complete", h.CompleteTask)
	tasks.POST("/:id/snooze", h.SnoozeTask)
	tasks.POST("/:id/undo-snooze", h.UndoSnooze)
}
