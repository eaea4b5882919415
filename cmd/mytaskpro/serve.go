package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mytaskpro/internal/bot"
	"mytaskpro/internal/config"
	"mytaskpro/internal/delivery"
	httpapi "mytaskpro/internal/http"
	"mytaskpro/internal/lock"
	"mytaskpro/internal/logger"
	"mytaskpro/internal/metrics"
	"mytaskpro/internal/queue"
	"mytaskpro/internal/repository"
	"mytaskpro/internal/service"
)

const jobTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the delivery poller and the Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	db, err := repository.NewDB(cfg.DatabaseURL, repository.WithLogger(log))
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	loc := cfg.Location()

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	var store delivery.JobStore = repository.NewNotificationRepository(db)
	if cfg.DeliveryBackend == config.BackendRedis {
		client, err := queue.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer client.Close()
		store = queue.NewRedisJobStore(client, cfg.RedisPrefix)
	}
	log.Info("delivery backend", zap.String("backend", cfg.DeliveryBackend))

	locks := lock.NewKeyed()
	dispatcher := delivery.NewDispatcher(store, taskRepo, delivery.NewLogPresenter(log), locks, log,
		delivery.WithBatchSize(cfg.BatchSize), delivery.WithMetrics(m))
	reminders := service.NewReminderScheduler(taskRepo, dispatcher, locks, log,
		service.WithLocation(loc), service.WithMetrics(m))
	categorySvc := service.NewCategoryService(categoryRepo)
	taskSvc := service.NewTaskService(taskRepo, categorySvc, reminders)

	var telegramBot *bot.Bot
	if cfg.BotEnabled() {
		telegramBot, err = bot.New(cfg.TelegramToken, userRepo, taskSvc, categorySvc, cfg.SnoozeDuration, loc, log)
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}
		dispatcher.SetPresenter(telegramBot)
	} else {
		log.Warn("TELEGRAM_TOKEN not set, notifications go to the log")
	}

	// Deliver what came due while we were down, then rebuild the schedule.
	if n, err := dispatcher.Drain(ctx); err != nil {
		log.Warn("startup delivery", zap.Error(err))
	} else if n > 0 {
		log.Info("delivered missed notifications", zap.Int("count", n))
	}
	if n, err := taskSvc.ResyncDeliveries(ctx); err != nil {
		log.Warn("resync deliveries", zap.Error(err))
	} else {
		log.Info("deliveries resynced", zap.Int("open_tasks", n))
	}

	scheduler := service.NewSchedulerService(loc, jobTimeout, log)
	if _, err := scheduler.Every("deliver-due", cfg.PollInterval, func(ctx context.Context) error {
		_, err := dispatcher.RunDue(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule poller: %w", err)
	}
	if telegramBot != nil && cfg.DigestTime != "" {
		if _, err := scheduler.Daily("digest", cfg.DigestTime, telegramBot.SendDigests); err != nil {
			return fmt.Errorf("schedule digest: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	e := httpapi.NewServer(log)
	httpapi.Register(e, httpapi.NewHandler(taskSvc, dispatcher, cfg.SnoozeDuration, log), reg, cfg.RateLimitPerMinute)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("bot stopped with error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
