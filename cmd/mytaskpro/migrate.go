package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mytaskpro/internal/config"
	"mytaskpro/internal/logger"
	"mytaskpro/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
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

		db, err := repository.NewDB(cfg.DatabaseURL, repository.WithLogger(log))
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		log.Info("schema up to date", zap.String("database", cfg.DatabaseURL))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
