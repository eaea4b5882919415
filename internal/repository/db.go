package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mytaskpro/internal/model"
)

const defaultDSN = "mytaskpro.db"

type dbOptions struct {
	log *zap.Logger
}

// DBOption customizes NewDB.
type DBOption func(*dbOptions)

// WithLogger routes gorm warnings and slow queries through log.
func WithLogger(log *zap.Logger) DBOption {
	return func(o *dbOptions) { o.log = log }
}

// NewDB opens a SQLite database and runs migrations.
func NewDB(dsn string, opts ...DBOption) (*gorm.DB, error) {
	o := dbOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if dsn == "" {
		dsn = defaultDSN
	}

	if path, ok := sqliteFile(dsn); ok {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir %q: %w", dir, err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(zap.NewStdLog(o.log.Named("gorm")), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite has a single writer; one connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.CustomCategory{},
		&model.Task{},
		&model.ScheduledNotification{},
	); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	return nil
}

// sqliteFile returns the file path behind dsn, or false for in-memory databases.
func sqliteFile(dsn string) (string, bool) {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return "", false
	}
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" {
		return "", false
	}
	return path, true
}
