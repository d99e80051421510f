// Package database provides database initialization and connection
// management. It uses GORM with SQLite for embedded storage.
package database

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
)

// DefaultDBPath is the default database file path
const DefaultDBPath = "./data/pullwise.db"

var (
	db   *gorm.DB
	once sync.Once
)

// Init initializes the database connection and performs auto-migration.
// Safe to call multiple times; only the first call takes effect.
func Init() error {
	return InitWithPath(DefaultDBPath)
}

// InitWithPath initializes the database with a custom path, primarily for
// testing. Production callers use Init().
func InitWithPath(dbPath string) error {
	var initErr error
	once.Do(func() {
		initErr = initDB(dbPath)
	})
	return initErr
}

func initDB(dbPath string) error {
	logger.Info("Initializing database", zap.String("path", dbPath))

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("Failed to create database directory", zap.Error(err), zap.String("dir", dir))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to create database directory", err)
	}

	var err error
	db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to connect to database", err)
	}

	// WAL keeps readers unblocked during the harvester's batch writes
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logger.Warn("Failed to enable WAL mode", zap.Error(err))
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		logger.Warn("Failed to set busy timeout", zap.Error(err))
	}

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to run migrations", err)
	}

	logger.Info("Database initialized successfully")
	return nil
}

// Get returns the database connection. Init must have been called.
func Get() *gorm.DB {
	return db
}

// Close closes the database connection
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to get underlying connection", err)
	}
	return sqlDB.Close()
}

// ResetForTesting clears the singleton so tests can re-initialize
func ResetForTesting() {
	db = nil
	once = sync.Once{}
}
