package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"inapppay/internal/config"
	"inapppay/internal/models"
	"inapppay/pkg/logging"
)

var DB *gorm.DB

// InitDatabase opens the ledger database into DB and migrates it
func InitDatabase(cfg *config.Config) error {
	db, err := Open(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	DB = db
	return nil
}

// Open connects to PostgreSQL, or to SQLite at sqlitePath when dsn is empty,
// and migrates the ledger tables.
func Open(dsn, sqlitePath string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.New(gormWriter{}, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if dsn == "" {
		// Fallback to SQLite for development
		logging.Infof("Database URL not set, using SQLite at %s", sqlitePath)
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	} else {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logging.Infof("Database connected successfully")
	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.VerificationRecord{},
	)
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		logging.Errorf("Failed to close database: %v", err)
		return err
	}
	return nil
}

// CloseDatabase closes DB
func CloseDatabase() error {
	return Close(DB)
}

// gormWriter routes gorm's logger through pkg/logging
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...interface{}) {
	logging.Warnf(format, args...)
}
