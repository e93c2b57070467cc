// Package database keeps a local history of sync runs and per-book
// outcomes in SQLite, so `storygraph-sync runs` can answer "what did
// the last run actually do" without digging through logs.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appLogger "github.com/jtara/storygraph-sync/internal/logger"
)

// RunRecord is one sync invocation.
type RunRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Profile    string `gorm:"index;not null"`
	Flow       string `gorm:"not null"` // progress | read
	Mode       string `gorm:"not null"` // dry-run | apply | seed
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  int
	Skipped    int
	Failed     int
	Unchanged  int

	Outcomes []BookOutcome `gorm:"foreignKey:RunID"`
}

// BookOutcome is the per-record result inside one run.
type BookOutcome struct {
	ID      uint   `gorm:"primaryKey"`
	RunID   uint   `gorm:"index;not null"`
	Key     string `gorm:"not null"` // title or review ID
	Title   string
	Outcome string // applied | planned | skipped | failed | unchanged
	Detail  string
}

// Database wraps the GORM connection.
type Database struct {
	db  *gorm.DB
	log *appLogger.Logger
}

// New opens (and migrates) the run-history database.
func New(dbPath string, log *appLogger.Logger) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run-history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite supports one writer at a time.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&RunRecord{}, &BookOutcome{}); err != nil {
		return nil, fmt.Errorf("failed to migrate run-history schema: %w", err)
	}

	log.Debug("Run-history database ready", map[string]interface{}{
		"path": dbPath,
	})

	return &Database{db: db, log: log}, nil
}

// RecordRun persists a run with its outcomes in one transaction.
func (d *Database) RecordRun(run *RunRecord) error {
	if err := d.db.Create(run).Error; err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs for a profile, newest first,
// outcomes included.
func (d *Database) RecentRuns(profile string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var runs []RunRecord
	err := d.db.
		Preload("Outcomes").
		Where("profile = ?", profile).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for profile %q: %w", profile, err)
	}
	return runs, nil
}

// Close releases the underlying connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
