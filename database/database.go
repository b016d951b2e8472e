// Package database provides database connection management for the
// podium-coach athlete analytics system.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Schema migration for all persisted models
//   - Comprehensive error handling and validation
//
// Data Models:
//
//	All data models (Athlete, Workout, DailyMetric, BaselineMetric, etc.) are
//	defined in the models_pkg package to avoid circular import dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "podium-coach/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance. It serves as the central connection point for all
// database operations in the application.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the schema for all persisted models.
func (d *Database) Migrate() error {
	err := d.db.AutoMigrate(
		&Athlete{},
		&OAuthToken{},
		&Workout{},
		&DailyMetric{},
		&BaselineMetric{},
		&MetricAlert{},
		&EmailLog{},
		&WorkoutCompliance{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// ============================================================================
// Type Aliases
// ============================================================================

// These type aliases let callers import persisted models from the database
// package directly.

type Athlete = models.Athlete
type OAuthToken = models.OAuthToken
type Workout = models.Workout
type DailyMetric = models.DailyMetric
type BaselineMetric = models.BaselineMetric
type MetricAlert = models.MetricAlert
type EmailLog = models.EmailLog
type WorkoutCompliance = models.WorkoutCompliance
