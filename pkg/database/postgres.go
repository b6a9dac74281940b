package database

import (
	"fmt"
	"log"
	"time"

	"github.com/proyuen/invsync/internal/model"
	"github.com/proyuen/invsync/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgresDB initializes and returns a new GORM database instance for
// PostgreSQL: connection pooling, GORM logging, and auto-migration of the
// SSOT schema.
func NewPostgresDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	gormConfig := &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("database connection established")

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Schema migration for the five SSOT tables is normally handled by
	// cmd/migrator; AutoMigrate here only keeps local/dev runs and the test
	// suite self-sufficient.
	err = db.AutoMigrate(
		&model.Product{},
		&model.Stock{},
		&model.InventoryEvent{},
		&model.SiteSkuMap{},
		&model.PropagationFailure{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto migrate database: %w", err)
	}
	log.Println("database migration completed")

	return db, nil
}
