package models

import (
	"fmt"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
}

// Open connects with the configured driver and pool limits.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}
	return db, nil
}

// InitDB opens the process-wide connection.
func InitDB(cfg *config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// AllModels lists every table owned by the service, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Project{},
		&Employee{},
		&Team{},
		&TeamMember{},
		&Role{},
		&Incident{},
		&Conversation{},
		&ConversationParticipant{},
		&ProjectRole{},
		&SchedulerLock{},
		&SystemLog{},
	}
}

func AutoMigrate() error {
	return DB.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}

// DefaultRoles is the role catalog a fresh install starts with.
var DefaultRoles = []Role{
	{Title: "Incident Commander", Description: "Owns the incident response and final escalation point"},
	{Title: "Operations Lead", Description: "Coordinates on-site operations"},
	{Title: "Safety Officer", Description: "Monitors hazards and enforces safety procedures"},
	{Title: "Communications Officer", Description: "Handles internal and external communication"},
	{Title: "Responder", Description: "First-line responder"},
}

// SeedDefaultData adds any missing default role by title. Existing rows are left as they are.
func SeedDefaultData() error {
	return SeedRoles(DB)
}

func SeedRoles(db *gorm.DB) error {
	for _, def := range DefaultRoles {
		role := def
		if err := db.Where(Role{Title: role.Title}).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %q: %w", def.Title, err)
		}
	}
	return nil
}
