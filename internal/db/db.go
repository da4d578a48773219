// Package db opens the database, applies the schema and seeds defaults.
package db

import (
	"embed"
	"errors"
	"fmt"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/motorworks/invoicegen/internal/config"
	"github.com/motorworks/invoicegen/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// requiredTables must exist once the schema is applied.
var requiredTables = []string{"users", "clients", "invoices", "invoice_items", "follow_up_settings", "follow_ups", "message_logs"}

// GormConfig returns the gorm settings. SQL statements are logged when debug is set.
func GormConfig(debug bool) *gorm.Config {
	level := gormlogger.Silent
	if debug {
		level = gormlogger.Info
	}
	return &gorm.Config{Logger: gormlogger.Default.LogMode(level)}
}

// Connect opens PostgreSQL, retrying while the server starts up.
func Connect(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("db")
	dsn := DSN(cfg)
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}

	var (
		conn *gorm.DB
		err  error
	)
	for i := 1; i <= connectAttempts; i++ {
		conn, err = gorm.Open(postgres.Open(dsn), GormConfig(cfg.Debug))
		if err == nil {
			err = conn.Exec("SELECT 1").Error
		}
		if err == nil {
			break
		}
		logger.Warn("database not ready", zap.Int("attempt", i), zap.Error(err))
		time.Sleep(connectBackoff)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database after %d attempts: %w", connectAttempts, err)
	}
	logger.Info("connected", zap.String("dsn", maskDSN(dsn)))
	return conn, nil
}

// Migrate applies the schema. With sqlMigrations set the embedded SQL files are
// run through golang-migrate against dsn; otherwise gorm AutoMigrate is used.
func Migrate(conn *gorm.DB, dsn string, sqlMigrations bool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sqlMigrations {
		logger.Info("running sql migrations")
		if err := runSQLMigrations(ToURLDSN(dsn)); err != nil {
			return fmt.Errorf("sql migrations: %w", err)
		}
	} else {
		for _, m := range models.All() {
			if err := conn.AutoMigrate(m); err != nil {
				return fmt.Errorf("automigrate %T: %w", m, err)
			}
		}
	}
	for _, table := range requiredTables {
		if !conn.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

func runSQLMigrations(dsn string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Seed creates the follow-up settings row when missing. It never overwrites
// values an owner already changed.
func Seed(conn *gorm.DB, businessName string) error {
	_, err := models.LoadSettings(conn, businessName)
	return err
}
