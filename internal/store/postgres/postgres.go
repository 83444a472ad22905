// Package postgres registers the "postgres" store driver (GORM + pgx).
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
	"github.com/vedesh-padal/tal-chat-app/internal/store/gormstore"
)

func init() {
	store.Register("postgres", NewDriver)
}

// Driver is a PostgreSQL-backed store.
type Driver struct {
	*gormstore.Store
	dsn string
}

// NewDriver creates an uninitialized PostgreSQL driver.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required for postgres driver")
	}
	return &Driver{dsn: cfg.DSN}, nil
}

func (d *Driver) Name() string {
	return "postgres"
}

// Init connects, sizes the pool and migrates the schema.
func (d *Driver) Init(ctx context.Context) error {
	db, err := gorm.Open(postgres.Open(d.dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	d.Store = gormstore.New(db)
	return d.Store.Migrate(ctx)
}

func (d *Driver) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}

var _ store.Store = (*Driver)(nil)
