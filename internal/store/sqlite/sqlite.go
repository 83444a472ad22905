// Package sqlite registers the "sqlite" store driver (GORM + go-sqlite3).
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
	"github.com/vedesh-padal/tal-chat-app/internal/store/gormstore"
)

// FileName is the database file created inside the data directory.
const FileName = "talchat.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver is a SQLite-backed store. Methods other than Init, Name and Close
// are only valid after Init.
type Driver struct {
	*gormstore.Store
	dataDir string
}

// NewDriver creates an uninitialized SQLite driver.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	return &Driver{dataDir: cfg.DataDir}, nil
}

func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens (creating if needed) the database file and migrates it.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	// Immediate transactions take the write lock up front so the busy
	// timeout applies instead of failing on a lock upgrade.
	dsn := filepath.Join(d.dataDir, FileName) + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
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
