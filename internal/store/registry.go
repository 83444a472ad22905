package store

import (
	"fmt"
	"sort"
	"sync"
)

// DriverConfig selects and configures a driver.
type DriverConfig struct {
	// Driver is the driver name: sqlite or postgres.
	Driver string

	// DataDir holds the sqlite database file.
	DataDir string

	// DSN is the postgres connection string.
	DSN string
}

// DriverFactory creates an uninitialized driver.
type DriverFactory func(cfg *DriverConfig) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register makes a driver available by name. Called from driver init().
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates the configured driver. Callers must Init it.
func New(cfg *DriverConfig) (Store, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
	return factory(cfg)
}

// AvailableDrivers returns the registered driver names, sorted.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
