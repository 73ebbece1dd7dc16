// Package conn manages named database connections. Structures declare a
// connection id; the manager resolves ids to *sql.DB handles configured from
// the environment or a config file.
package conn

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

// DefaultConnection is the connection id used when a model declares none.
const DefaultConnection = "default"

// Manager resolves connection ids to database handles.
type Manager struct {
	mu  sync.RWMutex
	dbs map[string]*sql.DB
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{dbs: make(map[string]*sql.DB)}
}

// Put registers a database handle under the given id.
func (m *Manager) Put(name string, db *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dbs[name] = db
}

// Get returns the handle registered under the given id.
func (m *Manager) Get(name string) (*sql.DB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	db, ok := m.dbs[name]
	if !ok {
		return nil, fmt.Errorf("unknown connection %q", name)
	}
	return db, nil
}

// Open opens a database and registers it under the given id. The connection
// is established lazily by database/sql on first use.
func (m *Manager) Open(name, driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open connection %q: %w", name, err)
	}
	m.Put(name, db)
	return nil
}

// Close closes every registered handle, returning the first error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for name, db := range m.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = fmt.Errorf("failed to close connection %q: %w", name, err)
		}
	}
	m.dbs = make(map[string]*sql.DB)
	return first
}

// FromEnv builds a manager from the environment. A .env file is loaded if
// present. MARROW_DATABASE_URL configures the default connection;
// MARROW_DATABASE_DRIVER overrides the driver (default "postgres").
func FromEnv() (*Manager, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MARROW")
	v.AutomaticEnv()
	v.SetDefault("database_driver", "postgres")

	m := NewManager()
	if dsn := v.GetString("database_url"); dsn != "" {
		if err := m.Open(DefaultConnection, v.GetString("database_driver"), dsn); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FromConfig builds a manager from a config file. The file declares a
// "connections" map of id -> {driver, dsn}; a missing driver defaults to
// "postgres".
func FromConfig(path string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read connection config: %w", err)
	}

	m := NewManager()
	for name := range v.GetStringMap("connections") {
		key := "connections." + strings.ToLower(name)
		driver := v.GetString(key + ".driver")
		if driver == "" {
			driver = "postgres"
		}
		dsn := v.GetString(key + ".dsn")
		if dsn == "" {
			return nil, fmt.Errorf("connection %q declares no dsn", name)
		}
		if err := m.Open(name, driver, dsn); err != nil {
			return nil, err
		}
	}
	return m, nil
}
