package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"regbot/config"
)

// UsersTable is the table registrations are stored in.
const UsersTable = "users"

// DSN builds the data source name for the configured driver.
func DSN(cfg *config.Config) string {
	if cfg.DBDriver == config.DriverSQLite {
		return cfg.GetDatabasePath() + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	}

	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.Net = "tcp"
	mc.Addr = cfg.GetDatabaseAddress()
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Timeout = 5 * time.Second
	mc.ReadTimeout = 30 * time.Second
	mc.WriteTimeout = 30 * time.Second
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// InitDatabase opens the configured database and verifies it is reachable.
// Idle connections are not retained: every operation dials its own
// connection and closes it on release.
func InitDatabase(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	if cfg.DBDriver == config.DriverSQLite {
		if err := os.MkdirAll(cfg.DBPath, 0755); err != nil {
			return nil, NewError(ErrorConnection, "prepare data dir", err)
		}
	}

	db, err := sql.Open(cfg.DBDriver, DSN(cfg))
	if err != nil {
		return nil, NewError(ErrorConnection, "open", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewError(ErrorConnection, "ping", err)
	}

	logger.Info("Database initialized successfully",
		zap.String("driver", cfg.DBDriver),
		zap.String("db_name", cfg.DBName),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return db, nil
}

// createUsersTable holds the DDL per driver. Column order and nullability
// must stay compatible with rows already stored by earlier deployments.
var createUsersTable = map[string]string{
	config.DriverMySQL: `
		CREATE TABLE IF NOT EXISTS users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			first_name VARCHAR(255) NOT NULL,
			last_name VARCHAR(255) NOT NULL,
			patronymic VARCHAR(255),
			customer_phone VARCHAR(20) NOT NULL,
			contact_phone VARCHAR(20) NOT NULL,
			organization_name VARCHAR(255) NOT NULL,
			social_media_platform VARCHAR(50),
			social_media_handle VARCHAR(255)
		)`,
	config.DriverSQLite: `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			patronymic TEXT,
			customer_phone TEXT NOT NULL,
			contact_phone TEXT NOT NULL,
			organization_name TEXT NOT NULL,
			social_media_platform TEXT,
			social_media_handle TEXT
		)`,
}

var tableExistsQuery = map[string]string{
	config.DriverMySQL:  "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
	config.DriverSQLite: "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
}

// Schema ensures the users table exists. The DDL runs at most once per
// Schema value; later calls return the first outcome.
type Schema struct {
	db     *sql.DB
	driver string
	logger *zap.Logger

	once  sync.Once
	err   error
	ready bool
	mu    sync.RWMutex
}

func NewSchema(db *sql.DB, driver string, logger *zap.Logger) *Schema {
	return &Schema{
		db:     db,
		driver: driver,
		logger: logger,
	}
}

// EnsureSchema creates the users table if it is missing.
func (s *Schema) EnsureSchema(ctx context.Context) error {
	s.once.Do(func() {
		err := CreateTables(ctx, s.db, s.driver, s.logger)
		s.mu.Lock()
		s.err = err
		s.ready = err == nil
		s.mu.Unlock()
	})

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Ready reports whether the schema was ensured successfully.
func (s *Schema) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Check is the storage-readiness probe: the schema must be ensured and the
// database reachable.
func (s *Schema) Check(ctx context.Context) error {
	if !s.Ready() {
		return NewError(ErrorSchema, "readiness", errors.New("schema not ensured"))
	}
	if err := s.db.PingContext(ctx); err != nil {
		return NewError(ErrorConnection, "readiness", err)
	}
	return nil
}

// CreateTables runs the idempotent DDL on a dedicated connection.
func CreateTables(ctx context.Context, db *sql.DB, driver string, logger *zap.Logger) error {
	ddl, ok := createUsersTable[driver]
	if !ok {
		return NewError(ErrorSchema, "create tables", fmt.Errorf("unsupported driver %q", driver))
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		logger.Error("Failed to acquire connection for schema", zap.Error(err))
		return NewError(ErrorConnection, "create tables", err)
	}
	defer conn.Close()

	var tableCount int
	if err := conn.QueryRowContext(ctx, tableExistsQuery[driver], UsersTable).Scan(&tableCount); err != nil {
		logger.Error("Failed to check table existence", zap.String("table", UsersTable), zap.Error(err))
		return NewError(ErrorSchema, "check table", err)
	}

	if tableCount > 0 {
		logger.Info("Table exists", zap.String("table", UsersTable))
		return nil
	}

	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		logger.Error("Failed to create table", zap.String("table", UsersTable), zap.Error(err))
		return NewError(ErrorSchema, "create table", err)
	}

	logger.Info("Table created successfully", zap.String("table", UsersTable))
	return nil
}
