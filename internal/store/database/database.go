// Package database provides the MySQL connection and persistence for the
// dolar pipeline. It handles schema creation, bulk row inserts, and the
// bounded interval queries served by the web service.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/sebvel/dolar-pipeline/internal/common/constants"
	"github.com/sebvel/dolar-pipeline/internal/rates"
)

// Config holds the configuration for connecting to the MySQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Manager manages the MySQL database connection.
type Manager struct {
	db        *sql.DB
	opTimeout time.Duration
}

type options struct {
	open func(dsn string) (*sql.DB, error)
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithOpen overrides how the underlying *sql.DB is opened. Used in tests.
func WithOpen(open func(dsn string) (*sql.DB, error)) Options {
	return func(o *options) {
		o.open = open
	}
}

// Connect creates a database manager using the provided configuration.
// The connection is validated with a ping before it is handed out.
func Connect(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("mysql", dsn)
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	db, err := opts.open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open database connection: %w", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.connectTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Connected to MySQL database", "host", cfg.Host, "port", cfg.Port, "db", cfg.DBName)
	return &Manager{db: db, opTimeout: cfg.opTimeout()}, nil
}

// EnsureSchema creates the rates table if it does not exist yet.
// Safe to run repeatedly; an existing table is left untouched.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if m.db == nil {
		return errors.New("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		fechahora DATETIME NOT NULL,
		valor DECIMAL(12,4) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, constants.RatesTable)

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure table %s: %v", constants.RatesTable, err)
	}
	return nil
}

// InsertPoints appends all given points to the rates table in one multi-row
// insert. Values are truncated to the persisted scale. Duplicate timestamps
// are allowed; the table carries no uniqueness constraint.
func (m *Manager) InsertPoints(ctx context.Context, points []rates.Point) error {
	if m.db == nil {
		return errors.New("database not initialized")
	}
	if len(points) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(points))
	args := make([]any, 0, 2*len(points))
	for _, p := range points {
		placeholders = append(placeholders, "(?, ?)")
		args = append(args, p.Time.Format(rates.TimeLayout), p.Value.Truncate(rates.ValueScale))
	}
	query := fmt.Sprintf("INSERT INTO %s (fechahora, valor) VALUES %s",
		constants.RatesTable, strings.Join(placeholders, ", "))

	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("insert canceled: %v", err)
		}
		return fmt.Errorf("failed to insert %d rows: %v", len(points), err)
	}
	return nil
}

// QueryInterval returns all points with fechahora in the closed interval
// [start, end], ordered ascending.
func (m *Manager) QueryInterval(ctx context.Context, start, end time.Time) ([]rates.Point, error) {
	if m.db == nil {
		return nil, errors.New("database not initialized")
	}

	query := fmt.Sprintf(
		"SELECT fechahora, valor FROM %s WHERE fechahora >= ? AND fechahora <= ? ORDER BY fechahora ASC",
		constants.RatesTable)

	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, query,
		start.Format(rates.TimeLayout), end.Format(rates.TimeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query interval: %v", err)
	}
	defer rows.Close()

	var points []rates.Point
	for rows.Next() {
		var t time.Time
		var v decimal.Decimal
		if err := rows.Scan(&t, &v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		points = append(points, rates.Point{Time: t, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading rows: %v", err)
	}
	return points, nil
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- m.db.Close()
	}()

	select {
	case err := <-done:
		m.db = nil
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

// DSN is a helper method that returns a MySQL connection string for the
// configuration. It does not check the validity of the values.
//
// Security warning: the returned string may include credentials.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.port())
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.DBName
	mc.Timeout = c.connectTimeout()
	mc.ReadTimeout = c.readTimeout()
	mc.WriteTimeout = c.writeTimeout()
	mc.ParseTime = true
	mc.Loc = time.Local
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func (c Config) port() int {
	if c.Port == 0 {
		return constants.DefaultDBPort
	}
	return c.Port
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout == 0 {
		return 10 * time.Second
	}
	return c.ConnectTimeout
}

func (c Config) readTimeout() time.Duration {
	if c.ReadTimeout == 0 {
		return 15 * time.Second
	}
	return c.ReadTimeout
}

func (c Config) writeTimeout() time.Duration {
	if c.WriteTimeout == 0 {
		return 15 * time.Second
	}
	return c.WriteTimeout
}

// opTimeout bounds individual statements; the longer of the read/write
// timeouts, so a context deadline never undercuts the driver's own.
func (c Config) opTimeout() time.Duration {
	t := c.readTimeout()
	if w := c.writeTimeout(); w > t {
		t = w
	}
	return t
}
