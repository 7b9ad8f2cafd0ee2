package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // PostgreSQL
)

// Table is the journal table name.
const Table = "sanbridge_session_events"

// dialect holds the per-driver SQL differences.
type dialect struct {
	driver string
	create string
	insert string
	recent string
}

var dialects = map[string]dialect{
	"postgres": {
		driver: "postgres",
		create: `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	id BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	array_name VARCHAR(255) NOT NULL,
	protocol VARCHAR(64) NOT NULL,
	kind VARCHAR(16) NOT NULL,
	method VARCHAR(8) NOT NULL DEFAULT '',
	path VARCHAR(1024) NOT NULL DEFAULT '',
	status INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0
)`,
		insert: `INSERT INTO ` + Table + ` (occurred_at, array_name, protocol, kind, method, path, status, error, duration_ms) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		recent: `SELECT occurred_at, array_name, protocol, kind, method, path, status, error, duration_ms FROM ` + Table + ` WHERE ($1 = '' OR array_name = $1) ORDER BY occurred_at DESC, id DESC LIMIT $2`,
	},
	"mysql": {
		driver: "mysql",
		create: `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	occurred_at DATETIME(6) NOT NULL,
	array_name VARCHAR(255) NOT NULL,
	protocol VARCHAR(64) NOT NULL,
	kind VARCHAR(16) NOT NULL,
	method VARCHAR(8) NOT NULL DEFAULT '',
	path VARCHAR(1024) NOT NULL DEFAULT '',
	status INT NOT NULL DEFAULT 0,
	error TEXT NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
)`,
		insert: `INSERT INTO ` + Table + ` (occurred_at, array_name, protocol, kind, method, path, status, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recent: `SELECT occurred_at, array_name, protocol, kind, method, path, status, error, duration_ms FROM ` + Table + ` WHERE (? = '' OR array_name = ?) ORDER BY occurred_at DESC, id DESC LIMIT ?`,
	},
}

// driverAliases maps configured names onto database/sql driver names.
var driverAliases = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
}

// SQLStore writes records to a PostgreSQL or MySQL table.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQL opens a database, checks the connection and creates the journal
// table if needed.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	name, ok := driverAliases[strings.ToLower(driver)]
	if !ok {
		return nil, fmt.Errorf("unsupported audit driver: %s", driver)
	}

	if name == "mysql" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		// occurred_at is scanned into time.Time
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	s, err := NewSQLStore(db, name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database. driver is "postgres" or "mysql".
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	d, ok := dialects[driverAliases[strings.ToLower(driver)]]
	if !ok {
		return nil, fmt.Errorf("unsupported audit driver: %s", driver)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Migrate creates the journal table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.create); err != nil {
		return fmt.Errorf("failed to create %s: %w", Table, err)
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, s.dialect.insert,
		r.Time.UTC(), r.Array, r.Protocol, r.Kind, r.Method, r.Path, r.Status, r.Error, r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

func (s *SQLStore) Recent(ctx context.Context, array string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	var args []interface{}
	if s.dialect.driver == "mysql" {
		args = []interface{}{array, array, limit}
	} else {
		args = []interface{}{array, limit}
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.recent, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var r Record
		var ms int64
		if err := rows.Scan(&r.Time, &r.Array, &r.Protocol, &r.Kind, &r.Method, &r.Path, &r.Status, &r.Error, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
