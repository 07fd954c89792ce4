package allocator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// registryLockKey is the advisory lock key serializing registry transactions
// across processes sharing the same database.
const registryLockKey int64 = 0x10c5a9e5 // "locshares"

// PostgresStore implements Store with PostgreSQL persistence. Mutual
// exclusion across independent allocator processes is provided by a
// transaction-scoped advisory lock, so the probe-append-clear sequence is
// atomic even with concurrent voters hitting replicated allocators.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore opens the database and ensures the registry table exists.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS location_shares (
		position SERIAL PRIMARY KEY,
		value INTEGER NOT NULL UNIQUE,
		committed_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Begin opens a transaction holding the registry advisory lock.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", registryLockKey); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("acquiring registry lock: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Values(ctx context.Context) ([]int, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT value FROM location_shares ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (t *postgresTx) Append(ctx context.Context, value int) error {
	_, err := t.tx.ExecContext(ctx, "INSERT INTO location_shares (value) VALUES ($1)", value)
	return err
}

func (t *postgresTx) Clear(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM location_shares")
	return err
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *postgresTx) Rollback() error {
	return t.tx.Rollback()
}
