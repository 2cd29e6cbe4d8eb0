package domain

import (
	"context"
	"time"
)

// Record pairs a persisted transaction with its evaluation outcome.
type Record struct {
	Transaction Transaction `json:"transaction"`
	Outcome     Outcome     `json:"outcome"`
}

// HistoryStore is the append-only record of evaluated transactions.
// Append must be effective for Query calls made after it returns
// (read-your-writes within the process). Appending a transaction id that
// already exists is a no-op, which makes evaluation retries safe.
// The core never deletes or updates records.
type HistoryStore interface {
	Append(ctx context.Context, tx *Transaction, outcome *Outcome) error

	// Query returns all records for the account with timestamp > since.
	// Order is unspecified; duplicates are forbidden.
	Query(ctx context.Context, accountID string, since time.Time) ([]Record, error)

	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	GetOutcome(ctx context.Context, txID string) (*Outcome, error)

	// Recent returns the newest records across all accounts, for dashboards.
	Recent(ctx context.Context, limit int) ([]Record, error)

	Ping(ctx context.Context) error
	Close() error
}

// HistoryConfig holds configuration for history store initialization.
type HistoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
