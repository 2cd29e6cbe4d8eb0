// Package history provides the append-only transaction history store.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ganga0312/sentinelstream/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.HistoryStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new history store based on configuration.
func New(cfg domain.HistoryConfig) (domain.HistoryStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Append durably records a transaction and its outcome. A transaction id
// that already exists is left untouched, so evaluation retries never create
// duplicates.
func (s *SQLStore) Append(ctx context.Context, tx *domain.Transaction, outcome *domain.Outcome) error {
	if tx == nil || outcome == nil {
		return fmt.Errorf("%w: transaction and outcome are required", ErrInvalidInput)
	}
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	triggered, _ := json.Marshal(outcome.TriggeredRules)

	query := `
		INSERT INTO transactions (
			id, account_id, amount, location, merchant,
			timestamp, created_at,
			score, classification, risk_level, triggered_rules, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		tx.ID, tx.AccountID, tx.Amount, tx.Location, tx.Merchant,
		tx.Timestamp, tx.CreatedAt,
		outcome.Score, string(outcome.Classification), string(outcome.RiskLevel),
		string(triggered), outcome.EvaluatedAt,
	)
	return err
}

// Query returns all records for the account with timestamp strictly after
// since. Duplicates are impossible (id is the primary key).
func (s *SQLStore) Query(ctx context.Context, accountID string, since time.Time) ([]domain.Record, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, account_id, amount, location, merchant,
			   timestamp, created_at,
			   score, classification, risk_level, triggered_rules, evaluated_at
		FROM transactions
		WHERE account_id = ?
		  AND timestamp > ?
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetTransaction retrieves a transaction by id.
func (s *SQLStore) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	rec, err := s.getRecord(ctx, txID)
	if err != nil {
		return nil, err
	}
	return &rec.Transaction, nil
}

// GetOutcome retrieves an evaluation outcome by transaction id.
func (s *SQLStore) GetOutcome(ctx context.Context, txID string) (*domain.Outcome, error) {
	rec, err := s.getRecord(ctx, txID)
	if err != nil {
		return nil, err
	}
	return &rec.Outcome, nil
}

func (s *SQLStore) getRecord(ctx context.Context, txID string) (*domain.Record, error) {
	if txID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, account_id, amount, location, merchant,
			   timestamp, created_at,
			   score, classification, risk_level, triggered_rules, evaluated_at
		FROM transactions
		WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, s.rebind(query), txID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Recent returns the newest records across all accounts.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, amount, location, merchant,
			   timestamp, created_at,
			   score, classification, risk_level, triggered_rules, evaluated_at
		FROM transactions
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.Record, error) {
	var rec domain.Record
	var classification, riskLevel, triggered string

	err := row.Scan(
		&rec.Transaction.ID, &rec.Transaction.AccountID,
		&rec.Transaction.Amount, &rec.Transaction.Location, &rec.Transaction.Merchant,
		&rec.Transaction.Timestamp, &rec.Transaction.CreatedAt,
		&rec.Outcome.Score, &classification, &riskLevel, &triggered,
		&rec.Outcome.EvaluatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Outcome.TransactionID = rec.Transaction.ID
	rec.Outcome.Classification = domain.Classification(classification)
	rec.Outcome.RiskLevel = domain.RiskLevel(riskLevel)
	if triggered != "" {
		if err := json.Unmarshal([]byte(triggered), &rec.Outcome.TriggeredRules); err != nil {
			return nil, fmt.Errorf("corrupt triggered_rules for %s: %w", rec.Transaction.ID, err)
		}
	}

	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]domain.Record, error) {
	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
