package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists intake data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ Store        = (*PostgresStore)(nil)
	_ LocalStorage = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, channel, kind, status, time) VALUES ($1, $2, $3, $4, $5)`,
		r.To, string(r.Channel), r.Kind, string(r.Status), r.Time)
	if err != nil {
		slog.Error("PostgresStore AddReceipt failed", "error", err, "channel", r.Channel)
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, channel, kind, status, time FROM receipts ORDER BY id ASC`)
	if err != nil {
		slog.Error("PostgresStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Channel, &r.Kind, &r.Status, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

func (s *PostgresStore) AddSubmission(sub models.Submission) error {
	answers, err := encodeAnswers(sub.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO submissions (id, answers_json, summary, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET answers_json = EXCLUDED.answers_json, summary = EXCLUDED.summary`,
		sub.ID, answers, nilIfEmpty(sub.Summary), sub.CreatedAt.UTC(),
	)
	if err != nil {
		slog.Error("PostgresStore AddSubmission failed", "error", err, "id", sub.ID)
		return fmt.Errorf("failed to insert submission %s: %w", sub.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(id string) (*models.Submission, error) {
	row := s.db.QueryRow(`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, err)
	}
	return &sub, nil
}

func (s *PostgresStore) GetSubmissions() ([]models.Submission, error) {
	rows, err := s.db.Query(`SELECT ` + submissionColumns + ` FROM submissions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission row: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) UpdateSubmissionSummary(id, summary string) error {
	res, err := s.db.Exec(`UPDATE submissions SET summary = $1 WHERE id = $2`, summary, id)
	if err != nil {
		return fmt.Errorf("failed to update summary for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (s *PostgresStore) GetItem(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM local_storage WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read item %s: %w", key, err)
	}
	return v, true, nil
}

func (s *PostgresStore) SetItem(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO local_storage (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write item %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) RemoveItem(key string) error {
	if _, err := s.db.Exec(`DELETE FROM local_storage WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to remove item %s: %w", key, err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
