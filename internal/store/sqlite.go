package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists intake data in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time checks that SQLiteStore implements the store interfaces.
var (
	_ Store        = (*SQLiteStore)(nil)
	_ LocalStorage = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// One writer at a time; concurrent writers would otherwise see SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dir", dir)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, channel, kind, status, time) VALUES (?, ?, ?, ?, ?)`,
		r.To, string(r.Channel), r.Kind, string(r.Status), r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddReceipt failed", "error", err, "channel", r.Channel)
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, channel, kind, status, time FROM receipts ORDER BY id ASC`)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts query failed", "error", err)
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
	slog.Debug("SQLiteStore GetReceipts succeeded", "count", len(receipts))
	return receipts, nil
}

func (s *SQLiteStore) AddSubmission(sub models.Submission) error {
	answers, err := encodeAnswers(sub.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO submissions (id, answers_json, summary, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET answers_json = excluded.answers_json, summary = excluded.summary`,
		sub.ID, answers, nilIfEmpty(sub.Summary), sub.CreatedAt.UTC(),
	)
	if err != nil {
		slog.Error("SQLiteStore AddSubmission failed", "error", err, "id", sub.ID)
		return fmt.Errorf("failed to insert submission %s: %w", sub.ID, err)
	}
	slog.Debug("SQLiteStore AddSubmission succeeded", "id", sub.ID)
	return nil
}

func (s *SQLiteStore) GetSubmission(id string) (*models.Submission, error) {
	row := s.db.QueryRow(`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, err)
	}
	return &sub, nil
}

func (s *SQLiteStore) GetSubmissions() ([]models.Submission, error) {
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

func (s *SQLiteStore) UpdateSubmissionSummary(id, summary string) error {
	res, err := s.db.Exec(`UPDATE submissions SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("failed to update summary for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (s *SQLiteStore) GetItem(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM local_storage WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read item %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) SetItem(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write item %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveItem(key string) error {
	if _, err := s.db.Exec(`DELETE FROM local_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove item %s: %w", key, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
