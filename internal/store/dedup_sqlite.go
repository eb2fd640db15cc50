package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Compile-time check that SQLiteStore implements DedupRepo.
var _ DedupRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) LookupSubmissionKey(key string) (string, bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT submission_id FROM submission_dedup WHERE idem_key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup lookup failed: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteStore) RecordSubmissionKey(key, submissionID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO submission_dedup (idem_key, submission_id, received_at) VALUES (?, ?, ?)`,
		key, submissionID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record submission key failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) PurgeSubmissionKeys(before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM submission_dedup WHERE received_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge submission keys failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected check failed: %w", err)
	}
	return int(n), nil
}
