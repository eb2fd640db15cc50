package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/ClinicIntake/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const outboxColumns = `id, submission_id, kind, payload_json, status, attempts, next_attempt_at, locked_at, last_error, created_at, updated_at`

func scanOutboxMessage(rows rowScanner) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&m.ID, &m.SubmissionID, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}

const submissionColumns = `id, answers_json, summary, created_at`

func scanSubmission(row rowScanner) (models.Submission, error) {
	var sub models.Submission
	var answersJSON string
	var summary sql.NullString
	if err := row.Scan(&sub.ID, &answersJSON, &summary, &sub.CreatedAt); err != nil {
		return sub, err
	}
	var raw models.Answers
	if err := json.Unmarshal([]byte(answersJSON), &raw); err != nil {
		return sub, fmt.Errorf("decode answers for %s: %w", sub.ID, err)
	}
	sub.Answers = raw.Normalize()
	sub.Summary = summary.String
	return sub, nil
}

func encodeAnswers(a models.Answers) (string, error) {
	if a == nil {
		a = models.Answers{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}
	return string(data), nil
}
