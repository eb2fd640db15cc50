package store

import (
	"time"
)

// DedupRecord ties a client-supplied idempotency key to the submission it created.
type DedupRecord struct {
	Key          string    `json:"key"`
	SubmissionID string    `json:"submission_id"`
	ReceivedAt   time.Time `json:"received_at"`
}

// DedupRepo defines the interface for submission idempotency keys.
type DedupRepo interface {
	// LookupSubmissionKey returns the submission recorded for key, if any.
	LookupSubmissionKey(key string) (submissionID string, found bool, err error)

	// RecordSubmissionKey stores key for submissionID. Returns false if the key
	// was already recorded.
	RecordSubmissionKey(key, submissionID string) (bool, error)

	// PurgeSubmissionKeys deletes keys received before the cutoff and
	// returns how many were removed.
	PurgeSubmissionKeys(before time.Time) (int, error)
}
