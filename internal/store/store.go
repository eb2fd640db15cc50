// Package store provides storage backends for ClinicIntake.
//
// It includes an in-memory store plus SQLite and PostgreSQL backends for delivery
// receipts, submitted questionnaires, submission idempotency keys, the staff
// notification outbox, and the key/value local storage that holds a wizard's
// in-progress answers.
package store

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/util"
)

// ErrSubmissionNotFound is returned when a submission id is unknown.
var ErrSubmissionNotFound = errors.New("submission not found")

// Store defines the persistence used by the intake API server.
type Store interface {
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)

	AddSubmission(s models.Submission) error
	GetSubmission(id string) (*models.Submission, error)
	GetSubmissions() ([]models.Submission, error)
	UpdateSubmissionSummary(id, summary string) error

	Close() error
}

// LocalStorage mirrors the browser key/value storage API. Values are opaque
// strings; GetItem reports found=false for a missing key.
type LocalStorage interface {
	GetItem(key string) (value string, found bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps everything in process memory. It backs tests, servers
// started without a DSN, and wizard clients whose local database cannot be opened.
type InMemoryStore struct {
	mu          sync.RWMutex
	receipts    []models.Receipt
	submissions map[string]models.Submission
	order       []string
	items       map[string]string
	dedup       map[string]DedupRecord
	outbox      map[string]*OutboxMessage
}

// Compile-time checks that InMemoryStore implements every repository.
var (
	_ Store        = (*InMemoryStore)(nil)
	_ LocalStorage = (*InMemoryStore)(nil)
	_ DedupRepo    = (*InMemoryStore)(nil)
	_ OutboxRepo   = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		submissions: make(map[string]models.Submission),
		items:       make(map[string]string),
		dedup:       make(map[string]DedupRecord),
		outbox:      make(map[string]*OutboxMessage),
	}
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

func (s *InMemoryStore) AddSubmission(sub models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.submissions[sub.ID]; !exists {
		s.order = append(s.order, sub.ID)
	}
	sub.Answers = sub.Answers.Clone()
	s.submissions[sub.ID] = sub
	return nil
}

func (s *InMemoryStore) GetSubmission(id string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	sub.Answers = sub.Answers.Clone()
	return &sub, nil
}

func (s *InMemoryStore) GetSubmissions() ([]models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Submission, 0, len(s.order))
	for _, id := range s.order {
		sub := s.submissions[id]
		sub.Answers = sub.Answers.Clone()
		out = append(out, sub)
	}
	return out, nil
}

func (s *InMemoryStore) UpdateSubmissionSummary(id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return ErrSubmissionNotFound
	}
	sub.Summary = summary
	s.submissions[id] = sub
	return nil
}

func (s *InMemoryStore) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *InMemoryStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *InMemoryStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *InMemoryStore) LookupSubmissionKey(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.dedup[key]
	return rec.SubmissionID, ok, nil
}

func (s *InMemoryStore) RecordSubmissionKey(key, submissionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[key]; ok {
		return false, nil
	}
	s.dedup[key] = DedupRecord{Key: key, SubmissionID: submissionID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) PurgeSubmissionKeys(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.dedup {
		if rec.ReceivedAt.Before(before) {
			delete(s.dedup, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(submissionID, kind, payloadJSON string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	id := util.GenerateOutboxID()
	s.outbox[id] = &OutboxMessage{
		ID:           id,
		SubmissionID: submissionID,
		Kind:         kind,
		PayloadJSON:  payloadJSON,
		Status:       OutboxStatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	slog.Debug("InMemoryStore.EnqueueOutboxMessage", "id", id, "submissionID", submissionID, "kind", kind)
	return id, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*OutboxMessage
	for _, m := range s.outbox {
		if m.Status != OutboxStatusQueued {
			continue
		}
		if m.NextAttemptAt != nil && m.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, m)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]OutboxMessage, 0, len(due))
	for _, m := range due {
		locked := now
		m.Status = OutboxStatusSending
		m.LockedAt = &locked
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return errors.New("outbox message not found")
	}
	m.Status = OutboxStatusSent
	m.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return errors.New("outbox message not found")
	}
	next := nextAttemptAt
	m.Status = OutboxStatusQueued
	m.Attempts++
	m.LastError = errMsg
	m.NextAttemptAt = &next
	m.LockedAt = nil
	m.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) AbandonOutboxMessage(id, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return errors.New("outbox message not found")
	}
	m.Status = OutboxStatusFailed
	m.LastError = errMsg
	m.LockedAt = nil
	m.UpdatedAt = time.Now()
	return nil
}

// OutboxMessages returns a snapshot of every outbox message, oldest first.
func (s *InMemoryStore) OutboxMessages() []OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *InMemoryStore) Close() error {
	return nil
}
