package flow

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/store"
)

// StorageKey is the local storage key holding in-progress answers.
const StorageKey = "intakeFormData"

// AnswerStore owns the answers of one wizard session and mirrors them to
// local storage. Storage is best-effort: failures are logged and the store
// keeps working from memory.
type AnswerStore struct {
	mu       sync.RWMutex
	answers  models.Answers
	storage  store.LocalStorage
	degraded bool
}

// NewAnswerStore hydrates from storage. A nil storage keeps answers in memory only.
func NewAnswerStore(storage store.LocalStorage) *AnswerStore {
	s := &AnswerStore{storage: storage}
	s.answers = s.hydrate()
	return s
}

func (s *AnswerStore) hydrate() models.Answers {
	defaults := models.DefaultAnswers()
	if s.storage == nil {
		return defaults
	}
	blob, found, err := s.storage.GetItem(StorageKey)
	if err != nil {
		slog.Warn("AnswerStore.hydrate: read failed, starting fresh", "error", err)
		s.degraded = true
		return defaults
	}
	if !found || blob == "" {
		return defaults
	}
	var saved models.Answers
	if err := json.Unmarshal([]byte(blob), &saved); err != nil || saved == nil {
		slog.Warn("AnswerStore.hydrate: ignoring unreadable saved progress", "error", err)
		return defaults
	}
	slog.Debug("AnswerStore.hydrate: resumed saved progress", "keys", len(saved))
	return defaults.Merge(saved.Normalize())
}

// Answers returns a copy of the current answers.
func (s *AnswerStore) Answers() models.Answers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answers.Clone()
}

// Update shallow-merges partial into the answers and persists the result.
func (s *AnswerStore) Update(partial models.Answers) {
	s.mu.Lock()
	s.answers = s.answers.Merge(partial.Normalize())
	snapshot := s.answers.Clone()
	s.mu.Unlock()
	s.persist(snapshot)
}

// Reset restores defaults and removes saved progress.
func (s *AnswerStore) Reset() {
	s.mu.Lock()
	s.answers = models.DefaultAnswers()
	s.mu.Unlock()
	s.Clear()
}

// Clear removes saved progress and keeps the in-memory answers.
func (s *AnswerStore) Clear() {
	if s.storage == nil {
		return
	}
	if err := s.storage.RemoveItem(StorageKey); err != nil {
		slog.Warn("AnswerStore.Clear: remove failed", "error", err)
		s.markDegraded()
	}
}

// Degraded reports whether a storage call has failed this session.
func (s *AnswerStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

func (s *AnswerStore) persist(a models.Answers) {
	if s.storage == nil {
		return
	}
	blob, err := json.Marshal(a)
	if err != nil {
		slog.Error("AnswerStore.persist: encode failed", "error", err)
		return
	}
	if err := s.storage.SetItem(StorageKey, string(blob)); err != nil {
		slog.Warn("AnswerStore.persist: write failed, continuing in memory", "error", err)
		s.markDegraded()
	}
}

func (s *AnswerStore) markDegraded() {
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
}
