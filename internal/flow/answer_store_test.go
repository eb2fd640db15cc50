package flow

import (
	"errors"
	"testing"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct {
	getErr, setErr, removeErr error
}

func (f failingStorage) GetItem(string) (string, bool, error) { return "", false, f.getErr }
func (f failingStorage) SetItem(string, string) error         { return f.setErr }
func (f failingStorage) RemoveItem(string) error              { return f.removeErr }

func TestAnswerStoreHydratesPartialBlob(t *testing.T) {
	mem := store.NewInMemoryStore()
	require.NoError(t, mem.SetItem(StorageKey, `{"stateselect":"Ohio","email":"a@b.com"}`))

	got := NewAnswerStore(mem).Answers()
	assert.Equal(t, "Ohio", got.String(models.KeyState))
	assert.Equal(t, "a@b.com", got.String(models.KeyEmail))

	want := models.DefaultAnswers()
	want[models.KeyState] = "Ohio"
	want[models.KeyEmail] = "a@b.com"
	assert.Equal(t, want, got)
}

func TestAnswerStoreIgnoresCorruptBlob(t *testing.T) {
	mem := store.NewInMemoryStore()
	require.NoError(t, mem.SetItem(StorageKey, `{not json`))

	s := NewAnswerStore(mem)
	assert.Equal(t, models.DefaultAnswers(), s.Answers())
	assert.False(t, s.Degraded())
}

func TestAnswerStoreUpdatePersists(t *testing.T) {
	mem := store.NewInMemoryStore()
	s := NewAnswerStore(mem)
	s.Update(models.Answers{models.KeyState: "Texas"})
	s.Update(models.Answers{models.KeyConditions: []string{"anxiety"}})

	reloaded := NewAnswerStore(mem).Answers()
	assert.Equal(t, "Texas", reloaded.String(models.KeyState))
	assert.Equal(t, []string{"anxiety"}, reloaded.List(models.KeyConditions))
}

func TestAnswerStoreAnswersIsACopy(t *testing.T) {
	s := NewAnswerStore(nil)
	a := s.Answers()
	a[models.KeyState] = "Utah"
	assert.Equal(t, "", s.Answers().String(models.KeyState))
}

func TestAnswerStoreResetRemovesBlob(t *testing.T) {
	mem := store.NewInMemoryStore()
	s := NewAnswerStore(mem)
	s.Update(models.Answers{models.KeyState: "Ohio"})

	s.Reset()
	assert.Equal(t, models.DefaultAnswers(), s.Answers())
	_, found, err := mem.GetItem(StorageKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAnswerStoreClearKeepsMemory(t *testing.T) {
	mem := store.NewInMemoryStore()
	s := NewAnswerStore(mem)
	s.Update(models.Answers{models.KeyState: "Ohio"})

	s.Clear()
	assert.Equal(t, "Ohio", s.Answers().String(models.KeyState))
	_, found, _ := mem.GetItem(StorageKey)
	assert.False(t, found)
}

func TestAnswerStoreSurvivesStorageFailures(t *testing.T) {
	boom := errors.New("quota exceeded")

	s := NewAnswerStore(failingStorage{getErr: boom})
	assert.True(t, s.Degraded())
	assert.Equal(t, models.DefaultAnswers(), s.Answers())

	s = NewAnswerStore(failingStorage{setErr: boom, removeErr: boom})
	assert.False(t, s.Degraded())
	s.Update(models.Answers{models.KeyState: "Ohio"})
	assert.True(t, s.Degraded())
	assert.Equal(t, "Ohio", s.Answers().String(models.KeyState), "updates still apply in memory")
	s.Reset()
	assert.Equal(t, "", s.Answers().String(models.KeyState))
}

func TestAnswerStoreSQLiteBackend(t *testing.T) {
	path := t.TempDir() + "/state.db"
	db, err := store.NewSQLiteStore(store.WithSQLiteDSN(path))
	require.NoError(t, err)

	NewAnswerStore(db).Update(models.Answers{models.KeyFirstName: "Ada"})
	require.NoError(t, db.Close())

	db, err = store.NewSQLiteStore(store.WithSQLiteDSN(path))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, "Ada", NewAnswerStore(db).Answers().String(models.KeyFirstName))
}
