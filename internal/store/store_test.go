package store

import (
	"errors"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every store that can run without external services.
func backends(t *testing.T) map[string]interface {
	Store
	LocalStorage
} {
	return map[string]interface {
		Store
		LocalStorage
	}{
		"memory": NewInMemoryStore(),
		"sqlite": newTestSQLiteStore(t),
	}
}

func TestReceiptsRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := models.Receipt{To: "+15551234567", Channel: models.ChannelSMS, Kind: models.ReceiptKindOTP, Status: models.MessageStatusSent, Time: 1}
			if err := s.AddReceipt(r); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			receipts, err := s.GetReceipts()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(receipts) != 1 || receipts[0] != r {
				t.Errorf("receipt not stored or retrieved correctly: %#v", receipts)
			}
		})
	}
}

func TestSubmissionsRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			answers := models.DefaultAnswers().Merge(models.Answers{
				models.KeyState:      "Ohio",
				models.KeyEmail:      "a@b.com",
				models.KeyConditions: []string{"anxiety"},
			})
			created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			if err := s.AddSubmission(models.Submission{ID: "sub-1", Answers: answers, CreatedAt: created}); err != nil {
				t.Fatalf("AddSubmission failed: %v", err)
			}

			got, err := s.GetSubmission("sub-1")
			if err != nil {
				t.Fatalf("GetSubmission failed: %v", err)
			}
			if got.Answers.String(models.KeyState) != "Ohio" {
				t.Errorf("expected state Ohio, got %q", got.Answers.String(models.KeyState))
			}
			if l := got.Answers.List(models.KeyConditions); len(l) != 1 || l[0] != "anxiety" {
				t.Errorf("expected conditions [anxiety], got %#v", got.Answers[models.KeyConditions])
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("expected created_at %v, got %v", created, got.CreatedAt)
			}

			if err := s.UpdateSubmissionSummary("sub-1", "summary text"); err != nil {
				t.Fatalf("UpdateSubmissionSummary failed: %v", err)
			}
			all, err := s.GetSubmissions()
			if err != nil {
				t.Fatalf("GetSubmissions failed: %v", err)
			}
			if len(all) != 1 || all[0].Summary != "summary text" {
				t.Errorf("unexpected submissions: %#v", all)
			}

			if _, err := s.GetSubmission("missing"); !errors.Is(err, ErrSubmissionNotFound) {
				t.Errorf("expected ErrSubmissionNotFound, got %v", err)
			}
			if err := s.UpdateSubmissionSummary("missing", "x"); !errors.Is(err, ErrSubmissionNotFound) {
				t.Errorf("expected ErrSubmissionNotFound, got %v", err)
			}
		})
	}
}

func TestLocalStorage(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, found, err := s.GetItem("intakeFormData"); err != nil || found {
				t.Fatalf("expected missing key, got found=%v err=%v", found, err)
			}
			if err := s.SetItem("intakeFormData", `{"a":1}`); err != nil {
				t.Fatalf("SetItem failed: %v", err)
			}
			if err := s.SetItem("intakeFormData", `{"a":2}`); err != nil {
				t.Fatalf("SetItem overwrite failed: %v", err)
			}
			v, found, err := s.GetItem("intakeFormData")
			if err != nil || !found || v != `{"a":2}` {
				t.Fatalf("GetItem = (%q, %v, %v)", v, found, err)
			}
			if err := s.RemoveItem("intakeFormData"); err != nil {
				t.Fatalf("RemoveItem failed: %v", err)
			}
			if _, found, _ := s.GetItem("intakeFormData"); found {
				t.Error("expected key to be removed")
			}
			if err := s.RemoveItem("never-set"); err != nil {
				t.Errorf("removing a missing key should not fail: %v", err)
			}
		})
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "intake.db")
	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s1.SetItem("k", "v"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	if v, found, _ := s2.GetItem("k"); !found || v != "v" {
		t.Errorf("expected persisted value, got %q found=%v", v, found)
	}
}

func TestNewSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error without DSN")
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":   "postgres",
		"postgresql://localhost/db":     "postgres",
		"host=localhost dbname=intake": "postgres",
		"/var/lib/intake/state.db":      "sqlite",
		"file.db":                       "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	pgStore.db.Exec("DELETE FROM receipts")
	r := models.Receipt{To: "+123", Channel: models.ChannelEmail, Kind: models.ReceiptKindOTP, Status: models.MessageStatusSent, Time: 1}
	if err := pgStore.AddReceipt(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	receipts, err := pgStore.GetReceipts()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(receipts) != 1 || receipts[0].To != "+123" {
		t.Error("Receipt not stored or retrieved correctly in Postgres")
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

