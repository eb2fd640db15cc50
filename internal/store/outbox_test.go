package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outboxBackends(t *testing.T) map[string]OutboxRepo {
	return map[string]OutboxRepo{
		"memory": NewInMemoryStore(),
		"sqlite": newTestSQLiteStore(t),
	}
}

func TestOutboxClaimAndSend(t *testing.T) {
	for name, repo := range outboxBackends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := repo.EnqueueOutboxMessage("sub-1", OutboxKindStaffNotice, `{"to":"staff@example.com"}`)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			msgs, err := repo.ClaimDueOutboxMessages(time.Now(), 10)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, id, msgs[0].ID)
			assert.Equal(t, "sub-1", msgs[0].SubmissionID)
			assert.Equal(t, OutboxStatusSending, msgs[0].Status)

			again, err := repo.ClaimDueOutboxMessages(time.Now(), 10)
			require.NoError(t, err)
			assert.Empty(t, again, "claimed messages must not be handed out twice")

			require.NoError(t, repo.MarkOutboxMessageSent(id))
			after, err := repo.ClaimDueOutboxMessages(time.Now().Add(time.Hour), 10)
			require.NoError(t, err)
			assert.Empty(t, after)
		})
	}
}

func TestOutboxFailSchedulesRetry(t *testing.T) {
	for name, repo := range outboxBackends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := repo.EnqueueOutboxMessage("sub-2", OutboxKindStaffNotice, "")
			require.NoError(t, err)
			_, err = repo.ClaimDueOutboxMessages(time.Now(), 10)
			require.NoError(t, err)

			retryAt := time.Now().Add(time.Minute)
			require.NoError(t, repo.FailOutboxMessage(id, "smtp down", retryAt))

			early, err := repo.ClaimDueOutboxMessages(time.Now(), 10)
			require.NoError(t, err)
			assert.Empty(t, early)

			due, err := repo.ClaimDueOutboxMessages(retryAt.Add(time.Second), 10)
			require.NoError(t, err)
			require.Len(t, due, 1)
			assert.Equal(t, 1, due[0].Attempts)
			assert.Equal(t, "smtp down", due[0].LastError)
		})
	}
}

func TestOutboxRequeueStale(t *testing.T) {
	for name, repo := range outboxBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.EnqueueOutboxMessage("sub-3", OutboxKindStaffNotice, "")
			require.NoError(t, err)
			claimedAt := time.Now().Add(-time.Hour)
			_, err = repo.ClaimDueOutboxMessages(claimedAt, 10)
			require.NoError(t, err)

			n, err := repo.RequeueStaleSendingMessages(time.Now().Add(-time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			msgs, err := repo.ClaimDueOutboxMessages(time.Now(), 10)
			require.NoError(t, err)
			assert.Len(t, msgs, 1)
		})
	}
}

func TestOutboxSenderRetriesThenAbandons(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.EnqueueOutboxMessage("sub-4", OutboxKindStaffNotice, "")
	require.NoError(t, err)

	calls := 0
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error {
		calls++
		return errors.New("provider rejected")
	}, time.Millisecond)
	sender.baseBackoff = 0
	sender.maxAttempts = 2

	sender.Poll(context.Background())
	sender.Poll(context.Background())
	sender.Poll(context.Background())

	assert.Equal(t, 2, calls)
	msgs := s.OutboxMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, OutboxStatusFailed, msgs[0].Status)
	assert.Equal(t, "provider rejected", msgs[0].LastError)
}

func TestOutboxSenderRestartRecovery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "restart.db")

	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	require.NoError(t, err)
	_, err = s1.EnqueueOutboxMessage("sub-5", OutboxKindStaffNotice, "")
	require.NoError(t, err)
	// Claimed long ago by a process that then died.
	_, err = s1.ClaimDueOutboxMessages(time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	require.NoError(t, err)
	defer s2.Close()

	sent := 0
	sender := NewOutboxSender(s2, func(ctx context.Context, msg OutboxMessage) error {
		sent++
		return nil
	}, time.Millisecond)
	require.NoError(t, sender.RecoverStaleMessages())
	sender.Poll(context.Background())
	sender.Poll(context.Background())
	assert.Equal(t, 1, sent)
}

func TestSubmissionKeys(t *testing.T) {
	for name, repo := range map[string]DedupRepo{"memory": NewInMemoryStore(), "sqlite": newTestSQLiteStore(t)} {
		t.Run(name, func(t *testing.T) {
			_, found, err := repo.LookupSubmissionKey("idem-1")
			require.NoError(t, err)
			assert.False(t, found)

			fresh, err := repo.RecordSubmissionKey("idem-1", "sub-1")
			require.NoError(t, err)
			assert.True(t, fresh)

			fresh, err = repo.RecordSubmissionKey("idem-1", "sub-2")
			require.NoError(t, err)
			assert.False(t, fresh)

			id, found, err := repo.LookupSubmissionKey("idem-1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "sub-1", id)
		})
	}
}

func TestPurgeSubmissionKeys(t *testing.T) {
	for name, repo := range map[string]DedupRepo{"memory": NewInMemoryStore(), "sqlite": newTestSQLiteStore(t)} {
		t.Run(name, func(t *testing.T) {
			_, err := repo.RecordSubmissionKey("old", "sub-1")
			require.NoError(t, err)

			n, err := repo.PurgeSubmissionKeys(time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.Zero(t, n, "recent keys are kept")

			n, err = repo.PurgeSubmissionKeys(time.Now().Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, found, err := repo.LookupSubmissionKey("old")
			require.NoError(t, err)
			assert.False(t, found)

			fresh, err := repo.RecordSubmissionKey("old", "sub-2")
			require.NoError(t, err)
			assert.True(t, fresh, "a purged key can be recorded again")
		})
	}
}
