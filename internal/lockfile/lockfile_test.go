package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesHolder(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	assert.Equal(t, filepath.Join(dir, LockFileName), lock.Path())
	h := ReadHolder(lock.Path())
	assert.Equal(t, os.Getpid(), h.PID)
	assert.True(t, h.Running)
	assert.False(t, h.Started.IsZero())
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir)
	require.NoError(t, err)
	defer first.Release()

	second, err := Acquire(dir)
	if err == nil {
		second.Release()
		t.Fatal("second acquisition should fail")
	}
	assert.True(t, errors.Is(err, ErrLocked))
	var lockErr *LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, os.Getpid(), lockErr.Holder.PID, "the failed attempt must not clobber the record")
	assert.Contains(t, err.Error(), dir)
	assert.Contains(t, err.Error(), "PID "+strconv.Itoa(os.Getpid()))
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, lock.Release())

	again, err := Acquire(dir)
	require.NoError(t, err)
	defer again.Release()
}

func TestAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestReadHolder(t *testing.T) {
	dir := t.TempDir()
	write := func(content string) string {
		p := filepath.Join(dir, "lock")
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	tests := []struct {
		name    string
		content string
		pid     int
	}{
		{"pid and start", "pid=12345\nstarted=2026-01-02T03:04:05Z\n", 12345},
		{"extra keys", "other=info\npid=678\n", 678},
		{"no pid", "other=info", 0},
		{"empty", "", 0},
		{"invalid pid", "pid=abc", 0},
		{"negative pid", "pid=-4", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pid, ReadHolder(write(tt.content)).PID)
		})
	}

	assert.Equal(t, Holder{}, ReadHolder(filepath.Join(dir, "missing")))
	assert.Equal(t, "unknown process", Holder{}.String())
	assert.True(t, strings.Contains(Holder{PID: 7}.String(), "stale lock"))
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, isProcessRunning(os.Getpid()))
}
