// Package lockfile keeps a wizard state directory single-writer.
//
// Saved answers assume exactly one session edits them. The lock is an flock on
// a file inside the state directory, so the kernel drops it when the process
// exits, cleanly or not.
package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "intake-wizard.lock"

// ErrLocked is matched by errors.Is when another session holds the lock.
var ErrLocked = errors.New("state directory is locked by another session")

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	Started time.Time
	Running bool
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown process"
	}
	state := "not running, stale lock"
	if h.Running {
		state = "running"
	}
	if h.Started.IsZero() {
		return fmt.Sprintf("PID %d (%s)", h.PID, state)
	}
	return fmt.Sprintf("PID %d started %s (%s)", h.PID, h.Started.Format(time.RFC3339), state)
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the lock on stateDir, creating the directory if needed. It
// fails fast with a *LockError when another process holds it.
func Acquire(stateDir string) (*Lock, error) {
	path := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.Acquire", "path", path)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", stateDir, err)
	}
	// No O_TRUNC: the current holder's record must survive a failed attempt.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := ReadHolder(path)
		slog.Warn("lockfile.Acquire: state directory busy", "path", path, "holder", holder.String())
		return nil, &LockError{Path: path, Holder: holder, Cause: err}
	}

	record := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := writeRecord(file, record); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("write lock file %s: %w", path, err)
	}

	slog.Debug("lockfile.Acquire: lock held", "path", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

func writeRecord(f *os.File, record string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(record), 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("lockfile.writeRecord: sync failed", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the lock so a waiting process never sees
	// our record after we let go.
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Lock.Release: remove failed", "path", l.path, "error", err)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: unlock failed", "path", l.path, "error", err)
	}
	err := l.file.Close()
	l.file = nil
	slog.Debug("Lock.Release: lock released", "path", l.path)
	return err
}

// LockError reports a state directory held by another process.
type LockError struct {
	Path   string
	Holder Holder
	Cause  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("another intake-wizard session is using this state directory (%s)\n"+
		"lock file: %s\n"+
		"If that process is gone, remove the lock file and try again.", e.Holder, e.Path)
}

func (e *LockError) Unwrap() error { return e.Cause }

// Is matches ErrLocked.
func (e *LockError) Is(target error) bool { return target == ErrLocked }

// ReadHolder parses the record in a lock file. Unknown or unreadable content
// yields a zero Holder.
func ReadHolder(path string) Holder {
	f, err := os.Open(path)
	if err != nil {
		return Holder{}
	}
	defer f.Close()
	var h Holder
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch k {
		case "pid":
			h.PID = parsePID(v)
		case "started":
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				h.Started = t
			}
		}
	}
	if h.PID > 0 {
		h.Running = isProcessRunning(h.PID)
	}
	return h
}

func parsePID(s string) int {
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// isProcessRunning sends signal 0, which checks for existence without delivering anything.
func isProcessRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
