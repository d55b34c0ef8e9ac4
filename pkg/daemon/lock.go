package daemon

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// InstanceLock is a single-instance advisory file lock at
// "<socket_path>.lock", acquired non-blocking-exclusive so a second daemon
// launched against the same TsukuHome fails fast instead of queueing.
type InstanceLock struct {
	path string
	file *os.File
}

// AlreadyRunning is returned by AcquireLock when another daemon already
// holds the lock.
type AlreadyRunning struct {
	LockPath string
}

func (e AlreadyRunning) Error() string {
	return fmt.Sprintf("another daemon is already running (lock held at %s)", e.LockPath)
}

// AcquireLock opens (creating if necessary) the lock file at path and takes
// a non-blocking exclusive flock on it. The lock is held until Release is
// called or the process exits, whichever comes first — the OS reclaims it
// either way.
func AcquireLock(path string) (*InstanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("daemon: opening lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, AlreadyRunning{LockPath: path}
		}
		return nil, fmt.Errorf("daemon: acquiring lock %s: %w", path, err)
	}

	return &InstanceLock{path: path, file: f}, nil
}

// Release unlocks and removes the lock file. Safe to call once; a second
// call is a no-op.
func (l *InstanceLock) Release() error {
	if l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	return os.Remove(l.path)
}
