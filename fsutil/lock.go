package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// ErrInvalidTimeout is returned when a lock timeout is <= 0.
var ErrInvalidTimeout = errors.New("invalid lock timeout")

const (
	// DefaultLockTimeout bounds how long [Lock] waits for a contended lock.
	DefaultLockTimeout = 2 * time.Second

	maxLockBackoff = 25 * time.Millisecond

	lockPerms = 0o644
	dirPerms  = 0o755
)

// LockFile acquires an exclusive advisory lock guarding path, waiting up
// to [DefaultLockTimeout] for a holder to release it.
//
// Locking uses flock(2) on a dedicated lock file next to path (under a
// .locks subdirectory, so taking a lock does not bump the parent
// directory's mtime). flock applies to an inode, not a pathname, so Lock
// verifies after acquisition that the locked descriptor still refers to the
// file currently at the lock path and retries if the file was replaced in
// the open-to-flock window.
//
// Locks coordinate cooperating processes on the host filesystem only; they
// cannot guard entries of a non-disk [vfs.FS] backend. Unix-only.
//
// Call [Lock.Close] to release.
func LockFile(path string) (*Lock, error) {
	return LockFileWithTimeout(path, DefaultLockTimeout)
}

// LockFileWithTimeout is [LockFile] with an explicit acquisition timeout.
// Returns [os.ErrDeadlineExceeded] if the lock stays contended past timeout.
//
// Acquisition polls with non-blocking flock plus bounded backoff. A blocking
// flock cannot be cancelled: abandoning one on timeout leaves a goroutine
// parked on a raw fd number that the process may reuse for an unrelated
// file, which the goroutine would then lock and never release.
func LockFileWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	locksDir := filepath.Join(filepath.Dir(path), ".locks")
	lockPath := filepath.Join(locksDir, filepath.Base(path)+".lock")

	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		if err := os.MkdirAll(locksDir, dirPerms); err != nil {
			return nil, err
		}

		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockPerms)
		if err != nil {
			return nil, err
		}

		lock, err := tryFlock(file, lockPath)
		if err == nil {
			return lock, nil
		}

		file.Close()

		retryable := errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, errLockReplaced)
		if !retryable {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, os.ErrDeadlineExceeded
		}

		time.Sleep(min(backoff, remaining))

		if backoff < maxLockBackoff {
			backoff = min(backoff*2, maxLockBackoff)
		}
	}
}

var errLockReplaced = errors.New("lock file replaced while acquiring lock")

// tryFlock takes a non-blocking flock on file and verifies that the locked
// descriptor still refers to the inode currently at lockPath. On failure the
// file is unlocked but NOT closed; the caller closes it.
//
// Returns [unix.EWOULDBLOCK] when another holder has the lock and
// [errLockReplaced] when the lock file was swapped in the open-to-flock
// window; both mean the caller should retry with a fresh descriptor.
func tryFlock(file *os.File, lockPath string) (*Lock, error) {
	fd := int(file.Fd())

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return nil, err
	}

	var openStat unix.Stat_t
	if err := unix.Fstat(fd, &openStat); err != nil {
		_ = unix.Flock(fd, unix.LOCK_UN)

		return nil, err
	}

	var pathStat unix.Stat_t
	if err := unix.Stat(lockPath, &pathStat); err != nil || pathStat.Ino != openStat.Ino {
		_ = unix.Flock(fd, unix.LOCK_UN)

		return nil, errLockReplaced
	}

	return &Lock{path: lockPath, file: file}, nil
}

// Lock is a held exclusive lock. Close releases it and removes the lock
// file. Close is idempotent.
type Lock struct {
	path string
	file *os.File
}

func (l *Lock) Close() error {
	if l.file != nil {
		_ = os.Remove(l.path)
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		err := l.file.Close()
		l.file = nil

		return err
	}

	return nil
}
