package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const lockFileName = "LOCK"

// ErrLocked reports a data directory already opened by another process.
var ErrLocked = errors.New("data directory locked by another process")

// dirLock is an advisory flock(2) on a lock file inside the data directory.
// The log's crash-safety guarantees assume a single writing process; the
// lock turns a silent double-open into a hard error.
type dirLock struct {
	file *os.File
}

// acquireDirLock takes a non-blocking exclusive lock on dir/LOCK.
func acquireDirLock(dir string) (*dirLock, error) {
	path := filepath.Join(dir, lockFileName)

	file, err := os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	err = flockRetryEINTR(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
		}

		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return &dirLock{file: file}, nil
}

// release unlocks and closes the lock file. Idempotent.
func (l *dirLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	return errors.Join(unlockErr, closeErr)
}

// flockRetryEINTR wraps flock, retrying when a signal interrupts the
// syscall. Retries are capped to avoid spinning under a signal storm.
func flockRetryEINTR(fd int, how int) error {
	const maxRetries = 10000

	var err error

	for i := 0; i < maxRetries; i++ {
		err = syscall.Flock(fd, how)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			return err
		}
	}

	return err
}
