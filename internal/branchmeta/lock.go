package branchmeta

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// DefaultLockTimeout bounds how long a mutation waits for a concurrent writer.
	DefaultLockTimeout = 2 * time.Second

	lockFileSuffixConstant           = ".lock"
	lockPollIntervalConstant         = 10 * time.Millisecond
	lockFilePermissionsConstant      = 0o644
	lockTimeoutMessageConstant       = "timed out waiting for metadata lock"
	lockTimeoutTemplateConstant      = "%w: %s"
	lockOpenErrorTemplateConstant    = "failed to open lock file %s: %w"
	lockAcquireErrorTemplateConstant = "failed to lock %s: %w"
)

// ErrLockTimeout indicates another process held the metadata lock for longer than the configured timeout.
var ErrLockTimeout = errors.New(lockTimeoutMessageConstant)

type fileLock struct {
	path string
	file *os.File
}

// acquireFileLock takes an exclusive advisory flock on lockPath, polling until timeout elapses.
func acquireFileLock(lockPath string, timeout time.Duration) (*fileLock, error) {
	lockFile, openError := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockFilePermissionsConstant)
	if openError != nil {
		return nil, fmt.Errorf(lockOpenErrorTemplateConstant, lockPath, openError)
	}

	deadline := time.Now().Add(timeout)
	for {
		flockError := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if flockError == nil {
			return &fileLock{path: lockPath, file: lockFile}, nil
		}

		if !errors.Is(flockError, unix.EWOULDBLOCK) && !errors.Is(flockError, unix.EINTR) {
			_ = lockFile.Close()
			return nil, fmt.Errorf(lockAcquireErrorTemplateConstant, lockPath, flockError)
		}

		if !time.Now().Before(deadline) {
			_ = lockFile.Close()
			return nil, fmt.Errorf(lockTimeoutTemplateConstant, ErrLockTimeout, lockPath)
		}

		time.Sleep(lockPollIntervalConstant)
	}
}

// release drops the flock and closes the descriptor. The lock file itself is left in place.
func (lock *fileLock) release() error {
	if lock == nil || lock.file == nil {
		return nil
	}

	unlockError := unix.Flock(int(lock.file.Fd()), unix.LOCK_UN)
	closeError := lock.file.Close()
	lock.file = nil

	return errors.Join(unlockError, closeError)
}
