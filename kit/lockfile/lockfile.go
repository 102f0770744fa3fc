// Package lockfile implements a PID lock file that keeps two processes from
// working on the same directory at once.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrHeld is returned when another live process holds the lock.
var ErrHeld = errors.New("lock is held by another process")

type Lock struct {
	path string
}

func New(path string) *Lock {
	return &Lock{path: path}
}

func (l *Lock) Path() string { return l.path }

// Acquire writes the current PID to the lock file.
// A lock left behind by a dead process is taken over.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && pid > 0 && pid != os.Getpid() && isProcessRunning(pid) {
			return fmt.Errorf("%w (PID %d, %s)", ErrHeld, pid, l.path)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("read lock file: %w", err)
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// Release removes the lock file. Releasing a missing lock is not an error.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
