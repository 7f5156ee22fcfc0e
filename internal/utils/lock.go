package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/mitchellh/go-homedir"
)

// DBLock makes one writer at a time own the trolley database. The file
// lock excludes other processes; flock is re-entrant within a process, so
// mu excludes other goroutines sharing this DBLock.
type DBLock struct {
	mu   sync.Mutex
	file *flock.Flock
	path string
}

// NewDBLock returns the lock guarding the database at dbPath.
func NewDBLock(dbPath string) (*DBLock, error) {
	abs, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not resolve db path: %w", err)
	}
	path := abs + ".lock"
	return &DBLock{file: flock.New(path), path: path}, nil
}

// Lock blocks until this caller is the only writer.
func (l *DBLock) Lock() error {
	l.mu.Lock()
	if err := l.lockFile(); err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *DBLock) lockFile() error {
	ok, err := l.file.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	if ok {
		return nil
	}
	fmt.Fprintln(os.Stderr, "Another trolley command is updating the database, waiting for it to finish...")
	if err := l.file.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	return nil
}

// Unlock releases a lock taken by a successful Lock.
func (l *DBLock) Unlock() error {
	defer l.mu.Unlock()
	if err := l.file.Unlock(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the database path. Empty means the default under
// ~/.config/trolley, and a leading ~ is expanded.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "trolley", "trolley.sqlite"), nil
	}
	expanded, err := homedir.Expand(dbPath)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// EnsureDBDir creates the directory holding the database file.
func EnsureDBDir(dbPath string) (string, error) {
	abs, err := GetAbsDBPath(dbPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("could not create %s: %w", filepath.Dir(abs), err)
	}
	return abs, nil
}
