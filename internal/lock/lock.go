package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created inside a profile directory.
const FileName = "LOCK"

// LockHeldError is returned when another daemon already serves the profile.
type LockHeldError struct {
	PID     int
	Started time.Time
	Path    string
}

func (e *LockHeldError) Error() string {
	if e.Started.IsZero() {
		return fmt.Sprintf("profile lock held by PID %d (%s)", e.PID, e.Path)
	}
	return fmt.Sprintf("profile lock held by PID %d since %s (%s)", e.PID, e.Started.Format(time.RFC3339), e.Path)
}

// Lock is an exclusive flock on a profile directory. One daemon per profile.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the profile lock, creating the directory if needed.
func Acquire(profileDir string) (*Lock, error) {
	lockPath := filepath.Join(profileDir, FileName)

	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		held := parseHolder(string(data))
		held.Path = lockPath
		return nil, held
	}

	if err := writeHolder(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock holder: %w", err)
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeHolder(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return err
}

func parseHolder(content string) *LockHeldError {
	held := &LockHeldError{}
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			held.PID, _ = strconv.Atoi(value)
		case "time":
			held.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return held
}
