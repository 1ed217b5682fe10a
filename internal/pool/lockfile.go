package pool

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when the lock is held by another, still-running
// process.
var ErrLocked = errors.New("grizabella: database already locked by another process")

// Lockfile guards a database root against being opened by a second
// process. Exclusion rests on an flock held for the Lockfile's lifetime;
// the current PID is written into the file to identify the owner.
type Lockfile struct {
	path string
	file *os.File
}

// AcquireLockfile opens (creating if necessary) the lock file at path and
// takes an exclusive, non-blocking flock on it. If another open file holds
// the flock, ErrLocked is returned whatever PID the file contains. If the
// flock is free, the lock is taken and any PID left by an earlier owner
// (whose exit released the flock) is overwritten with the current one.
func AcquireLockfile(path string) (*Lockfile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lockfile %q: %w", path, err)
	}

	if err := flockExclusiveNonBlocking(f); err != nil {
		if existing, readErr := readPID(f); readErr == nil && isProcessRunning(existing) {
			f.Close()
			return nil, ErrLocked
		}
		// Either unreadable or the owning process is gone: the flock
		// itself failing here means another live process holds it despite
		// the stale-looking contents, so surface the lock error.
		f.Close()
		return nil, ErrLocked
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate lockfile %q: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("write lockfile %q: %w", path, err)
	}

	return &Lockfile{path: path, file: f}, nil
}

// Release unlocks and closes the lock file, leaving the (now stale) PID on
// disk until the next opener overwrites it.
func (l *Lockfile) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = flockUnlock(l.file)
	return l.file.Close()
}

func readPID(f *os.File) (int, error) {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return 0, err
	}
	s := strings.TrimSpace(strings.TrimRight(string(buf[:n]), "\x00"))
	if s == "" {
		return 0, fmt.Errorf("empty lockfile")
	}
	return strconv.Atoi(s)
}

func flockExclusiveNonBlocking(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

func flockUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
