package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// RollingFile is an io.WriteCloser that rotates the underlying file
// when a write would push it past maxBytes. Backups are numbered
// crawl.log.1 (newest) through crawl.log.N; the oldest is dropped.
type RollingFile struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxBytes   int64
	maxBackups int
	written    int64
}

// NewRollingFile opens (or creates) the log file at path.
func NewRollingFile(path string, maxBytes int64, maxBackups int) (*RollingFile, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxBytes)
	}
	r := &RollingFile{
		path:       path,
		maxBytes:   maxBytes,
		maxBackups: maxBackups,
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// Write appends to the current file, rotating first when the record
// would exceed the size budget.
func (r *RollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.written+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.written += int64(n)
	return n, err
}

// Close closes the current file.
func (r *RollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *RollingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r.file = f
	r.written = info.Size()
	return nil
}

// rotate must be called with the mutex held.
func (r *RollingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	// Shift name.N-1 -> name.N, dropping the oldest.
	_ = os.Remove(r.backupPath(r.maxBackups))
	for i := r.maxBackups - 1; i >= 1; i-- {
		if _, err := os.Stat(r.backupPath(i)); err == nil {
			if err := os.Rename(r.backupPath(i), r.backupPath(i+1)); err != nil {
				return err
			}
		}
	}
	if r.maxBackups > 0 {
		if err := os.Rename(r.path, r.backupPath(1)); err != nil {
			return err
		}
	} else {
		_ = os.Remove(r.path)
	}

	return r.open()
}

func (r *RollingFile) backupPath(index int) string {
	return fmt.Sprintf("%s.%d", r.path, index)
}

var _ io.WriteCloser = (*RollingFile)(nil)
