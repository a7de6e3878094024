// internal/logger/writers.go
package logger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrWriterClosed   = errors.New("csv writer closed")
	ErrHeaderMismatch = errors.New("csv header does not match existing file")
)

// SafeCSVWriter appends rows to one CSV file from many goroutines. Rows are
// buffered and flushed on a ticker, and only when something was written
// since the last flush. Appending to an existing file requires its first row
// to equal the header.
type SafeCSVWriter struct {
	mu     sync.Mutex
	writer *csv.Writer
	file   *os.File
	path   string
	dirty  bool
	closed bool

	stop      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger

	rows    uint64
	flushes uint64
}

// NewSafeCSVWriter opens path for appending, creating parent directories.
func NewSafeCSVWriter(path string, header []string, flushInterval time.Duration, logger *zap.Logger) (*SafeCSVWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fresh, err := checkHeader(file, header)
	if err != nil {
		file.Close()
		return nil, err
	}

	w := &SafeCSVWriter{
		writer: csv.NewWriter(file),
		file:   file,
		path:   path,
		stop:   make(chan struct{}),
		logger: logger,
	}
	if fresh && len(header) > 0 {
		if err := w.writer.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		w.writer.Flush()
	}

	go w.flushLoop(flushInterval)
	return w, nil
}

// checkHeader reports whether the file is empty, and otherwise that its
// first row is header.
func checkHeader(file *os.File, header []string) (bool, error) {
	stat, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() == 0 {
		return true, nil
	}
	if len(header) == 0 {
		return false, nil
	}

	first, err := csv.NewReader(io.NewSectionReader(file, 0, stat.Size())).Read()
	if err != nil {
		return false, fmt.Errorf("failed to read existing header: %w", err)
	}
	if !slices.Equal(first, header) {
		return false, fmt.Errorf("%w: %s", ErrHeaderMismatch, file.Name())
	}
	return false, nil
}

// WriteRecord buffers one row.
func (w *SafeCSVWriter) WriteRecord(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.rows++
	w.dirty = true
	return nil
}

// Flush writes buffered rows and syncs the file.
func (w *SafeCSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *SafeCSVWriter) flushLocked() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	w.dirty = false
	w.flushes++
	return nil
}

func (w *SafeCSVWriter) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			var err error
			if w.dirty {
				err = w.flushLocked()
			}
			w.mu.Unlock()
			if err != nil && !errors.Is(err, ErrWriterClosed) {
				w.logger.Error("Periodic CSV flush failed",
					zap.String("file", w.path),
					zap.Error(err))
			}
		case <-w.stop:
			return
		}
	}
}

// Close flushes and closes the file. Later calls return nil.
func (w *SafeCSVWriter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)

		w.mu.Lock()
		defer w.mu.Unlock()

		w.writer.Flush()
		err = w.writer.Error()
		w.closed = true
		if cerr := w.file.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close file: %w", cerr))
		}

		w.logger.Info("CSV writer closed",
			zap.String("file", w.path),
			zap.Uint64("rows", w.rows),
			zap.Uint64("flushes", w.flushes))
	})
	return err
}

// Stats returns how many rows were written and how many flushes ran.
func (w *SafeCSVWriter) Stats() (records, flushes uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows, w.flushes
}

// Path returns the file being written.
func (w *SafeCSVWriter) Path() string { return w.path }
