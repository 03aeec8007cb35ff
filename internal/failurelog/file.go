// Package failurelog records failed URLs and index pages. Records are
// append-only; nothing reads them back during a run.
package failurelog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
)

const timeLayout = "2006-01-02T15:04:05.000000"

// FileLog appends one line per failure to a text file:
//
//	[2026-01-02T03:04:05.000000] https://example.com/page: page_unavailable: page returned status 404
type FileLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFile opens path for appending. With truncate set the file is emptied
// and a header line stamped with now is written.
func OpenFile(path string, truncate bool, now time.Time) (*FileLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("failure log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create failure log directory: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	if truncate {
		if _, err := fmt.Fprintf(f, "Scrape errors log - %s\n\n", now.UTC().Format(timeLayout)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write failure log header: %w", err)
		}
	}
	return &FileLog{file: f}, nil
}

// Record implements harvest.FailureLog.
func (l *FileLog) Record(_ context.Context, rec harvest.FailureRecord) error {
	line := fmt.Sprintf("[%s] %s: %s\n", rec.Timestamp.UTC().Format(timeLayout), rec.Source, fold(rec.Message))
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("append failure log: %w", err)
	}
	return nil
}

// Close closes the file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close failure log: %w", err)
	}
	return nil
}

// fold keeps one record per line.
func fold(msg string) string {
	return strings.Join(strings.Fields(msg), " ")
}
