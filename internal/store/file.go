// internal/store/file.go
package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/bobdodd/auto-a11y-go/api/schemas"
)

// FileStore appends results as JSON lines to a single file. Intended for
// local runs without a database.
type FileStore struct {
	log  *zap.Logger
	path string

	mu   sync.Mutex
	file *os.File
}

var _ Repository = (*FileStore)(nil)

// NewFileStore opens (or creates) the results file for appending.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file %s: %w", path, err)
	}
	return &FileStore{
		log:  logger.Named("file_store").With(zap.String("path", path)),
		path: path,
		file: f,
	}, nil
}

// SaveResults appends one JSON line per result.
func (s *FileStore) SaveResults(_ context.Context, results []*schemas.TestResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := bufio.NewWriter(s.file)
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode result %s: %w", r.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush results file: %w", err)
	}
	s.log.Debug("Results appended.", zap.Int("count", len(results)))
	return nil
}

// ResultsBySession re-reads the file and filters by session id. Linear, but
// the file backend only exists for small local runs.
func (s *FileStore) ResultsBySession(_ context.Context, sessionID string) ([]*schemas.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen results file: %w", err)
	}
	defer f.Close()

	var results []*schemas.TestResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var r schemas.TestResult
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("corrupt results line: %w", err)
		}
		if r.SessionID == sessionID {
			results = append(results, &r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading results file: %w", err)
	}
	return results, nil
}

// Close flushes and closes the underlying file.
func (s *FileStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// NopStore discards results. Used when persistence is disabled.
type NopStore struct{}

var _ Repository = NopStore{}

func (NopStore) SaveResults(context.Context, []*schemas.TestResult) error { return nil }
func (NopStore) ResultsBySession(context.Context, string) ([]*schemas.TestResult, error) {
	return nil, nil
}
func (NopStore) Close(context.Context) error { return nil }
