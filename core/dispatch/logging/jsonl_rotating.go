package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingJSONLStore is a JSONLStore whose file is rotated by size. Backups
// are named after the file with a timestamp, as lumberjack does.
type RotatingJSONLStore struct {
	path string

	mu sync.Mutex
	w  *lumberjack.Logger
}

// NewRotatingJSONLStore rotates path past maxSizeMB megabytes, keeping at
// most maxBackups files no older than maxAgeDays. Zero keeps everything.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &RotatingJSONLStore{
		path: path,
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		},
	}, nil
}

// Append writes rec as one line, rotating first when the file is full.
func (s *RotatingJSONLStore) Append(_ context.Context, rec LogRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(line, '\n'))
	return err
}

// Query reads the backups oldest first, then the live file.
func (s *RotatingJSONLStore) Query(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	backups, err := s.backups()
	if err != nil {
		return nil, err
	}
	return queryFiles(ctx, q, append(backups, s.path)...)
}

// backups lists rotated files. Their timestamp suffix sorts chronologically.
func (s *RotatingJSONLStore) backups() ([]string, error) {
	ext := filepath.Ext(s.path)
	prefix := strings.TrimSuffix(s.path, ext) + "-"
	matches, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	return matches, nil
}

// Close closes the current file.
func (s *RotatingJSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}
