package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"watchpost/internal/models"
)

// FileStore keeps samples as JSON Lines in a single file. Appends use
// O_APPEND, so a crash can at worst leave one torn trailing line. Readers
// skip it, and the next append terminates it first so the new sample
// starts on a line of its own.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore prepares a store at path, creating the parent directory.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir history dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Append writes one JSON line. If the file does not end in a newline the
// line is prefixed with one.
func (s *FileStore) Append(ctx context.Context, sample models.HistorySample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	torn, err := endsTorn(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	if torn {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append sample: %w", err)
	}
	return f.Close()
}

// Since scans the file and returns samples at or after fromMs.
func (s *FileStore) Since(ctx context.Context, fromMs int64) ([]models.HistorySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.HistorySample{}
	err := s.scan(ctx, func(sample models.HistorySample) {
		if sample.TimestampMs >= fromMs {
			out = append(out, sample)
		}
	})
	return out, err
}

// PruneBefore rewrites the file without samples older than cutoffMs. The
// rewrite goes to a temp file that replaces the original by rename, so a
// crash mid-prune leaves either the old or the new file intact.
func (s *FileStore) PruneBefore(ctx context.Context, cutoffMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []models.HistorySample
	removed := 0
	err := s.scan(ctx, func(sample models.HistorySample) {
		if sample.TimestampMs < cutoffMs {
			removed++
			return
		}
		kept = append(kept, sample)
	})
	if err != nil || removed == 0 {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, sample := range kept {
		if err := enc.Encode(sample); err != nil {
			_ = tmp.Close()
			return 0, fmt.Errorf("encode sample: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("flush temp history file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("sync temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return 0, fmt.Errorf("replace history file: %w", err)
	}
	return removed, nil
}

// Close is a no-op; the file is opened per operation.
func (s *FileStore) Close() error { return nil }

// endsTorn reports whether f is non-empty and its last byte is not a newline.
func endsTorn(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat history file: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read history tail: %w", err)
	}
	return last[0] != '\n', nil
}

// scan calls fn for every decodable line. A missing file is an empty store.
func (s *FileStore) scan(ctx context.Context, fn func(models.HistorySample)) error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var sample models.HistorySample
		if err := json.Unmarshal(line, &sample); err != nil {
			continue
		}
		fn(sample)
	}
	return sc.Err()
}
