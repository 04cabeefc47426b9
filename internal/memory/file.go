package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one UTF-8 text file per conversation: {dir}/{id}.txt.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "memory"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".txt")
}

// Read returns the transcript, creating an empty file on first access.
func (s *FileStore) Read(_ context.Context, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(id)
}

func (s *FileStore) readLocked(id string) (string, error) {
	p := s.path(id)
	b, err := os.ReadFile(p)
	if err == nil {
		return string(b), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	log.Printf("[memory] %s does not exist, created empty transcript", p)
	return "", nil
}

func (s *FileStore) Append(_ context.Context, id, text string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("append transcript: %w", err)
	}
	return f.Close()
}

// Reset deletes the transcript file. A missing file is not an error.
func (s *FileStore) Reset(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.path(id)
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete transcript: %w", err)
	}
	log.Printf("[memory] %s deleted", p)
	return nil
}

func (s *FileStore) Close() error { return nil }
