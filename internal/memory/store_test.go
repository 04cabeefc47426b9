package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Read(ctx, "aiko")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "" {
		t.Fatalf("Read() on fresh conversation = %q, want empty", got)
	}

	if err := s.Append(ctx, "aiko", FormatTurn("hi", "Hello\n")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(ctx, "aiko", FormatTurn("bye", "See you")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(ctx, "other", "unrelated"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	want := "\n[user]:hi\n[You]:Hello\n\n[user]:bye\n[You]:See you"
	got, err = s.Read(ctx, "aiko")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != want {
		t.Fatalf("Read() = %q, want %q", got, want)
	}

	if err := s.Reset(ctx, "aiko"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got, _ := s.Read(ctx, "aiko"); got != "" {
		t.Fatalf("Read() after Reset = %q, want empty", got)
	}
	if got, _ := s.Read(ctx, "other"); got != "unrelated" {
		t.Fatalf("Reset touched another conversation: %q", got)
	}
	if err := s.Reset(ctx, "never-written"); err != nil {
		t.Fatalf("Reset() on unknown conversation error = %v", err)
	}

	if _, err := s.Read(ctx, " "); !errors.Is(err, ErrMissingID) {
		t.Fatalf("Read(blank) error = %v, want ErrMissingID", err)
	}
	if err := s.Append(ctx, "", "x"); !errors.Is(err, ErrMissingID) {
		t.Fatalf("Append(blank) error = %v, want ErrMissingID", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "memory"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	exerciseStore(t, s)
}

func TestFileStoreCreatesEmptyFileOnRead(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	if _, err := s.Read(context.Background(), "aiko"); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "aiko.txt")); err != nil {
		t.Fatalf("transcript file not created: %v", err)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("MEMORY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MEMORY_TEST_DATABASE_URL not set")
	}
	s, err := NewPostgresStore(context.Background(), url)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	_ = s.Reset(ctx, "aiko")
	_ = s.Reset(ctx, "other")
	exerciseStore(t, s)
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	if _, err := NewStore(context.Background(), "floppy", "", ""); err == nil {
		t.Fatalf("NewStore() expected error")
	}
	s, err := NewStore(context.Background(), "inmemory", "", "")
	if err != nil {
		t.Fatalf("NewStore(inmemory) error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(inmemory) = %T", s)
	}
}
