package memory

import (
	"context"
	"fmt"
	"strings"
)

// NewStore builds the configured transcript backend: file (default), inmemory or postgres.
func NewStore(ctx context.Context, backend, dir, databaseURL string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "file":
		return NewFileStore(dir)
	case "inmemory", "memory":
		return NewInMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported memory backend %q (expected file|inmemory|postgres)", backend)
	}
}
