package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// WaitForFile polls for path every interval, at most attempts times.
func WaitForFile(ctx context.Context, path string, interval time.Duration, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for n := 0; n < attempts; n++ {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return fmt.Errorf("%w: %s did not appear after %d checks", ErrPlaybackTimeout, path, attempts)
}

// CleanDirectory removes every entry of dir except the one named keep,
// creating dir when it does not exist.
func CleanDirectory(dir, keep string) error {
	if dir == "" {
		return fmt.Errorf("%w: directory", ErrMissingArgument)
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		if keep != "" && e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
	}
	return nil
}

// CountSegments reports how many consecutive segment files, starting at
// index 0, exist in dir for name.
func CountSegments(dir, name string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `(\d+)\.wav$`)
	present := make(map[int]bool)
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if i, err := strconv.Atoi(m[1]); err == nil {
			present[i] = true
		}
	}
	n := 0
	for present[n] {
		n++
	}
	return n, nil
}
