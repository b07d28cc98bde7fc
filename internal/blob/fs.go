package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSSink stores payloads as files under a base directory.
type FSSink struct {
	dir string
}

func NewFSSink(dir string) *FSSink {
	return &FSSink{dir: dir}
}

// Write stores data under key, creating the base directory on first use.
// The returned reference is the key itself; the HTTP layer serves the
// directory statically.
func (s *FSSink) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating image directory: %w", err)
	}

	path := filepath.Join(s.dir, key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing image file: %w", err)
	}

	return key, nil
}

var _ Sink = (*FSSink)(nil)
