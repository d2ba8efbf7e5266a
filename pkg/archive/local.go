package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrymomot/meterkit/pkg/usage"
)

// LocalSink writes archived reports below a directory. It serves
// development setups without object storage.
type LocalSink struct {
	dir string
}

var _ usage.ArchiveSink = (*LocalSink)(nil)

// NewLocalSink creates dir if needed and returns a sink writing into it.
func NewLocalSink(dir string) (*LocalSink, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &LocalSink{dir: abs}, nil
}

// Put writes body to dir/key through a temporary file, so a reader never
// sees a partial report.
func (s *LocalSink) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if key == "" || !strings.HasPrefix(target, s.dir+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".archive-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToWrite, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrFailedToWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToWrite, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToWrite, err)
	}
	return nil
}
