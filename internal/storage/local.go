package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Compile-time check that LocalPublisher implements Publisher.
var _ Publisher = (*LocalPublisher)(nil)

// LocalPublisher moves finished videos into a directory served by something
// else (a static file server, a CDN origin, a shared volume).
type LocalPublisher struct {
	dir     string
	baseURL string
}

// NewLocalPublisher creates a LocalPublisher. When baseURL is empty the
// returned URLs are file:// URLs of the published files.
func NewLocalPublisher(dir, baseURL string) (*LocalPublisher, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: public directory is empty", ErrPublisherNotConfigured)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create public directory: %w", err)
	}
	return &LocalPublisher{dir: dir, baseURL: baseURL}, nil
}

// Publish moves the file at path to dir/key.
func (p *LocalPublisher) Publish(ctx context.Context, key, path, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dest := filepath.Join(p.dir, filepath.FromSlash(key))
	if !isWithin(p.dir, dest) {
		return "", fmt.Errorf("publish key %q escapes public directory", key)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", fmt.Errorf("create publish directory: %w", err)
	}
	if err := move(path, dest); err != nil {
		return "", fmt.Errorf("publish %s: %w", key, err)
	}

	if p.baseURL == "" {
		abs, err := filepath.Abs(dest)
		if err != nil {
			return "", fmt.Errorf("resolve published path: %w", err)
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
	}
	u, err := url.JoinPath(p.baseURL, key)
	if err != nil {
		return "", fmt.Errorf("build public url: %w", err)
	}
	return u, nil
}

// move renames src to dst, copying when they are on different filesystems.
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src) // #nosec G304 - path is produced by the scratch area
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
