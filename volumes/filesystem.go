package volumes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"mediaforge/locator"
	"mediaforge/logger"
)

// FileSystemDriver stores resources on the local filesystem. With an empty
// root the locator path is used as is; otherwise every path is resolved
// inside root and may not escape it.
type FileSystemDriver struct {
	base
	root string
}

// NewFileSystemDriver returns a driver serving absolute and relative local
// paths.
func NewFileSystemDriver(scheme string) *FileSystemDriver {
	return &FileSystemDriver{base: base{scheme: scheme}}
}

// Path implements Driver.
func (d *FileSystemDriver) Path(loc locator.Locator) (string, error) {
	if d.root == "" {
		if loc.Path == "" {
			return "", &locator.InvalidLocatorError{Locator: loc.Redacted(), Reason: "empty path"}
		}
		return filepath.FromSlash(loc.Path), nil
	}
	return resolveInRoot(d.root, path.Join(loc.Host, loc.Path))
}

// URL implements Driver.
func (d *FileSystemDriver) URL(loc locator.Locator) (string, error) {
	p, err := d.Path(loc)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	return publicURL(locator.Locator{Scheme: "file", Path: filepath.ToSlash(abs)}), nil
}

// Open implements Driver.
func (d *FileSystemDriver) Open(_ context.Context, loc locator.Locator) (io.ReadCloser, error) {
	p, err := d.Path(loc)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Save writes r to a hidden sibling file and renames it over the target,
// creating intermediate directories first.
func (d *FileSystemDriver) Save(ctx context.Context, loc locator.Locator, r io.Reader) error {
	p, err := d.Path(loc)
	if err != nil {
		return err
	}
	if err := atomicWrite(ctx, p, r); err != nil {
		return err
	}
	logger.Debugf("saved %s", loc.Redacted())
	return nil
}

// Delete implements Driver.
func (d *FileSystemDriver) Delete(_ context.Context, loc locator.Locator) error {
	p, err := d.Path(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", loc.Redacted(), err)
	}
	return nil
}

// Exists implements Driver.
func (d *FileSystemDriver) Exists(_ context.Context, loc locator.Locator) (bool, error) {
	p, err := d.Path(loc)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListDir implements Driver.
func (d *FileSystemDriver) ListDir(_ context.Context, loc locator.Locator) ([]string, []string, error) {
	p, err := d.Path(loc)
	if err != nil {
		return nil, nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, nil, fmt.Errorf("list %s: %w", loc.Redacted(), err)
	}
	var dirs, files []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else {
			files = append(files, e.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}

// atomicWrite copies r into a temp file next to target, syncs it and renames
// it into place. The temp file is removed on any failure.
func atomicWrite(ctx context.Context, target string, r io.Reader) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}

// resolveInRoot joins p under root and rejects results outside root.
func resolveInRoot(root, p string) (string, error) {
	clean := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(p))
	full := filepath.Join(root, clean)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox: %s", p)
	}
	return full, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
