package volumes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mediaforge/locator"
	"mediaforge/logger"
)

// LocalPath returns a local filesystem path holding the content of loc.
// Drivers without local paths are bridged by copying the stream into a
// private temp file under tempDir; cleanup removes that copy and is a no-op
// otherwise. cleanup is never nil when err is nil.
func LocalPath(ctx context.Context, d Driver, loc locator.Locator, tempDir string) (string, func(), error) {
	p, err := d.Path(loc)
	if err == nil {
		return p, func() {}, nil
	}
	if !errors.Is(err, ErrNotSupported) {
		return "", nil, err
	}

	src, err := d.Open(ctx, loc)
	if err != nil {
		return "", nil, fmt.Errorf("opening %s: %w", loc.Redacted(), err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(tempDir, "mediaforge-in-*"+filepath.Ext(loc.Path))
	if err != nil {
		return "", nil, fmt.Errorf("creating temp copy: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: src}); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("copying %s: %w", loc.Redacted(), err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing temp copy: %w", err)
	}
	logger.Debugf("copied %s to local %s", loc.Redacted(), tmp.Name())
	return tmp.Name(), cleanup, nil
}

// Output is a local write target for loc.
type Output struct {
	// Path is where the producer writes.
	Path string
	// Commit publishes the finished file to the volume. Drivers with local
	// paths rename the sibling temp file onto the target.
	Commit func(ctx context.Context) error
	// Cleanup removes any temp file. Safe to call after Commit.
	Cleanup func()
}

// LocalOutput returns a local path to write the content of loc to. Drivers
// with local paths get a hidden temp file next to the target that Commit
// renames into place, so a failed producer never leaves a partial file at
// the target. Other drivers get a private temp file that Commit saves
// through the driver. The extension of loc is kept so tools can infer the
// format.
func LocalOutput(d Driver, loc locator.Locator, tempDir string) (*Output, error) {
	p, err := d.Path(loc)
	if err == nil {
		return siblingOutput(p)
	}
	if !errors.Is(err, ErrNotSupported) {
		return nil, err
	}

	tmp, err := os.CreateTemp(tempDir, "mediaforge-out-*"+filepath.Ext(loc.Path))
	if err != nil {
		return nil, fmt.Errorf("creating temp output: %w", err)
	}
	tmp.Close()
	tmpPath := tmp.Name()

	return &Output{
		Path: tmpPath,
		Commit: func(ctx context.Context) error {
			f, err := os.Open(tmpPath)
			if err != nil {
				return fmt.Errorf("opening temp output: %w", err)
			}
			defer f.Close()
			if err := d.Save(ctx, loc, f); err != nil {
				return fmt.Errorf("saving %s: %w", loc.Redacted(), err)
			}
			return nil
		},
		Cleanup: func() { os.Remove(tmpPath) },
	}, nil
}

// siblingOutput creates the temp file for a direct local target. The name
// ends with the target's extension.
func siblingOutput(target string) (*Output, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(filepath.Base(target), ext)
	tmp, err := os.CreateTemp(dir, "."+stem+".*.partial"+ext)
	if err != nil {
		return nil, fmt.Errorf("creating temp output: %w", err)
	}
	tmp.Close()
	tmpPath := tmp.Name()

	return &Output{
		Path: tmpPath,
		Commit: func(context.Context) error {
			if err := os.Rename(tmpPath, target); err != nil {
				return fmt.Errorf("renaming temp output: %w", err)
			}
			return nil
		},
		Cleanup: func() { os.Remove(tmpPath) },
	}, nil
}
