package volumes

import (
	"fmt"
	"os"
	"path/filepath"

	"mediaforge/locator"
)

// TemporaryDriver is a filesystem driver sandboxed under a private root.
// tmp:///a/b resolves to <root>/a/b; paths cannot escape the root.
type TemporaryDriver struct {
	FileSystemDriver
}

// NewTemporaryDriver creates root if needed and returns a driver confined
// to it.
func NewTemporaryDriver(scheme, root string) (*TemporaryDriver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &TemporaryDriver{FileSystemDriver{base: base{scheme: scheme}, root: abs}}, nil
}

// Root returns the sandbox directory.
func (d *TemporaryDriver) Root() string { return d.root }

// URL is not supported: temporary resources are never published.
func (d *TemporaryDriver) URL(locator.Locator) (string, error) {
	return "", unsupported(d.scheme, "url")
}
