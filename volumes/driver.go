// Package volumes gives every storage backend the same read/write contract.
// Resources are addressed by locators; a Selector maps each locator scheme to
// the driver configured for it.
package volumes

import (
	"context"
	"io"
	"net/url"

	"mediaforge/locator"
)

// Driver is implemented by every storage backend.
type Driver interface {
	Scheme() string
	// Open returns a reader for the resource. Writes go through Save.
	Open(ctx context.Context, loc locator.Locator) (io.ReadCloser, error)
	// Save replaces the resource with the content of r. Readers never
	// observe a partially written resource.
	Save(ctx context.Context, loc locator.Locator, r io.Reader) error
	// Delete removes the resource. Deleting a missing resource succeeds.
	Delete(ctx context.Context, loc locator.Locator) error
	Exists(ctx context.Context, loc locator.Locator) (bool, error)
	// ListDir returns the names of the collections and files directly
	// under loc.
	ListDir(ctx context.Context, loc locator.Locator) (dirs, files []string, err error)
	// Path returns a local filesystem path, or an error matching
	// ErrNotSupported.
	Path(loc locator.Locator) (string, error)
	// URL returns a URL safe to publish, or an error matching
	// ErrNotSupported.
	URL(loc locator.Locator) (string, error)
	Credentials(loc locator.Locator) *url.Userinfo
	Netloc(loc locator.Locator) string
}

// base carries the scheme and the default answers shared by all drivers.
type base struct {
	scheme string
}

func (b base) Scheme() string { return b.scheme }

func (b base) Credentials(loc locator.Locator) *url.Userinfo { return loc.Credentials() }

func (b base) Netloc(loc locator.Locator) string { return loc.Origin() }

func (b base) Path(locator.Locator) (string, error) { return "", unsupported(b.scheme, "path") }

func (b base) URL(locator.Locator) (string, error) { return "", unsupported(b.scheme, "url") }

// publicURL renders loc without credentials.
func publicURL(loc locator.Locator) string {
	return loc.WithoutCredentials().String()
}
