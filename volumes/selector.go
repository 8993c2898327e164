package volumes

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mediaforge/credentials"
	"mediaforge/httpauth"
	"mediaforge/locator"
	"mediaforge/logger"
)

// Deps are the collaborators shared by driver factories.
type Deps struct {
	Credentials   credentials.Lookup
	Auth          *httpauth.Registry
	TempRoot      string
	HTTPTimeout   time.Duration
	S3            S3Options
	GCSEndpoint   string
	DefaultScheme string
}

// Factory builds the driver bound to scheme.
type Factory func(scheme string, deps Deps) (Driver, error)

var builtinDrivers = map[string]Factory{
	"filesystem": func(scheme string, _ Deps) (Driver, error) {
		return NewFileSystemDriver(scheme), nil
	},
	"temporary": func(scheme string, deps Deps) (Driver, error) {
		return NewTemporaryDriver(scheme, TempVolumeRoot(deps.TempRoot))
	},
	"webdav": func(scheme string, deps Deps) (Driver, error) {
		return NewWebDAVDriver(scheme, WebDAVOptions{
			Credentials: deps.Credentials,
			Auth:        deps.Auth,
			Timeout:     deps.HTTPTimeout,
			TempDir:     deps.TempRoot,
		})
	},
	"s3": func(scheme string, deps Deps) (Driver, error) {
		return NewS3Driver(scheme, deps.S3, deps.Credentials), nil
	},
	"gcs": func(scheme string, deps Deps) (Driver, error) {
		return NewGCSDriver(scheme, deps.Credentials, deps.GCSEndpoint), nil
	},
	"sftp": func(scheme string, deps Deps) (Driver, error) {
		return NewSFTPDriver(scheme, deps.Credentials, 0), nil
	},
}

// DriverNames lists the names accepted in the scheme to driver map.
func DriverNames() []string {
	names := make([]string, 0, len(builtinDrivers))
	for name := range builtinDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TempVolumeRoot is the sandbox of the temporary driver under tempRoot.
func TempVolumeRoot(tempRoot string) string {
	return filepath.Join(tempRoot, "mediaforge-volume")
}

// Selector maps schemes to drivers. It is built once and never mutated.
type Selector struct {
	drivers       map[string]Driver
	defaultScheme string
}

// NewSelector instantiates one driver per entry of mapping (scheme to
// driver name).
func NewSelector(mapping map[string]string, deps Deps) (*Selector, error) {
	s := &Selector{
		drivers:       make(map[string]Driver, len(mapping)),
		defaultScheme: deps.DefaultScheme,
	}
	if s.defaultScheme == "" {
		s.defaultScheme = locator.DefaultScheme
	}
	for scheme, name := range mapping {
		scheme = strings.ToLower(scheme)
		factory, ok := builtinDrivers[strings.ToLower(name)]
		if !ok {
			return nil, &UnknownDriverError{Scheme: scheme, Driver: name}
		}
		driver, err := factory(scheme, deps)
		if err != nil {
			return nil, fmt.Errorf("creating %s driver for %s: %w", name, scheme, err)
		}
		s.drivers[scheme] = driver
		logger.Debugf("volume scheme %s -> %s", scheme, name)
	}
	return s, nil
}

// DriverFor returns the driver bound to scheme.
func (s *Selector) DriverFor(scheme string) (Driver, error) {
	d, ok := s.drivers[strings.ToLower(scheme)]
	if !ok {
		return nil, &UnsupportedSchemeError{Scheme: scheme}
	}
	return d, nil
}

// Resolve parses raw with the default scheme and returns its driver.
func (s *Selector) Resolve(raw string) (Driver, locator.Locator, error) {
	loc, err := locator.Parse(raw, s.defaultScheme)
	if err != nil {
		return nil, locator.Locator{}, err
	}
	d, err := s.DriverFor(loc.Scheme)
	if err != nil {
		return nil, locator.Locator{}, err
	}
	return d, loc, nil
}

// Schemes returns the configured schemes in sorted order.
func (s *Selector) Schemes() []string {
	schemes := make([]string, 0, len(s.drivers))
	for scheme := range s.drivers {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}
