// Package locator parses the scheme://[user[:password]@]host[:port]/path
// addressing format used to name media resources on any storage volume.
package locator

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultScheme is used when a locator carries no scheme and the caller
// does not configure another fallback.
const DefaultScheme = "file"

var schemePattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// InvalidLocatorError is returned when a string does not follow the
// locator grammar.
type InvalidLocatorError struct {
	Locator string
	Reason  string
}

func (e *InvalidLocatorError) Error() string {
	return fmt.Sprintf("invalid locator %q: %s", redactRaw(e.Locator), e.Reason)
}

// Locator identifies a resource and the backend scheme that stores it.
type Locator struct {
	Scheme   string
	User     *url.Userinfo // nil when the locator embeds no credentials
	Host     string        // host[:port], without userinfo
	Path     string
	RawQuery string
	Fragment string
}

// Parse parses raw into a Locator. When raw has no "scheme://" prefix it
// is treated as a bare path on defaultScheme (DefaultScheme if empty).
func Parse(raw, defaultScheme string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Locator{}, &InvalidLocatorError{Locator: raw, Reason: "empty locator"}
	}
	if defaultScheme == "" {
		defaultScheme = DefaultScheme
	}

	if !strings.Contains(raw, "://") {
		if strings.ContainsAny(raw, "\x00") {
			return Locator{}, &InvalidLocatorError{Locator: raw, Reason: "path contains NUL byte"}
		}
		return Locator{Scheme: defaultScheme, Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, &InvalidLocatorError{Locator: raw, Reason: err.Error()}
	}
	if !schemePattern.MatchString(u.Scheme) {
		return Locator{}, &InvalidLocatorError{Locator: raw, Reason: fmt.Sprintf("scheme %q is not lower-case alphanumeric", u.Scheme)}
	}
	if u.Opaque != "" {
		return Locator{}, &InvalidLocatorError{Locator: raw, Reason: "opaque locators are not supported"}
	}

	return Locator{
		Scheme:   u.Scheme,
		User:     u.User,
		Host:     u.Host,
		Path:     u.Path,
		RawQuery: u.RawQuery,
		Fragment: u.Fragment,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static configuration.
func MustParse(raw string) Locator {
	loc, err := Parse(raw, "")
	if err != nil {
		panic(err)
	}
	return loc
}

// Credentials returns the userinfo embedded in the locator, or nil. A
// userinfo without ':' has a username and no password.
func (l Locator) Credentials() *url.Userinfo {
	return l.User
}

// Origin returns the network authority (host[:port]) used to scope
// authentication. It never contains userinfo.
func (l Locator) Origin() string {
	return strings.ToLower(l.Host)
}

// URL returns the locator as a *url.URL, credentials included.
func (l Locator) URL() *url.URL {
	return &url.URL{
		Scheme:   l.Scheme,
		User:     l.User,
		Host:     l.Host,
		Path:     l.Path,
		RawQuery: l.RawQuery,
		Fragment: l.Fragment,
	}
}

// String returns the full locator, credentials included. Use Redacted for
// anything that is logged or handed to a remote call.
func (l Locator) String() string {
	return l.URL().String()
}

// Redacted returns the locator without embedded credentials.
func (l Locator) Redacted() string {
	return l.WithoutCredentials().String()
}

// Redact returns raw with any embedded credentials removed. Bare paths carry
// no userinfo and are returned unchanged; anything that does not parse is
// dropped.
func Redact(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	loc, err := Parse(raw, "")
	if err != nil {
		return ""
	}
	return loc.Redacted()
}

// WithoutCredentials returns a copy of l with the userinfo removed.
func (l Locator) WithoutCredentials() Locator {
	l.User = nil
	return l
}

// WithPath returns a copy of l pointing at p on the same volume.
func (l Locator) WithPath(p string) Locator {
	l.Path = p
	l.RawQuery = ""
	l.Fragment = ""
	return l
}

// Base returns the last element of the path.
func (l Locator) Base() string {
	return path.Base(l.Path)
}

// Ancestors returns the locators of every intermediate collection between
// the root and the parent of l, outermost first. The root itself is
// excluded.
func (l Locator) Ancestors() []Locator {
	segments := strings.Split(strings.Trim(l.Path, "/"), "/")
	if len(segments) <= 1 {
		return nil
	}
	ancestors := make([]Locator, 0, len(segments)-1)
	cur := ""
	for _, seg := range segments[:len(segments)-1] {
		if seg == "" {
			continue
		}
		cur += "/" + seg
		ancestors = append(ancestors, l.WithPath(cur+"/"))
	}
	return ancestors
}

func redactRaw(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
