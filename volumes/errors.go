package volumes

import (
	"errors"
	"fmt"
)

// ErrNotSupported is matched by every CapabilityUnsupportedError.
var ErrNotSupported = errors.New("operation not supported by volume driver")

// CapabilityUnsupportedError reports that a driver cannot perform an
// optional operation such as Path or URL.
type CapabilityUnsupportedError struct {
	Scheme    string
	Operation string
}

func (e *CapabilityUnsupportedError) Error() string {
	return fmt.Sprintf("%s volume does not support %s", e.Scheme, e.Operation)
}

func (e *CapabilityUnsupportedError) Is(target error) bool {
	return target == ErrNotSupported
}

func unsupported(scheme, op string) error {
	return &CapabilityUnsupportedError{Scheme: scheme, Operation: op}
}

// UnsupportedSchemeError is returned when no driver is bound to a scheme.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("no volume driver configured for scheme %q", e.Scheme)
}

// UnknownDriverError is returned when configuration names a driver that
// does not exist.
type UnknownDriverError struct {
	Scheme string
	Driver string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("scheme %q: unknown volume driver %q", e.Scheme, e.Driver)
}

// AuthenticationConfigurationError means a server asked for credentials
// that cannot be supplied: either no credential is stored for the origin or
// no strategy handles the challenge scheme. It is never retried.
type AuthenticationConfigurationError struct {
	Origin string
	Scheme string
	Reason string
}

func (e *AuthenticationConfigurationError) Error() string {
	msg := fmt.Sprintf("authentication for %s with scheme %q is not configured", e.Origin, e.Scheme)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ProtocolError is an unexpected status from a remote volume.
type ProtocolError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}
