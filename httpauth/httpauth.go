// Package httpauth builds request authorizers for HTTP challenge/response
// authentication. Strategies are looked up by the lower-cased scheme token
// of a WWW-Authenticate header.
package httpauth

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Material is the secret input of a strategy. It is assembled from either
// locator userinfo or a stored credential and must never be logged.
type Material struct {
	Username string
	Password string
	Data     map[string]string
}

// Get returns Data[name] with Username/Password as fallbacks for the
// conventional keys.
func (m Material) Get(name string) string {
	if v := m.Data[name]; v != "" {
		return v
	}
	switch name {
	case "username":
		return m.Username
	case "password":
		return m.Password
	}
	return ""
}

// Handler attaches credentials to an outgoing request.
type Handler interface {
	Authorize(req *http.Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *http.Request) error

func (f HandlerFunc) Authorize(req *http.Request) error { return f(req) }

// Strategy builds a Handler from credential material and the raw
// WWW-Authenticate header value that triggered it.
type Strategy func(material Material, challenge string) (Handler, error)

var builtinStrategies = map[string]Strategy{
	"basic":  Basic,
	"digest": Digest,
	"bearer": Bearer,
}

// StrategyNames returns the names accepted by NewRegistry.
func StrategyNames() []string {
	names := make([]string, 0, len(builtinStrategies))
	for name := range builtinStrategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownStrategyError is returned for a configured strategy name that has
// no implementation.
type UnknownStrategyError struct {
	Scheme string
	Name   string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("auth scheme %q: unknown strategy %q", e.Scheme, e.Name)
}

// Registry maps auth schemes to strategies. It is immutable once built.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds a registry from an auth-scheme to strategy-name map.
func NewRegistry(mapping map[string]string) (*Registry, error) {
	r := &Registry{strategies: make(map[string]Strategy, len(mapping))}
	for scheme, name := range mapping {
		strategy, ok := builtinStrategies[strings.ToLower(name)]
		if !ok {
			return nil, &UnknownStrategyError{Scheme: scheme, Name: name}
		}
		r.strategies[strings.ToLower(scheme)] = strategy
	}
	return r, nil
}

// DefaultRegistry registers every builtin strategy under its own name.
func DefaultRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(builtinStrategies))}
	for name, strategy := range builtinStrategies {
		r.strategies[name] = strategy
	}
	return r
}

// Lookup returns the strategy registered for scheme.
func (r *Registry) Lookup(scheme string) (Strategy, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.strategies[strings.ToLower(scheme)]
	return s, ok
}

// ChallengeScheme returns the lower-cased first token of a WWW-Authenticate
// header value.
func ChallengeScheme(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(fields[0], ","))
}
