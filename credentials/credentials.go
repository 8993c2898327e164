// Package credentials stores authentication material keyed by
// (auth-scheme, origin). Entries are looked up by the volume drivers and
// never mutated by them.
package credentials

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"mediaforge/kvstore"
	"mediaforge/logger"
)

const keyPrefix = "cred/"

// Credential is an immutable (scheme, origin, data) tuple. Origin is a
// host[:port] authority without userinfo.
type Credential struct {
	Scheme string            `json:"scheme"`
	Origin string            `json:"origin"`
	Data   map[string]string `json:"data"`
}

// Get returns the value stored under name in the credential data.
func (c Credential) Get(name string) string {
	return c.Data[name]
}

// String never prints the credential data.
func (c Credential) String() string {
	return fmt.Sprintf("(%s,%s)", c.Scheme, c.Origin)
}

// Lookup resolves credentials for an (auth-scheme, origin) pair.
type Lookup interface {
	Lookup(scheme, origin string) (Credential, bool, error)
}

// Store is a pebble-backed credential store.
type Store struct {
	db *kvstore.DB
}

// Open opens the credential database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := kvstore.Open(dbPath)
	if err != nil {
		logger.Errorf("Failed to open credentials DB: %v", err)
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the DB
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the credential stored for (scheme, origin).
func (s *Store) Lookup(scheme, origin string) (Credential, bool, error) {
	var cred Credential
	found, err := s.db.GetJSON(key(scheme, origin), &cred)
	if err != nil || !found {
		return Credential{}, false, err
	}
	return cred, true, nil
}

// Put stores cred, replacing any credential with the same scheme and origin.
func (s *Store) Put(cred Credential) error {
	cred.Scheme = NormalizeScheme(cred.Scheme)
	cred.Origin = NormalizeOrigin(cred.Origin)
	if cred.Scheme == "" || cred.Origin == "" {
		return fmt.Errorf("credential scheme and origin are required")
	}
	return s.db.PutJSON(key(cred.Scheme, cred.Origin), cred)
}

// Delete deletes the credential for (scheme, origin).
func (s *Store) Delete(scheme, origin string) error {
	return s.db.Delete(key(scheme, origin))
}

// List returns every stored credential, ordered by scheme then origin.
func (s *Store) List() ([]Credential, error) {
	var creds []Credential
	err := s.db.Scan(keyPrefix, func(_ string, value []byte) error {
		var cred Credential
		if err := json.Unmarshal(value, &cred); err != nil {
			return nil // skip invalid records
		}
		creds = append(creds, cred)
		return nil
	})
	return creds, err
}

// NormalizeScheme lower-cases an auth scheme name.
func NormalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// NormalizeOrigin strips any userinfo from origin and lower-cases it.
// Full URLs are accepted and reduced to their authority.
func NormalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if strings.Contains(origin, "://") {
		if u, err := url.Parse(origin); err == nil {
			origin = u.Host
		}
	}
	if i := strings.LastIndex(origin, "@"); i >= 0 {
		origin = origin[i+1:]
	}
	return strings.ToLower(origin)
}

func key(scheme, origin string) string {
	return keyPrefix + NormalizeScheme(scheme) + "/" + NormalizeOrigin(origin)
}

// Static is an in-memory Lookup, used when no credential database is
// configured and in tests.
type Static []Credential

// Lookup implements Lookup.
func (s Static) Lookup(scheme, origin string) (Credential, bool, error) {
	scheme, origin = NormalizeScheme(scheme), NormalizeOrigin(origin)
	for _, c := range s {
		if NormalizeScheme(c.Scheme) == scheme && NormalizeOrigin(c.Origin) == origin {
			return c, true, nil
		}
	}
	return Credential{}, false, nil
}
