package credentials

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_PutLookupDelete(t *testing.T) {
	store := openTestStore(t)

	err := store.Put(Credential{
		Scheme: "Basic",
		Origin: "Dav.Example.com:8080",
		Data:   map[string]string{"username": "alice", "password": "pw"},
	})
	require.NoError(t, err)

	cred, found, err := store.Lookup("basic", "dav.example.com:8080")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "basic", cred.Scheme)
	assert.Equal(t, "dav.example.com:8080", cred.Origin)
	assert.Equal(t, "alice", cred.Get("username"))

	// origin is port-sensitive
	_, found, err = store.Lookup("basic", "dav.example.com")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Delete("basic", "dav.example.com:8080"))
	_, found, err = store.Lookup("basic", "dav.example.com:8080")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_List(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Put(Credential{Scheme: "digest", Origin: "b.example", Data: map[string]string{}}))
	require.NoError(t, store.Put(Credential{Scheme: "basic", Origin: "a.example", Data: map[string]string{}}))

	creds, err := store.List()
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "basic", creds[0].Scheme)
	assert.Equal(t, "digest", creds[1].Scheme)
}

func TestStore_PutRequiresSchemeAndOrigin(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.Put(Credential{Scheme: "basic"}))
	assert.Error(t, store.Put(Credential{Origin: "host"}))
}

func TestNormalizeOrigin(t *testing.T) {
	assert.Equal(t, "host:8080", NormalizeOrigin("bob:pw@Host:8080"))
	assert.Equal(t, "host", NormalizeOrigin("https://bob@host/some/path"))
	assert.Equal(t, "host", NormalizeOrigin(" host "))
}

func TestCredentialString_HidesData(t *testing.T) {
	c := Credential{Scheme: "basic", Origin: "host", Data: map[string]string{"password": "s3cret"}}
	assert.NotContains(t, c.String(), "s3cret")
}

func TestStatic(t *testing.T) {
	s := Static{{Scheme: "basic", Origin: "host", Data: map[string]string{"username": "u"}}}
	cred, found, err := s.Lookup("BASIC", "HOST")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "u", cred.Get("username"))
}
