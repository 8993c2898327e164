package httpauth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge/tokens"
)

func TestChallengeScheme(t *testing.T) {
	assert.Equal(t, "basic", ChallengeScheme(`Basic realm="dav"`))
	assert.Equal(t, "digest", ChallengeScheme(`  DIGEST realm="x", nonce="y"`))
	assert.Equal(t, "bearer", ChallengeScheme("Bearer"))
	assert.Equal(t, "", ChallengeScheme(""))
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(map[string]string{"Basic": "basic", "digest": "DIGEST"})
	require.NoError(t, err)

	_, ok := r.Lookup("basic")
	assert.True(t, ok)
	_, ok = r.Lookup("Digest")
	assert.True(t, ok)
	_, ok = r.Lookup("bearer")
	assert.False(t, ok)

	_, err = NewRegistry(map[string]string{"ntlm": "ntlm"})
	var unknown *UnknownStrategyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ntlm", unknown.Name)
}

func TestStrategyNames(t *testing.T) {
	assert.Equal(t, []string{"basic", "bearer", "digest"}, StrategyNames())
}

func TestBasic(t *testing.T) {
	h, err := Basic(Material{Username: "alice", Password: "s3cret"}, `Basic realm="x"`)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://dav.example/a", nil)
	require.NoError(t, h.Authorize(req))
	user, pass, ok := req.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "s3cret", pass)

	_, err = Basic(Material{}, "")
	assert.ErrorIs(t, err, ErrMissingMaterial)
}

func TestBasic_DataOverridesUserinfo(t *testing.T) {
	h, err := Basic(Material{Data: map[string]string{"username": "bob", "password": "pw"}}, "")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "http://dav.example/", nil)
	require.NoError(t, h.Authorize(req))
	user, _, _ := req.BasicAuth()
	assert.Equal(t, "bob", user)
}

func TestDigest_NonceCount(t *testing.T) {
	chal := `Digest realm="dav", nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093", qop="auth", algorithm=MD5`
	h, err := Digest(Material{Username: "alice", Password: "pw"}, chal)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "http://dav.example/dir/file.txt", nil)
	require.NoError(t, h.Authorize(req))
	first := req.Header.Get("Authorization")
	assert.True(t, strings.HasPrefix(first, "Digest "))
	assert.Contains(t, first, `username="alice"`)
	assert.Contains(t, first, `uri="/dir/file.txt"`)
	assert.Contains(t, first, "nc=00000001")

	require.NoError(t, h.Authorize(req))
	assert.Contains(t, req.Header.Get("Authorization"), "nc=00000002")
}

func TestDigest_BadChallenge(t *testing.T) {
	_, err := Digest(Material{Username: "a"}, `Basic realm="x"`)
	assert.Error(t, err)
}

func TestBearer_StaticToken(t *testing.T) {
	h, err := Bearer(Material{Data: map[string]string{"token": "abc"}}, "Bearer")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "http://x/", nil)
	require.NoError(t, h.Authorize(req))
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestBearer_MintedToken(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	h, err := Bearer(Material{Data: map[string]string{"secret": secret, "issuer": "mf", "subject": "svc"}}, "Bearer")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://x/", nil)
	require.NoError(t, h.Authorize(req))
	raw := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")

	claims, err := tokens.Verify(raw, tokens.VerifyConfig{SecretKey: []byte(secret), ExpectedIssuer: "mf"})
	require.NoError(t, err)
	assert.Equal(t, "svc", claims.Subject)
}

func TestBearer_Missing(t *testing.T) {
	_, err := Bearer(Material{}, "Bearer")
	assert.ErrorIs(t, err, ErrMissingMaterial)
}
