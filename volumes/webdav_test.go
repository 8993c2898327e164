package volumes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge/credentials"
	"mediaforge/httpauth"
	"mediaforge/locator"
)

// davServer is a minimal in-memory WebDAV server guarded by basic auth.
type davServer struct {
	mu          sync.Mutex
	user, pass  string
	files       map[string][]byte
	collections map[string]bool
	requests    []string
	sawCookie   bool
	failRetry   bool
}

func newDAVServer(t *testing.T, user, pass string) (*davServer, *httptest.Server) {
	s := &davServer{
		user:        user,
		pass:        pass,
		files:       make(map[string][]byte),
		collections: map[string]bool{"/": true},
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *davServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *davServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *davServer) file(p string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[p]
}

func (s *davServer) setFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = data
}

func (s *davServer) addCollection(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[p] = true
}

func (s *davServer) hasCollection(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[p]
}

func (s *davServer) cookieSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sawCookie
}

func (s *davServer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *davServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)

	if s.user != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.user || pass != s.pass || s.failRetry {
			if !ok {
				http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="dav"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			s.sawCookie = true
		}
	}

	p := r.URL.Path
	switch r.Method {
	case http.MethodGet:
		data, ok := s.files[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	case http.MethodHead:
		if _, ok := s.files[p]; ok || s.collections[p] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		if !s.collections[parentOf(p)] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		data, _ := io.ReadAll(r.Body)
		s.files[p] = data
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if _, ok := s.files[p]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.files, p)
		w.WriteHeader(http.StatusNoContent)
	case "MKCOL":
		if s.collections[p] {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.collections[parentOf(p)] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.collections[p] = true
		w.WriteHeader(http.StatusCreated)
	case "PROPFIND":
		if r.Header.Get("Depth") != "1" || !s.collections[p] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, `<?xml version="1.0"?><d:multistatus xmlns:d="DAV:">`)
		fmt.Fprintf(w, `<d:response><d:href>%s</d:href><d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop></d:propstat></d:response>`, p)
		var children []string
		for c := range s.collections {
			if c != p && parentOf(c) == p {
				children = append(children, fmt.Sprintf(`<d:response><d:href>%s</d:href><d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop></d:propstat></d:response>`, c))
			}
		}
		for f := range s.files {
			if parentOf(f) == p {
				children = append(children, fmt.Sprintf(`<d:response><d:href>%s</d:href><d:propstat><d:prop><d:resourcetype/></d:prop></d:propstat></d:response>`, f))
			}
		}
		sort.Strings(children)
		fmt.Fprint(w, strings.Join(children, ""))
		fmt.Fprint(w, `</d:multistatus>`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// parentOf returns the parent collection path with a trailing slash.
func parentOf(p string) string {
	p = strings.TrimSuffix(p, "/")
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i+1]
}

func newTestDAVDriver(t *testing.T, creds credentials.Lookup) *WebDAVDriver {
	d, err := NewWebDAVDriver("http", WebDAVOptions{
		Credentials: creds,
		Auth:        httpauth.DefaultRegistry(),
		TempDir:     t.TempDir(),
	})
	require.NoError(t, err)
	return d
}

func davLocator(t *testing.T, srv *httptest.Server, p string) locator.Locator {
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return locator.Locator{Scheme: "http", Host: u.Host, Path: p}
}

func TestWebDAV_BasicChallengeWithStoredCredential(t *testing.T) {
	ctx := context.Background()
	server, srv := newDAVServer(t, "alice", "secret")
	loc := davLocator(t, srv, "/media/in.mp4")
	server.setFile("/media/in.mp4", []byte("payload"))

	creds := credentials.Static{{Scheme: "basic", Origin: loc.Origin(), Data: map[string]string{"username": "alice", "password": "secret"}}}
	d := newTestDAVDriver(t, creds)

	rc, err := d.Open(ctx, loc)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, 2, server.count())
	assert.True(t, server.cookieSeen(), "challenge cookies must be carried to the retry")

	// cached handler authenticates up front
	server.reset()
	rc, err = d.Open(ctx, loc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, 1, server.count())

	d.Reset()
	server.reset()
	rc, err = d.Open(ctx, loc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, 2, server.count())
}

func TestWebDAV_MissingCredential(t *testing.T) {
	ctx := context.Background()
	server, srv := newDAVServer(t, "alice", "secret")
	loc := davLocator(t, srv, "/media/in.mp4")

	d := newTestDAVDriver(t, credentials.Static{})
	_, err := d.Open(ctx, loc)

	var authErr *AuthenticationConfigurationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, loc.Origin(), authErr.Origin)
	assert.Equal(t, "basic", authErr.Scheme)
	assert.Equal(t, 1, server.count(), "configuration errors are not retried")
}

func TestWebDAV_UnregisteredStrategy(t *testing.T) {
	_, srv := newDAVServer(t, "alice", "secret")
	loc := davLocator(t, srv, "/x")

	registry, err := httpauth.NewRegistry(map[string]string{"digest": "digest"})
	require.NoError(t, err)
	d, err := NewWebDAVDriver("http", WebDAVOptions{Auth: registry, Credentials: credentials.Static{}})
	require.NoError(t, err)

	_, err = d.Exists(context.Background(), loc)
	var authErr *AuthenticationConfigurationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "basic", authErr.Scheme)
}

func TestWebDAV_EmbeddedCredentialsWin(t *testing.T) {
	ctx := context.Background()
	server, srv := newDAVServer(t, "alice", "secret")
	loc := davLocator(t, srv, "/a.txt")
	loc.User = url.UserPassword("alice", "secret")
	server.setFile("/a.txt", []byte("a"))

	stored := credentials.Static{{Scheme: "basic", Origin: loc.Origin(), Data: map[string]string{"username": "alice", "password": "wrong"}}}
	d := newTestDAVDriver(t, stored)

	exists, err := d.Exists(ctx, loc)
	require.NoError(t, err)
	assert.True(t, exists)

	u, err := d.URL(loc)
	require.NoError(t, err)
	assert.NotContains(t, u, "secret")
}

func TestWebDAV_RetryRejected(t *testing.T) {
	server, srv := newDAVServer(t, "alice", "secret")
	server.mu.Lock()
	server.failRetry = true
	server.mu.Unlock()
	loc := davLocator(t, srv, "/a.txt")
	creds := credentials.Static{{Scheme: "basic", Origin: loc.Origin(), Data: map[string]string{"username": "alice", "password": "secret"}}}
	d := newTestDAVDriver(t, creds)

	_, err := d.Exists(context.Background(), loc)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, http.StatusUnauthorized, protoErr.StatusCode)
	assert.Equal(t, http.MethodHead, protoErr.Method)
	assert.Equal(t, 2, server.count())
}

func TestWebDAV_SaveCreatesCollections(t *testing.T) {
	ctx := context.Background()
	server, srv := newDAVServer(t, "", "")
	d := newTestDAVDriver(t, nil)
	loc := davLocator(t, srv, "/a/b/c.txt")

	require.NoError(t, d.Save(ctx, loc, strings.NewReader("content")))
	assert.Equal(t, []byte("content"), server.file("/a/b/c.txt"))
	assert.True(t, server.hasCollection("/a/"))
	assert.True(t, server.hasCollection("/a/b/"))
	assert.Equal(t, []string{
		"HEAD /a/", "MKCOL /a/",
		"HEAD /a/b/", "MKCOL /a/b/",
		"PUT /a/b/c.txt",
	}, server.seen())

	// parents exist now: only probes and the PUT
	server.reset()
	require.NoError(t, d.Save(ctx, loc, strings.NewReader("v2")))
	assert.Equal(t, []string{"HEAD /a/", "HEAD /a/b/", "PUT /a/b/c.txt"}, server.seen())
}

func TestWebDAV_SaveReplaysBodyAfterChallenge(t *testing.T) {
	ctx := context.Background()
	server, srv := newDAVServer(t, "alice", "secret")
	loc := davLocator(t, srv, "/file.txt")
	creds := credentials.Static{{Scheme: "basic", Origin: loc.Origin(), Data: map[string]string{"username": "alice", "password": "secret"}}}
	d := newTestDAVDriver(t, creds)

	require.NoError(t, d.Save(ctx, loc, strings.NewReader("replayed body")))
	assert.Equal(t, "replayed body", string(server.file("/file.txt")))
	assert.Equal(t, []string{"PUT /file.txt", "PUT /file.txt"}, server.seen())
}

func TestWebDAV_DeleteAndExists(t *testing.T) {
	ctx := context.Background()
	server, srv := newDAVServer(t, "", "")
	d := newTestDAVDriver(t, nil)
	loc := davLocator(t, srv, "/f.txt")
	server.setFile("/f.txt", []byte("x"))

	exists, err := d.Exists(ctx, loc)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, d.Delete(ctx, loc))
	require.NoError(t, d.Delete(ctx, loc))

	exists, err = d.Exists(ctx, loc)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWebDAV_OpenMissing(t *testing.T) {
	_, srv := newDAVServer(t, "", "")
	d := newTestDAVDriver(t, nil)

	_, err := d.Open(context.Background(), davLocator(t, srv, "/nope"))
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, http.StatusNotFound, protoErr.StatusCode)
}

func TestWebDAV_ListDir(t *testing.T) {
	server, srv := newDAVServer(t, "", "")
	server.addCollection("/dir/")
	server.addCollection("/dir/sub/")
	server.setFile("/dir/b.mp4", nil)
	server.setFile("/dir/a.mp4", nil)
	d := newTestDAVDriver(t, nil)

	dirs, files, err := d.ListDir(context.Background(), davLocator(t, srv, "/dir"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sub"}, dirs)
	assert.Equal(t, []string{"a.mp4", "b.mp4"}, files)
}

func TestWebDAV_PathUnsupported(t *testing.T) {
	d := newTestDAVDriver(t, nil)
	_, err := d.Path(locator.MustParse("http://host/x"))
	assert.ErrorIs(t, err, ErrNotSupported)
	var capErr *CapabilityUnsupportedError
	assert.ErrorAs(t, err, &capErr)
}
