package volumes

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"mediaforge/credentials"
	"mediaforge/httpauth"
	"mediaforge/locator"
	"mediaforge/logger"
)

const methodPropfind = "PROPFIND"
const methodMkcol = "MKCOL"

// WebDAVDriver talks to an HTTP/WebDAV server. Authentication is negotiated
// lazily: a request is first sent bare, and only a 401 answer triggers a
// credential lookup and a single authenticated retry. The resulting handler
// is cached per URL so later calls authenticate up front.
type WebDAVDriver struct {
	base
	client  *http.Client
	creds   credentials.Lookup
	auth    *httpauth.Registry
	tempDir string

	mu       sync.Mutex
	handlers map[string]httpauth.Handler
}

// WebDAVOptions configures NewWebDAVDriver.
type WebDAVOptions struct {
	Credentials credentials.Lookup
	Auth        *httpauth.Registry
	Timeout     time.Duration
	TempDir     string
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// NewWebDAVDriver returns a driver for scheme. http, dav and webdav map to
// plain HTTP; https, davs and webdavs to TLS.
func NewWebDAVDriver(scheme string, opts WebDAVOptions) (*WebDAVDriver, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	auth := opts.Auth
	if auth == nil {
		auth = httpauth.DefaultRegistry()
	}
	return &WebDAVDriver{
		base: base{scheme: scheme},
		client: &http.Client{
			Jar:       jar,
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		creds:    opts.Credentials,
		auth:     auth,
		tempDir:  opts.TempDir,
		handlers: make(map[string]httpauth.Handler),
	}, nil
}

// Reset forgets every cached authentication handler.
func (d *WebDAVDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = make(map[string]httpauth.Handler)
}

// URL implements Driver.
func (d *WebDAVDriver) URL(loc locator.Locator) (string, error) {
	return d.target(loc).String(), nil
}

// Open implements Driver.
func (d *WebDAVDriver) Open(ctx context.Context, loc locator.Locator) (io.ReadCloser, error) {
	resp, err := d.do(ctx, http.MethodGet, loc, nil, nil)
	if err != nil {
		return nil, err
	}
	if !success(resp.StatusCode) {
		drain(resp)
		return nil, &ProtocolError{Method: http.MethodGet, URL: d.target(loc).String(), StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// Save spools r to a local file so the body can be replayed on an
// authenticated retry, creates missing parent collections and PUTs the
// file in one request.
func (d *WebDAVDriver) Save(ctx context.Context, loc locator.Locator, r io.Reader) error {
	spool, err := os.CreateTemp(d.tempDir, "mediaforge-dav-*")
	if err != nil {
		return fmt.Errorf("creating spool file: %w", err)
	}
	spoolPath := spool.Name()
	defer os.Remove(spoolPath)

	size, err := io.Copy(spool, contextReader{ctx: ctx, r: r})
	spool.Close()
	if err != nil {
		return fmt.Errorf("spooling upload: %w", err)
	}

	if err := d.ensureCollections(ctx, loc); err != nil {
		return err
	}

	body := func() (io.ReadCloser, error) { return os.Open(spoolPath) }
	resp, err := d.do(ctx, http.MethodPut, loc, &requestBody{open: body, size: size}, nil)
	if err != nil {
		return err
	}
	drain(resp)
	if !success(resp.StatusCode) {
		return &ProtocolError{Method: http.MethodPut, URL: d.target(loc).String(), StatusCode: resp.StatusCode}
	}
	logger.Debugf("webdav: saved %s (%d bytes)", d.target(loc), size)
	return nil
}

// ensureCollections walks the parent collections of loc outermost first
// and issues MKCOL for each one that does not exist.
func (d *WebDAVDriver) ensureCollections(ctx context.Context, loc locator.Locator) error {
	for _, dir := range loc.Ancestors() {
		exists, err := d.Exists(ctx, dir)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		resp, err := d.do(ctx, methodMkcol, dir, nil, nil)
		if err != nil {
			return err
		}
		drain(resp)
		// 405 means the collection appeared in the meantime
		if !success(resp.StatusCode) && resp.StatusCode != http.StatusMethodNotAllowed {
			return &ProtocolError{Method: methodMkcol, URL: d.target(dir).String(), StatusCode: resp.StatusCode}
		}
		logger.Debugf("webdav: created collection %s", d.target(dir))
	}
	return nil
}

// Delete implements Driver.
func (d *WebDAVDriver) Delete(ctx context.Context, loc locator.Locator) error {
	resp, err := d.do(ctx, http.MethodDelete, loc, nil, nil)
	if err != nil {
		return err
	}
	drain(resp)
	if success(resp.StatusCode) || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return &ProtocolError{Method: http.MethodDelete, URL: d.target(loc).String(), StatusCode: resp.StatusCode}
}

// Exists implements Driver with a HEAD request.
func (d *WebDAVDriver) Exists(ctx context.Context, loc locator.Locator) (bool, error) {
	resp, err := d.do(ctx, http.MethodHead, loc, nil, nil)
	if err != nil {
		return false, err
	}
	drain(resp)
	switch {
	case success(resp.StatusCode):
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, &ProtocolError{Method: http.MethodHead, URL: d.target(loc).String(), StatusCode: resp.StatusCode}
	}
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:"><d:prop><d:resourcetype/></d:prop></d:propfind>`

type multistatus struct {
	Responses []struct {
		Href      string `xml:"href"`
		Propstats []struct {
			Collection *struct{} `xml:"prop>resourcetype>collection"`
		} `xml:"propstat"`
	} `xml:"response"`
}

// ListDir implements Driver with PROPFIND at depth 1.
func (d *WebDAVDriver) ListDir(ctx context.Context, loc locator.Locator) ([]string, []string, error) {
	if !strings.HasSuffix(loc.Path, "/") {
		loc = loc.WithPath(loc.Path + "/")
	}
	body := func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(propfindBody)), nil }
	header := http.Header{
		"Depth":        []string{"1"},
		"Content-Type": []string{"application/xml; charset=utf-8"},
	}
	resp, err := d.do(ctx, methodPropfind, loc, &requestBody{open: body, size: int64(len(propfindBody))}, header)
	if err != nil {
		return nil, nil, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, nil, &ProtocolError{Method: methodPropfind, URL: d.target(loc).String(), StatusCode: resp.StatusCode}
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, nil, fmt.Errorf("decoding multistatus: %w", err)
	}

	self := strings.TrimSuffix(loc.Path, "/")
	var dirs, files []string
	for _, r := range ms.Responses {
		href, err := url.Parse(r.Href)
		if err != nil {
			continue
		}
		p := strings.TrimSuffix(href.Path, "/")
		if p == self || p == "" {
			continue
		}
		name := path.Base(p)
		collection := false
		for _, ps := range r.Propstats {
			if ps.Collection != nil {
				collection = true
			}
		}
		if collection {
			dirs = append(dirs, name)
		} else {
			files = append(files, name)
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}

type requestBody struct {
	open func() (io.ReadCloser, error)
	size int64
}

// do performs one logical request: a first attempt, and on 401 exactly one
// authenticated retry. Any error building authentication is an
// AuthenticationConfigurationError.
func (d *WebDAVDriver) do(ctx context.Context, method string, loc locator.Locator, body *requestBody, header http.Header) (*http.Response, error) {
	target := d.target(loc).String()

	d.mu.Lock()
	handler := d.handlers[target]
	d.mu.Unlock()

	resp, err := d.send(ctx, method, target, body, header, handler)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	challenge := resp.Header.Get("WWW-Authenticate")
	drain(resp)

	handler, err = d.negotiate(loc, challenge)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.handlers[target] = handler
	d.mu.Unlock()

	resp, err = d.send(ctx, method, target, body, header, handler)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, &ProtocolError{Method: method, URL: target, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (d *WebDAVDriver) send(ctx context.Context, method, target string, body *requestBody, header http.Header, handler httpauth.Handler) (*http.Response, error) {
	var rc io.ReadCloser
	if body != nil {
		var err error
		if rc, err = body.open(); err != nil {
			return nil, fmt.Errorf("opening request body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rc)
	if err != nil {
		if rc != nil {
			rc.Close()
		}
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	if body != nil {
		req.ContentLength = body.size
		req.GetBody = body.open
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if handler != nil {
		if err := handler.Authorize(req); err != nil {
			if rc != nil {
				rc.Close()
			}
			return nil, fmt.Errorf("authorizing %s %s: %w", method, target, err)
		}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	logger.Debugf("webdav: %s %s -> %d", method, target, resp.StatusCode)
	return resp, nil
}

// negotiate turns a 401 challenge into a handler. Credentials embedded in
// the locator win over the credential store.
func (d *WebDAVDriver) negotiate(loc locator.Locator, challenge string) (httpauth.Handler, error) {
	scheme := httpauth.ChallengeScheme(challenge)
	origin := loc.Origin()

	strategy, ok := d.auth.Lookup(scheme)
	if !ok {
		return nil, &AuthenticationConfigurationError{Origin: origin, Scheme: scheme, Reason: "no strategy registered"}
	}

	var material httpauth.Material
	if user := loc.Credentials(); user != nil {
		pass, _ := user.Password()
		material = httpauth.Material{Username: user.Username(), Password: pass}
	} else {
		if d.creds == nil {
			return nil, &AuthenticationConfigurationError{Origin: origin, Scheme: scheme, Reason: "no credential store"}
		}
		cred, found, err := d.creds.Lookup(scheme, origin)
		if err != nil {
			return nil, fmt.Errorf("looking up credential %s/%s: %w", scheme, origin, err)
		}
		if !found {
			return nil, &AuthenticationConfigurationError{Origin: origin, Scheme: scheme, Reason: "no credential stored"}
		}
		material = httpauth.Material{Username: cred.Get("username"), Password: cred.Get("password"), Data: cred.Data}
	}

	handler, err := strategy(material, challenge)
	if err != nil {
		return nil, &AuthenticationConfigurationError{Origin: origin, Scheme: scheme, Reason: err.Error()}
	}
	logger.Infof("webdav: authenticating to %s with %s", origin, scheme)
	return handler, nil
}

// target is the request URL for loc, always without userinfo.
func (d *WebDAVDriver) target(loc locator.Locator) *url.URL {
	return &url.URL{
		Scheme:   httpScheme(loc.Scheme),
		Host:     loc.Host,
		Path:     loc.Path,
		RawQuery: loc.RawQuery,
	}
}

func httpScheme(scheme string) string {
	switch scheme {
	case "https", "davs", "webdavs":
		return "https"
	default:
		return "http"
	}
}

func success(code int) bool { return code >= 200 && code < 300 }

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
