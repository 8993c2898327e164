package httpauth

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/icholy/digest"

	"mediaforge/tokens"
)

var ErrMissingMaterial = errors.New("credential material is incomplete")

// BearerTokenTTL is the lifetime of tokens minted by the bearer strategy.
var BearerTokenTTL = 5 * time.Minute

// Basic sends the username and password with every request.
func Basic(m Material, _ string) (Handler, error) {
	user := m.Get("username")
	if user == "" {
		return nil, fmt.Errorf("basic: %w", ErrMissingMaterial)
	}
	pass := m.Get("password")
	return HandlerFunc(func(req *http.Request) error {
		req.SetBasicAuth(user, pass)
		return nil
	}), nil
}

type digestHandler struct {
	mu       sync.Mutex
	chal     *digest.Challenge
	username string
	password string
	count    int
}

// Digest answers an RFC 7616 challenge. The handler keeps the challenge and
// increments the nonce count on every request it authorizes.
func Digest(m Material, challenge string) (Handler, error) {
	user := m.Get("username")
	if user == "" {
		return nil, fmt.Errorf("digest: %w", ErrMissingMaterial)
	}
	chal, err := digest.ParseChallenge(challenge)
	if err != nil {
		return nil, fmt.Errorf("digest: parse challenge: %w", err)
	}
	return &digestHandler{chal: chal, username: user, password: m.Get("password")}, nil
}

func (h *digestHandler) Authorize(req *http.Request) error {
	h.mu.Lock()
	h.count++
	count := h.count
	h.mu.Unlock()

	cred, err := digest.Digest(h.chal, digest.Options{
		Method:   req.Method,
		URI:      req.URL.RequestURI(),
		Count:    count,
		Username: h.username,
		Password: h.password,
	})
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	req.Header.Set("Authorization", cred.String())
	return nil
}

// Bearer sends a static "token", or mints a short-lived HS256 JWT from
// "secret" with optional "issuer" and "subject".
func Bearer(m Material, _ string) (Handler, error) {
	if token := m.Get("token"); token != "" {
		return bearerFunc(func() (string, error) { return token, nil }), nil
	}
	secret := m.Get("secret")
	if secret == "" {
		// userinfo carries the token in the password slot
		secret = m.Password
		if secret == "" {
			return nil, fmt.Errorf("bearer: %w", ErrMissingMaterial)
		}
		return bearerFunc(func() (string, error) { return secret, nil }), nil
	}
	issuer, subject := m.Get("issuer"), m.Get("subject")
	if subject == "" {
		subject = m.Username
	}
	return bearerFunc(func() (string, error) {
		return tokens.Mint([]byte(secret), issuer, subject, BearerTokenTTL)
	}), nil
}

func bearerFunc(next func() (string, error)) Handler {
	return HandlerFunc(func(req *http.Request) error {
		token, err := next()
		if err != nil {
			return fmt.Errorf("bearer: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}
