// Package routes exposes the HTTP API: task polling and cancellation,
// media records and their content, transcode submission, failure records
// and health.
package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mediaforge/encoder"
	"mediaforge/failures"
	"mediaforge/job"
	"mediaforge/locator"
	"mediaforge/logger"
	"mediaforge/media"
	"mediaforge/publisher"
	"mediaforge/taskqueue"
	"mediaforge/tokens"
	"mediaforge/volumes"
)

// Deps are the collaborators behind the handlers.
type Deps struct {
	Jobs      *job.Service
	Media     *media.Store
	Failures  *failures.Store
	Selector  *volumes.Selector
	Publisher *publisher.Publisher

	// TokenSecret (HS256) or TokenPublicKey (RS256) enables bearer token
	// checks on mutating routes.
	TokenSecret    string
	TokenPublicKey any
	TokenIssuer    string
}

func (d Deps) tokenConfig() tokens.VerifyConfig {
	cfg := tokens.VerifyConfig{PublicKey: d.TokenPublicKey, ExpectedIssuer: d.TokenIssuer}
	if d.TokenSecret != "" {
		cfg.SecretKey = []byte(d.TokenSecret)
	}
	return cfg
}

type handlers struct {
	Deps
}

// NewRouter returns the API router.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{Deps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", h.health)
	r.Get("/version", h.version)

	r.Get("/tasks/{id}", h.taskStatus)
	r.Get("/media", h.listMedia)
	r.Get("/media/{urn}", h.getMedia)
	r.Get("/media/{urn}/content", h.mediaContent)
	r.Get("/failures", h.listFailures)
	r.Get("/failures/{taskID}", h.getFailure)

	r.Group(func(r chi.Router) {
		r.Use(requireToken(deps.tokenConfig()))
		r.Delete("/tasks/{id}", h.cancelTask)
		r.Post("/media", h.createMedia)
		r.Delete("/media/{urn}", h.deleteMedia)
		r.Post("/media/{urn}/publish", h.publishMedia)
		r.Post("/media/{urn}/unpublish", h.unpublishMedia)
		r.Delete("/failures/{taskID}", h.deleteFailure)
		r.Post("/transcode", h.transcode)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debugf("%s %s -> %d (remoteAddr=%s)", r.Method, r.URL.Path, ww.Status(), r.RemoteAddr)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		invalidLocator *locator.InvalidLocatorError
		unsupported    *volumes.UnsupportedSchemeError
		unknownEnc     *encoder.UnknownEncoderError
		probeFailed    *encoder.ProbeFailedError
		notCancellable *taskqueue.NotCancellableError
		pubExists      *publisher.PublicationExistsError
	)
	switch {
	case errors.As(err, &invalidLocator), errors.As(err, &unsupported),
		errors.As(err, &unknownEnc), errors.Is(err, job.ErrInvalidRequest),
		errors.Is(err, publisher.ErrInvalidName):
		return http.StatusBadRequest
	case errors.As(err, &probeFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, media.ErrNotFound), errors.Is(err, taskqueue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.As(err, &notCancellable), errors.As(err, &pubExists),
		errors.Is(err, publisher.ErrAlreadyPublished), errors.Is(err, publisher.ErrNotPublished),
		errors.Is(err, publisher.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, publisher.ErrNoPublishVolume):
		return http.StatusNotImplemented
	case errors.Is(err, taskqueue.ErrQueueFull), errors.Is(err, taskqueue.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Errorf("Request failed: %v", err)
		msg = "Internal server error"
	}
	http.Error(w, msg, status)
}
