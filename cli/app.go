package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"mediaforge/config"
	"mediaforge/credentials"
	"mediaforge/encoder"
	"mediaforge/failures"
	"mediaforge/httpauth"
	"mediaforge/job"
	"mediaforge/logger"
	"mediaforge/media"
	"mediaforge/publisher"
	"mediaforge/taskqueue"
	"mediaforge/taskstatus"
	"mediaforge/tokens"
	"mediaforge/volumes"
)

// storage is what the credential and volume commands need.
type storage struct {
	credentials *credentials.Store
	selector    *volumes.Selector
}

func openStorage(cfg *config.Config) (*storage, error) {
	creds, err := credentials.Open(cfg.CredentialsDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening credentials store: %w", err)
	}
	selector, err := newSelector(cfg, creds)
	if err != nil {
		creds.Close()
		return nil, err
	}
	return &storage{credentials: creds, selector: selector}, nil
}

func (s *storage) Close() {
	if err := s.credentials.Close(); err != nil {
		logger.Errorf("Failed to close credentials store: %v", err)
	}
}

func newSelector(cfg *config.Config, creds credentials.Lookup) (*volumes.Selector, error) {
	auth, err := httpauth.NewRegistry(cfg.Auth)
	if err != nil {
		return nil, err
	}
	return volumes.NewSelector(cfg.Volumes, volumes.Deps{
		Credentials: creds,
		Auth:        auth,
		TempRoot:    cfg.TempRoot,
		HTTPTimeout: cfg.HTTP.Timeout,
		S3: volumes.S3Options{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		},
		GCSEndpoint:   cfg.GCS.Endpoint,
		DefaultScheme: cfg.DefaultScheme,
	})
}

// app is the full transcode stack.
type app struct {
	*storage
	cfg       *config.Config
	media     *media.Store
	failures  *failures.Store
	status    taskstatus.Store
	memStatus *taskstatus.MemoryStore
	redis     *taskstatus.RedisStore
	pool      *taskqueue.Pool
	encoders  *encoder.Registry
	jobs      *job.Service
	publisher *publisher.Publisher
}

func openApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if a.storage, err = openStorage(cfg); err != nil {
		return a, err
	}
	if a.media, err = media.Open(cfg.MediaDBPath()); err != nil {
		return a, fmt.Errorf("opening media store: %w", err)
	}
	logger.Info("Media database initialized successfully")
	if a.failures, err = failures.Open(cfg.FailuresDBPath()); err != nil {
		return a, fmt.Errorf("opening failure store: %w", err)
	}
	logger.Info("Failures database initialized successfully")

	switch cfg.TaskStatus.Backend {
	case "redis":
		a.redis, err = taskstatus.NewRedisStore(ctx, taskstatus.RedisConfig{
			Addr:      cfg.TaskStatus.Redis.Addr,
			Username:  cfg.TaskStatus.Redis.Username,
			Password:  cfg.TaskStatus.Redis.Password,
			DB:        cfg.TaskStatus.Redis.DB,
			KeyPrefix: cfg.TaskStatus.Redis.KeyPrefix,
			TTL:       cfg.TaskStatus.TTL,
		})
		if err != nil {
			return a, fmt.Errorf("connecting task status store: %w", err)
		}
		a.status = a.redis
	default:
		a.memStatus = taskstatus.NewMemoryStore(cfg.TaskStatus.TTL)
		a.status = a.memStatus
	}

	a.pool = taskqueue.NewPool(cfg.Transcode.MaxConcurrent, cfg.Transcode.MaxQueued)
	env := encoder.Env{
		Selector:       a.selector,
		Status:         a.status,
		Media:          a.media,
		Failures:       a.failures,
		Pool:           a.pool,
		TempDir:        cfg.TempRoot,
		UpdateInterval: cfg.Transcode.UpdateInterval,
	}
	a.encoders, err = encoder.NewRegistry(cfg.Encoders, cfg.DefaultEncoder, env, encoder.Options{
		FFmpegBinary: cfg.FFmpeg.Binary,
		ProbeBinary:  cfg.FFmpeg.Probe,
	})
	if err != nil {
		return a, err
	}
	logger.Infof("Encoders available: %v (default %s)", a.encoders.Names(), cfg.DefaultEncoder)

	a.jobs = job.NewService(a.media, a.encoders, a.selector, a.status, a.pool)
	a.publisher = publisher.New(a.media, a.selector, publisher.Config{
		Locator: cfg.Publish.Locator,
		BaseURL: cfg.Publish.BaseURL,
		TempDir: cfg.TempRoot,
	})
	return a, nil
}

// Close waits for running tasks, then closes the stores.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Wait()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.failures != nil {
		a.failures.Close()
	}
	if a.media != nil {
		a.media.Close()
	}
	if a.storage != nil {
		a.storage.Close()
	}
}

// cleanupRoutine periodically prunes old failure records and expired task
// statuses.
func (a *app) cleanupRoutine(ctx context.Context) {
	interval := a.cfg.Failures.CleanupInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	logger.Infof("Cleanup routine started - will run every %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped")
			return
		case <-ticker.C:
			a.cleanup()
		}
	}
}

func (a *app) cleanup() {
	if a.cfg.Failures.MaxAge > 0 {
		n, err := a.failures.Prune(a.cfg.Failures.MaxAge)
		if err != nil {
			logger.Errorf("Failed to prune failure records: %v", err)
		} else {
			logger.Infof("Pruned %d failure records older than %v", n, a.cfg.Failures.MaxAge)
		}
	}
	if a.memStatus != nil {
		logger.Debugf("Dropped %d expired task statuses", a.memStatus.Cleanup())
	}
}

// tokenPublicKey loads the RS256 verification key named by
// server.token_public_key, or returns nil when none is configured.
func tokenPublicKey(cfg *config.Config) (any, error) {
	if cfg.Server.TokenPublicKey == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.Server.TokenPublicKey)
	if err != nil {
		return nil, fmt.Errorf("reading server.token_public_key: %w", err)
	}
	key, err := tokens.ParsePublicKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing server.token_public_key: %w", err)
	}
	return key, nil
}
