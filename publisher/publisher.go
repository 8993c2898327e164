// Package publisher exposes media records under public URLs. A record whose
// volume can render a public URL is published in place; otherwise its
// content is copied into the configured publish volume and served from
// there.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"mediaforge/locator"
	"mediaforge/logger"
	"mediaforge/media"
	"mediaforge/models"
	"mediaforge/volumes"
)

var (
	ErrAlreadyPublished = errors.New("media is already published")
	ErrNotPublished     = errors.New("media is not published")
	ErrNotReady         = errors.New("only ready media can be published")
	ErrNoPublishVolume  = errors.New("no publish volume configured")
	ErrInvalidName      = errors.New("invalid public name")
)

// PublicationExistsError is returned when the public name is taken.
type PublicationExistsError struct {
	Name string
}

func (e *PublicationExistsError) Error() string {
	return fmt.Sprintf("publication %q already exists", e.Name)
}

// Config locates the publish volume.
type Config struct {
	// Locator is the collection published copies are written to. Empty
	// disables copying.
	Locator string
	// BaseURL prefixes public names. When empty the publish volume renders
	// the URL itself.
	BaseURL string
	// TempDir holds local copies of inputs from volumes without local paths.
	TempDir string
}

// Publisher publishes and unpublishes media records.
type Publisher struct {
	media    *media.Store
	selector *volumes.Selector
	cfg      Config
}

// New returns a publisher writing records to store.
func New(store *media.Store, selector *volumes.Selector, cfg Config) *Publisher {
	return &Publisher{media: store, selector: selector, cfg: cfg}
}

// Publish gives the record urn a public URL. With an empty name the
// record's own volume is asked for a URL first; a non-empty name always
// copies into the publish volume under that name.
func (p *Publisher) Publish(ctx context.Context, urn, name string) (*models.MediaRecord, error) {
	rec, err := p.media.Get(urn)
	if err != nil {
		return nil, err
	}
	if rec.PublicURL != "" {
		return nil, ErrAlreadyPublished
	}
	if rec.Status != models.StatusReady {
		return nil, ErrNotReady
	}

	d, loc, err := p.selector.Resolve(rec.PrivateLocator)
	if err != nil {
		return nil, err
	}

	if name == "" {
		u, err := d.URL(loc)
		switch {
		case err == nil:
			rec.PublicURL = u
			if err := p.media.Save(rec); err != nil {
				return nil, err
			}
			logger.Infof("published %s in place", rec.URN)
			return rec, nil
		case !errors.Is(err, volumes.ErrNotSupported):
			return nil, err
		}
		name = strings.TrimPrefix(rec.URN, "urn:uuid:") + path.Ext(loc.Base())
	}

	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	publicURL, err := p.copyOut(ctx, d, loc, name)
	if err != nil {
		return nil, err
	}

	rec.PublicURL = publicURL
	rec.PublishedName = name
	if err := p.media.Save(rec); err != nil {
		return nil, err
	}
	logger.Infof("published %s as %s", rec.URN, name)
	return rec, nil
}

// Unpublish clears the public URL of urn and removes the published copy,
// if one was made.
func (p *Publisher) Unpublish(ctx context.Context, urn string) (*models.MediaRecord, error) {
	rec, err := p.media.Get(urn)
	if err != nil {
		return nil, err
	}
	if rec.PublicURL == "" {
		return nil, ErrNotPublished
	}

	if rec.PublishedName != "" {
		d, target, err := p.target(rec.PublishedName)
		if err != nil {
			return nil, err
		}
		if err := d.Delete(ctx, target); err != nil {
			return nil, fmt.Errorf("removing publication %s: %w", target.Redacted(), err)
		}
	}

	rec.PublicURL = ""
	rec.PublishedName = ""
	if err := p.media.Save(rec); err != nil {
		return nil, err
	}
	logger.Infof("unpublished %s", rec.URN)
	return rec, nil
}

// copyOut writes the content of loc to name on the publish volume and
// returns its public URL.
func (p *Publisher) copyOut(ctx context.Context, d volumes.Driver, loc locator.Locator, name string) (string, error) {
	out, target, err := p.target(name)
	if err != nil {
		return "", err
	}
	exists, err := out.Exists(ctx, target)
	if err != nil {
		return "", err
	}
	if exists {
		return "", &PublicationExistsError{Name: name}
	}

	src, cleanup, err := volumes.LocalPath(ctx, d, loc, p.cfg.TempDir)
	if err != nil {
		return "", err
	}
	defer cleanup()
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", loc.Redacted(), err)
	}
	defer f.Close()
	if err := out.Save(ctx, target, f); err != nil {
		return "", fmt.Errorf("saving %s: %w", target.Redacted(), err)
	}

	if p.cfg.BaseURL != "" {
		return url.JoinPath(p.cfg.BaseURL, name)
	}
	u, err := out.URL(target)
	if err != nil {
		if derr := out.Delete(ctx, target); derr != nil {
			logger.Warnf("failed to remove unpublishable copy %s: %v", target.Redacted(), derr)
		}
		return "", err
	}
	return u, nil
}

func (p *Publisher) target(name string) (volumes.Driver, locator.Locator, error) {
	if p.cfg.Locator == "" {
		return nil, locator.Locator{}, ErrNoPublishVolume
	}
	d, root, err := p.selector.Resolve(p.cfg.Locator)
	if err != nil {
		return nil, locator.Locator{}, err
	}
	full := path.Join(root.Path, name)
	if root.Path == "" {
		full = "/" + full
	}
	return d, root.WithPath(full), nil
}

// cleanName confines name to the publish volume.
func cleanName(name string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	if cleaned == "" || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return cleaned, nil
}
