package volumes

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"mediaforge/credentials"
	"mediaforge/locator"
	"mediaforge/logger"
)

// GCSDriver addresses objects as gs://bucket/object. A service account key
// is read from the "credentialsJSON" entry (raw or base64) of the credential
// stored for ("gs", bucket); without one the application default
// credentials are used.
type GCSDriver struct {
	base
	creds    credentials.Lookup
	endpoint string
}

// NewGCSDriver returns a GCS driver for scheme. A non-empty endpoint points
// the client at an emulator.
func NewGCSDriver(scheme string, creds credentials.Lookup, endpoint string) *GCSDriver {
	return &GCSDriver{base: base{scheme: scheme}, creds: creds, endpoint: endpoint}
}

func (d *GCSDriver) client(ctx context.Context, loc locator.Locator) (*storage.Client, error) {
	var opts []option.ClientOption
	if d.endpoint != "" {
		opts = append(opts, option.WithEndpoint(d.endpoint), option.WithoutAuthentication())
	} else if d.creds != nil {
		cred, found, err := d.creds.Lookup(d.scheme, loc.Origin())
		if err != nil {
			return nil, fmt.Errorf("looking up credential for bucket %s: %w", loc.Host, err)
		}
		if found && cred.Get("credentialsJSON") != "" {
			opts = append(opts, option.WithCredentialsJSON(decodeKey(cred.Get("credentialsJSON"))))
		}
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return client, nil
}

// decodeKey accepts a key either base64 encoded or verbatim.
func decodeKey(s string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s)); err == nil {
		return decoded
	}
	return []byte(s)
}

// URL implements Driver.
func (d *GCSDriver) URL(loc locator.Locator) (string, error) {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", loc.Host, objectKey(loc)), nil
}

type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r gcsReader) Close() error {
	err := r.Reader.Close()
	r.client.Close()
	return err
}

// Open implements Driver.
func (d *GCSDriver) Open(ctx context.Context, loc locator.Locator) (io.ReadCloser, error) {
	client, err := d.client(ctx, loc)
	if err != nil {
		return nil, err
	}
	rd, err := client.Bucket(loc.Host).Object(objectKey(loc)).NewReader(ctx)
	if err != nil {
		client.Close()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", loc.Redacted(), os.ErrNotExist)
		}
		return nil, fmt.Errorf("Object.NewReader: %w", err)
	}
	return gcsReader{Reader: rd, client: client}, nil
}

// Save implements Driver. The object only becomes visible when the writer
// is closed; a failed copy is cancelled instead.
func (d *GCSDriver) Save(ctx context.Context, loc locator.Locator, r io.Reader) error {
	client, err := d.client(ctx, loc)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wc := client.Bucket(loc.Host).Object(objectKey(loc)).NewWriter(ctx)
	if _, err = io.Copy(wc, r); err != nil {
		cancel()
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectKey(loc), loc.Host)
	return nil
}

// Delete implements Driver.
func (d *GCSDriver) Delete(ctx context.Context, loc locator.Locator) error {
	client, err := d.client(ctx, loc)
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.Bucket(loc.Host).Object(objectKey(loc)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("Object.Delete: %w", err)
	}
	return nil
}

// Exists implements Driver.
func (d *GCSDriver) Exists(ctx context.Context, loc locator.Locator) (bool, error) {
	client, err := d.client(ctx, loc)
	if err != nil {
		return false, err
	}
	defer client.Close()

	_, err = client.Bucket(loc.Host).Object(objectKey(loc)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Object.Attrs: %w", err)
	}
	return true, nil
}

// ListDir implements Driver using "/" as the delimiter.
func (d *GCSDriver) ListDir(ctx context.Context, loc locator.Locator) ([]string, []string, error) {
	client, err := d.client(ctx, loc)
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	prefix := objectKey(loc)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var dirs, files []string
	it := client.Bucket(loc.Host).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("Bucket.Objects: %w", err)
		}
		if attrs.Prefix != "" {
			dirs = append(dirs, path.Base(strings.TrimSuffix(attrs.Prefix, "/")))
		} else if attrs.Name != prefix {
			files = append(files, path.Base(attrs.Name))
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}
