package volumes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"mediaforge/credentials"
	"mediaforge/locator"
	"mediaforge/logger"
)

// S3Options configures the S3 driver.
type S3Options struct {
	Region       string
	Endpoint     string // S3-compatible endpoint, e.g. MinIO
	UsePathStyle bool
}

// S3Driver addresses objects as s3://bucket/key. Keys for a bucket come from
// locator userinfo (access key:secret key), then from the credential stored
// for ("s3", bucket), then from the AWS_* environment.
type S3Driver struct {
	base
	opts  S3Options
	creds credentials.Lookup
}

// NewS3Driver returns an S3 driver for scheme.
func NewS3Driver(scheme string, opts S3Options, creds credentials.Lookup) *S3Driver {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	return &S3Driver{base: base{scheme: scheme}, opts: opts, creds: creds}
}

func (d *S3Driver) client(loc locator.Locator) (*s3.Client, error) {
	opts := s3.Options{
		Region:       d.opts.Region,
		UsePathStyle: d.opts.UsePathStyle,
	}
	if d.opts.Endpoint != "" {
		opts.BaseEndpoint = aws.String(d.opts.Endpoint)
	}

	accessKey, secretKey, sessionToken := "", "", ""
	if user := loc.Credentials(); user != nil {
		accessKey = user.Username()
		secretKey, _ = user.Password()
	} else if d.creds != nil {
		cred, found, err := d.creds.Lookup(d.scheme, loc.Origin())
		if err != nil {
			return nil, fmt.Errorf("looking up credential for bucket %s: %w", loc.Host, err)
		}
		if found {
			accessKey, secretKey, sessionToken = cred.Get("accessKey"), cred.Get("secretKey"), cred.Get("sessionToken")
			if region := cred.Get("region"); region != "" {
				opts.Region = region
			}
			if endpoint := cred.Get("endpoint"); endpoint != "" {
				opts.BaseEndpoint = aws.String(endpoint)
			}
		}
	}
	if accessKey == "" {
		accessKey, secretKey, sessionToken = os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"), os.Getenv("AWS_SESSION_TOKEN")
	}

	if accessKey != "" {
		opts.Credentials = awscreds.NewStaticCredentialsProvider(accessKey, secretKey, sessionToken)
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	return s3.New(opts), nil
}

func objectKey(loc locator.Locator) string {
	return strings.TrimPrefix(loc.Path, "/")
}

// URL implements Driver.
func (d *S3Driver) URL(loc locator.Locator) (string, error) {
	key := objectKey(loc)
	if d.opts.Endpoint != "" {
		return strings.TrimSuffix(d.opts.Endpoint, "/") + "/" + loc.Host + "/" + key, nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", loc.Host, d.opts.Region, key), nil
}

// Open implements Driver.
func (d *S3Driver) Open(ctx context.Context, loc locator.Locator) (io.ReadCloser, error) {
	client, err := d.client(loc)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Host),
		Key:    aws.String(objectKey(loc)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("object %s: %w", loc.Redacted(), os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", objectKey(loc), loc.Host, err)
	}
	return out.Body, nil
}

// Save implements Driver. S3 makes an object visible only once the upload
// completes.
func (d *S3Driver) Save(ctx context.Context, loc locator.Locator, r io.Reader) error {
	client, err := d.client(loc)
	if err != nil {
		return err
	}
	uploader := manager.NewUploader(client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(loc.Host),
		Key:    aws.String(objectKey(loc)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", objectKey(loc), loc.Host, err)
	}
	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectKey(loc), loc.Host)
	return nil
}

// Delete implements Driver.
func (d *S3Driver) Delete(ctx context.Context, loc locator.Locator) error {
	client, err := d.client(loc)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Host),
		Key:    aws.String(objectKey(loc)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", objectKey(loc), loc.Host, err)
	}
	return nil
}

// Exists implements Driver.
func (d *S3Driver) Exists(ctx context.Context, loc locator.Locator) (bool, error) {
	client, err := d.client(loc)
	if err != nil {
		return false, err
	}
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Host),
		Key:    aws.String(objectKey(loc)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object %s in bucket %s: %w", objectKey(loc), loc.Host, err)
}

// ListDir implements Driver using "/" as the delimiter.
func (d *S3Driver) ListDir(ctx context.Context, loc locator.Locator) ([]string, []string, error) {
	client, err := d.client(loc)
	if err != nil {
		return nil, nil, err
	}
	prefix := objectKey(loc)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var dirs, files []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(loc.Host),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list bucket %s: %w", loc.Host, err)
		}
		for _, p := range page.CommonPrefixes {
			dirs = append(dirs, path.Base(strings.TrimSuffix(aws.ToString(p.Prefix), "/")))
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); key != prefix {
				files = append(files, path.Base(key))
			}
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == 404
}
