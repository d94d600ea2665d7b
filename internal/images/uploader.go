package images

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/config"
)

// Uploader publishes an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// putObjectAPI is the part of the S3 client the uploader uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores images in a bucket under the "images/" prefix.
type S3Uploader struct {
	client  putObjectAPI
	bucket  string
	region  string
	baseURL string
}

// NewS3Uploader builds an uploader from the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg config.ImagesConfig) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("images: load aws config: %w", err)
	}
	return newS3Uploader(s3.NewFromConfig(awsCfg), cfg.Bucket, awsCfg.Region, cfg.PublicBaseURL), nil
}

func newS3Uploader(client putObjectAPI, bucket, region, baseURL string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, region: region, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload puts data at images/key.
func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	objectKey := "images/" + key
	in := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("images: put s3://%s/%s: %w", u.bucket, objectKey, err)
	}
	if u.baseURL != "" {
		return u.baseURL + "/" + objectKey, nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, objectKey), nil
}

// DirUploader copies images into a directory served elsewhere.
type DirUploader struct {
	dir     string
	baseURL string
}

// NewDirUploader creates a DirUploader. Without baseURL the returned URLs are
// file URLs.
func NewDirUploader(dir, baseURL string) *DirUploader {
	return &DirUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload writes data to dir/key.
func (u *DirUploader) Upload(_ context.Context, key, _ string, data []byte) (string, error) {
	path := filepath.Join(u.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("images: publish %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("images: publish %s: %w", key, err)
	}
	if u.baseURL != "" {
		return u.baseURL + "/" + key, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// NewUploader picks the uploader configured in cfg: a bucket, a publish
// directory or none.
func NewUploader(ctx context.Context, cfg config.ImagesConfig, log *zap.Logger) (Uploader, error) {
	switch {
	case cfg.Bucket != "":
		u, err := NewS3Uploader(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return u, nil
	case cfg.PublishDir != "":
		return NewDirUploader(cfg.PublishDir, cfg.PublicBaseURL), nil
	default:
		if log != nil {
			log.Info("no image uploader configured, placeholders are kept")
		}
		return nil, nil
	}
}

// Factory opens a spool per work item under cfg.SpoolDir.
type Factory struct {
	root     string
	uploader Uploader
	log      *zap.Logger
}

// NewFactory creates a Factory.
func NewFactory(cfg config.ImagesConfig, uploader Uploader, log *zap.Logger) *Factory {
	return &Factory{root: cfg.SpoolDir, uploader: uploader, log: log}
}

// Open opens the spool of todoID.
func (f *Factory) Open(todoID string) (*Spool, error) {
	return Open(f.root, todoID, f.uploader, f.log)
}
