package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	defaultRegion   = "us-east-1"
	uploadPartSize  = 16 * 1024 * 1024
	uploadParallels = 4
)

// S3Config holds uploader parameters for backup uploads.
type S3Config struct {
	BucketURL    string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	ContentType  string
}

// objectKey places a local file under the bucket prefix.
func (c S3Config) objectKey(prefix, localPath string) string {
	key := path.Base(localPath)
	if prefix != "" {
		key = path.Join(prefix, key)
	}
	return key
}

// staticCredentials reports whether an explicit key pair was given. Giving
// only half of one is an error.
func (c S3Config) staticCredentials() (bool, error) {
	ak, sk := strings.TrimSpace(c.AccessKey), strings.TrimSpace(c.SecretKey)
	if (ak == "") != (sk == "") {
		return false, fmt.Errorf("s3: access key and secret key must be set together")
	}
	return ak != "", nil
}

// S3Uploader uploads backups to AWS S3 with the SDK's multipart uploader.
// Without static keys it falls back to the default credential chain.
type S3Uploader struct {
	bucket    string
	keyPrefix string
	cfg       S3Config
	uploader  *manager.Uploader
}

// NewS3Uploader constructs an uploader for BucketURL, formatted as
// s3://bucket/prefix (prefix optional).
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	static, err := cfg.staticCredentials()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if static {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Uploader{
		bucket:    bucket,
		keyPrefix: prefix,
		cfg:       cfg,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
			u.Concurrency = uploadParallels
		}),
	}, nil
}

// UploadFile uploads localPath to the configured bucket and key prefix.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.cfg.objectKey(u.keyPrefix, localPath)),
		Body:   f,
	}
	if u.cfg.ContentType != "" {
		input.ContentType = aws.String(u.cfg.ContentType)
	}
	if _, err := u.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3: upload %s: %w", path.Base(localPath), err)
	}
	return nil
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "https://"
	if !useSSL {
		scheme = "http://"
	}
	return scheme + endpoint
}

func parseS3BucketURL(raw string) (bucket string, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket-url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3: bucket-url must use s3:// scheme")
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", fmt.Errorf("s3: bucket-url missing bucket name")
	}

	prefix = strings.Trim(strings.TrimSpace(u.Path), "/")
	return u.Host, prefix, nil
}
