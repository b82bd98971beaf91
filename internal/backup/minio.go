package backup

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioUploader uploads backups to an S3-compatible endpoint such as MinIO.
type MinioUploader struct {
	bucket    string
	keyPrefix string
	cfg       S3Config
	client    *minio.Client
}

// NewMinioUploader constructs an uploader for cfg.Endpoint. Static keys are
// required because there is no ambient credential chain for these services.
func NewMinioUploader(cfg S3Config) (*MinioUploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	static, err := cfg.staticCredentials()
	if err != nil {
		return nil, err
	}
	if !static {
		return nil, fmt.Errorf("s3: access key and secret key are required for endpoint %s", cfg.Endpoint)
	}
	host, secure, err := endpointHost(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &MinioUploader{bucket: bucket, keyPrefix: prefix, cfg: cfg, client: client}, nil
}

// UploadFile uploads localPath to the configured bucket and key prefix.
func (u *MinioUploader) UploadFile(ctx context.Context, localPath string) error {
	opts := minio.PutObjectOptions{ContentType: u.cfg.ContentType}
	key := u.cfg.objectKey(u.keyPrefix, localPath)
	if _, err := u.client.FPutObject(ctx, u.bucket, key, localPath, opts); err != nil {
		return fmt.Errorf("s3: upload %s: %w", path.Base(localPath), err)
	}
	return nil
}

// endpointHost splits an endpoint into the host the client dials and whether
// TLS is used. An explicit scheme overrides useSSL.
func endpointHost(endpoint string, useSSL bool) (string, bool, error) {
	u, err := url.Parse(normalizeEndpoint(endpoint, useSSL))
	if err != nil {
		return "", false, fmt.Errorf("s3: parse endpoint: %w", err)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", false, fmt.Errorf("s3: endpoint missing host")
	}
	return u.Host, u.Scheme == "https", nil
}
