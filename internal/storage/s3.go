// Package storage wraps the object storage provider (S3) used for raw
// media and bulk metadata uploads, along with the notification queue
// which announces newly stored objects.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/webflix/webflix/pkg/logger"
)

var log = logger.Get("Storage")

type (
	Config struct {
		UploadsBucket        string        `yaml:"uploads_bucket" env:"STORAGE_UPLOADS_BUCKET" env-required:"true"`
		BulkBucket           string        `yaml:"bulk_bucket" env:"STORAGE_BULK_BUCKET" env-required:"true"`
		NotificationQueueURL string        `yaml:"notification_queue_url" env:"STORAGE_NOTIFICATION_QUEUE_URL" env-required:"true"`
		PresignExpiry        time.Duration `yaml:"presign_expiry" env:"STORAGE_PRESIGN_EXPIRY" env-default:"1h"`
	}

	// Client provides the read-side object storage operations the
	// ingestion sources need, plus pre-signed upload URL issuance for
	// the management API.
	Client struct {
		s3Client      *s3.Client
		presignClient *s3.PresignClient
		config        Config
	}
)

// NewClient loads AWS configuration from the environment and constructs
// the storage client.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &Client{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		config:        config,
	}, nil
}

// StreamObject opens the object at bucket/key as a stream. The caller is
// responsible for closing the returned reader; the object is never
// buffered in memory in its entirety.
func (client *Client) StreamObject(ctx context.Context, bucket string, key string) (io.ReadCloser, error) {
	output, err := client.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open object s3://%s/%s: %w", bucket, key, err)
	}

	return output.Body, nil
}

// GetObjectTags returns the objects tag set as a plain map.
func (client *Client) GetObjectTags(ctx context.Context, bucket string, key string) (map[string]string, error) {
	output, err := client.s3Client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read tags of s3://%s/%s: %w", bucket, key, err)
	}

	tags := make(map[string]string, len(output.TagSet))
	for _, tag := range output.TagSet {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	return tags, nil
}

// PresignUpload issues a time-boxed URL a client can PUT a new media
// object to. The object key is generated here so that client uploads
// cannot collide.
func (client *Client) PresignUpload(ctx context.Context) (url string, key string, err error) {
	key = fmt.Sprintf("uploads/%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])

	request, err := client.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(client.config.UploadsBucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(client.config.PresignExpiry))
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload URL: %w", err)
	}

	log.Emit(logger.DEBUG, "Issued pre-signed upload URL for key %s (expires in %s)\n", key, client.config.PresignExpiry)
	return request.URL, key, nil
}

// ObjectURL returns the canonical s3:// locator for an object. This is
// the form stored as a videos source_url.
func ObjectURL(bucket string, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
