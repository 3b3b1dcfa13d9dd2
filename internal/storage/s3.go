package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"media-webhook-processor/internal/config"
)

// UploadError reports a failed object-store upload.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload %s: %v", e.Key, e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }

// Client uploads thumbnails to an S3-compatible object store. A custom
// endpoint lets it target hosted stores that speak the S3 API.
type Client struct {
	s3            *s3.Client
	bucket        string
	publicBaseURL string
}

// New builds the storage client from configuration.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.StorageRegion),
	}
	if cfg.StorageEndpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.StorageEndpoint,
					HostnameImmutable: cfg.StoragePathStyle,
					SigningRegion:     cfg.StorageRegion,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.StoragePathStyle
	})
	return &Client{
		s3:            client,
		bucket:        cfg.StorageBucket,
		publicBaseURL: strings.TrimSuffix(cfg.StoragePublicBaseURL, "/"),
	}, nil
}

// Upload stores body under key and returns the public reference clients can
// embed.
func (c *Client) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", &UploadError{Key: key, Err: err}
	}
	if c.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", c.publicBaseURL, key), nil
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key), nil
}

// Delete removes an object best-effort; failures are logged, not returned.
func (c *Client) Delete(ctx context.Context, key string) {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Printf("storage: delete %s: %v", key, err)
	}
}
