// Package s3archive stores raw webhook bodies in S3-compatible object storage.
package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/config"
)

// ObjectAPI is the subset of the S3 client the archive uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Client archives webhook bodies under webhooks/<provider>/YYYY/MM/DD/.
type Client struct {
	api    ObjectAPI
	bucket string
	now    func() time.Time
}

// NewClient builds the S3 client and checks the bucket. Outside production a
// missing bucket is created.
func NewClient(ctx context.Context, cfg config.ArchiveConfig, appEnv string) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("S3 archive is disabled")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (MinIO, B2) want path-style URLs
			o.UsePathStyle = true
		}
	})

	client := NewWithAPI(api, cfg.BucketName)
	if err := client.ensureBucket(ctx, appEnv != "prod", cfg.EndpointURL == "" && cfg.Region != "us-east-1", cfg.Region); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[S3Archive] Archiving webhook bodies to bucket: %s", cfg.BucketName)
	return client, nil
}

// NewWithAPI wraps an existing S3 API.
func NewWithAPI(api ObjectAPI, bucket string) *Client {
	return &Client{api: api, bucket: bucket, now: time.Now}
}

func (c *Client) ensureBucket(ctx context.Context, mayCreate, needsLocation bool, region string) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	if !mayCreate {
		return fmt.Errorf("bucket %s not accessible: %w", c.bucket, err)
	}

	log.Warnf("[S3Archive] Bucket %s not found, attempting to create it", c.bucket)
	input := &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}
	if needsLocation {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := c.api.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// ObjectKey returns the key a webhook body is stored under. Both segments
// are reduced to [A-Za-z0-9_-].
func ObjectKey(provider, correlationID string, at time.Time) string {
	provider = keySegment(strings.ToLower(provider))
	if provider == "" {
		provider = "unknown"
	}
	correlationID = keySegment(correlationID)
	if correlationID == "" {
		correlationID = fmt.Sprintf("%d", at.UnixNano())
	}
	at = at.UTC()
	return fmt.Sprintf("webhooks/%s/%04d/%02d/%02d/%s.json", provider, at.Year(), at.Month(), at.Day(), correlationID)
}

func keySegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() == 64 {
			break
		}
	}
	return b.String()
}

// Archive uploads a raw webhook body.
func (c *Client) Archive(ctx context.Context, provider, correlationID string, body []byte) error {
	key := ObjectKey(provider, correlationID, c.now())
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"provider":       provider,
			"correlation-id": keySegment(correlationID),
			"upload-source":  "payfox-webhook",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive webhook body to s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}
