package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/smallbiznis/tasklane/internal/config"
)

const s3Timeout = 10 * time.Second

type S3Gateway struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3 builds a gateway for cfg.Bucket. Static credentials are used when
// both keys are configured, otherwise the default AWS credential chain.
func NewS3(ctx context.Context, cfg config.StorageConfig) (*S3Gateway, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(timeoutCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Gateway{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

func (g *S3Gateway) UploadPublic(ctx context.Context, data []byte, key string, contentType string) (*UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s3Timeout)
	defer cancel()

	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}
	return &UploadResult{URL: publicURL(g.baseURL, key), Key: key}, nil
}

func (g *S3Gateway) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s3Timeout)
	defer cancel()

	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (g *S3Gateway) KeyFromURL(url string) (string, bool) {
	return keyFromURL(g.baseURL, url)
}
