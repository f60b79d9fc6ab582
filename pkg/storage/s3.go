package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// S3Store implements Store on an S3-compatible object store. It lets a fleet
// of hosts share one snapshot cache instead of each syncing from scratch.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *logrus.Logger
}

// S3Options contains configuration options for S3Store.
type S3Options struct {
	// Endpoint is the base URL of the S3-compatible server.
	Endpoint string
	Region   string
	// AccessKey/SecretKey are static credentials for the endpoint.
	AccessKey string
	SecretKey string
	// Bucket is the object bucket holding the values.
	Bucket string
	// Prefix is prepended to every key, e.g. "settsync/".
	Prefix string
	Logger *logrus.Logger
}

// NewS3Store creates an S3-backed store for a remote endpoint.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store bucket is required")
	}

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               opts.Endpoint,
			HostnameImmutable: true,
			SigningRegion:     region,
		}, nil
	})

	cfg := aws.Config{
		Region:                      opts.Region,
		Credentials:                 credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		EndpointResolverWithOptions: customResolver,
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // path-style URLs for non-AWS endpoints
	})

	return &S3Store{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		logger: opts.Logger,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + key
}

// Store uploads value as one object.
func (s *S3Store) Store(ctx context.Context, key string, value []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %q: %w", key, err)
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": s.bucket,
		"key":    key,
		"bytes":  len(value),
	}).Debug("Stored value on remote S3")
	return nil
}

// Retrieve downloads the object under key, or (nil, nil) if it does not exist.
func (s *S3Store) Retrieve(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	defer result.Body.Close()

	value, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}
	return value, nil
}

var _ Store = (*S3Store)(nil)
