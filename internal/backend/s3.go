package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultS3Region is used when no region is configured.
const DefaultS3Region = "us-east-1"

// HeadObjectAPI is the subset of the S3 client used for checksums.
type HeadObjectAPI interface {
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
}

// S3Config holds S3 connection settings.
type S3Config struct {
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// S3Storage serves s3://bucket/key paths. The object ETag is the checksum.
type S3Storage struct {
	client HeadObjectAPI
}

// NewS3Storage wraps an existing client.
func NewS3Storage(client HeadObjectAPI) *S3Storage {
	return &S3Storage{client: client}
}

// DialS3 builds an S3 client from cfg using the default AWS credential chain
// unless static keys are given.
func DialS3(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultS3Region
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3Storage(awss3.NewFromConfig(awsCfg, s3Opts...)), nil
}

// Scheme implements Storage.
func (s *S3Storage) Scheme() string { return "s3" }

// Checksum implements Storage.
func (s *S3Storage) Checksum(ctx context.Context, path string) (string, error) {
	bucket, key, err := ParseS3URL(path)
	if err != nil {
		return "", err
	}

	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return "", fmt.Errorf("checksumming %s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("checksumming %s: %w", path, err)
	}

	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	if etag == "" {
		return "", fmt.Errorf("checksumming %s: object has no etag", path)
	}
	return etag, nil
}

// Exists implements Storage.
func (s *S3Storage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Checksum(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// ParseS3URL splits s3://bucket/key into its bucket and key.
func ParseS3URL(path string) (bucket, key string, err error) {
	if SchemeOf(path) != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", path)
	}
	rest := path[len("s3://"):]
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: expected s3://bucket/key", path)
	}
	return bucket, key, nil
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		switch coded.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
