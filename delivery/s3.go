package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Verify interface is satisfied
var _ URLSigner = (*S3Signer)(nil)

// S3Signer signs GetObject URLs against an S3 or S3-compatible bucket.
type S3Signer struct {
	bucket        string
	presignClient *s3.PresignClient
}

// S3Config configures the signer. Endpoint and the static credential
// pair are optional; when unset the default AWS credential chain and
// endpoint resolution apply, which is what production uses.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// UsePathStyle is needed for MinIO style endpoints.
	UsePathStyle bool
}

func NewS3Signer(ctx context.Context, conf S3Config) (*S3Signer, error) {
	if conf.Bucket == "" {
		return nil, fmt.Errorf("delivery bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if conf.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(conf.Region))
	}
	if conf.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		o.UsePathStyle = conf.UsePathStyle
	})

	return &S3Signer{
		bucket:        conf.Bucket,
		presignClient: s3.NewPresignClient(client),
	}, nil
}

func (s *S3Signer) SignDownloadURL(ctx context.Context, fileKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	result, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileKey),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return result.URL, nil
}
