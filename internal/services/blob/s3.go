package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"episodegen/internal/ports"
	"episodegen/internal/services"
)

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3 is a BlobStore backed by S3-compatible object storage.
type S3 struct {
	objects objectAPI
	presign presignAPI
}

// NewS3 resolves AWS configuration and builds the object and presign clients.
// Static credentials take precedence over the default credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "blob", "load aws config", "", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3{objects: client, presign: s3.NewPresignClient(client)}, nil
}

// Put uploads body under key, replacing any existing object.
func (s *S3) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return classifyS3Error("put", key, err)
	}
	return nil
}

// PresignedGet returns a time-limited GET URL for key.
func (s *S3) PresignedGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classifyS3Error("presign", key, err)
	}
	return req.URL, nil
}

// Stat reports metadata for key.
func (s *S3) Stat(ctx context.Context, bucket, key string) (ports.ObjectInfo, error) {
	out, err := s.objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ports.ObjectInfo{}, classifyS3Error("stat", key, err)
	}
	info := ports.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// Delete removes key. Deleting a missing object succeeds.
func (s *S3) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		wrapped := classifyS3Error("delete", key, err)
		if errors.Is(wrapped, services.ErrNotFound) {
			return nil
		}
		return wrapped
	}
	return nil
}

func classifyS3Error(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return services.Wrap(services.ErrNotFound, "blob", op, key, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return services.Wrap(services.ErrNotFound, "blob", op, key, err)
		case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return services.Wrap(services.ErrConfiguration, "blob", op, fmt.Sprintf("%s: %s", key, apiErr.ErrorCode()), err)
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return services.Wrap(services.ErrTransient, "blob", op, fmt.Sprintf("%s: %s", key, apiErr.ErrorCode()), err)
		}
	}
	return services.Wrap(services.ErrExternalService, "blob", op, key, err)
}
