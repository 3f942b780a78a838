package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"
)

// S3Config holds the S3-compatible backend configuration:
// storage.s3.{endpoint,bucket,region,key,secret}.
type S3Config struct {
	Endpoint string // optional: non-empty for MinIO/R2/other S3-compatible providers
	Bucket   string
	Region   string
	Key      string
	Secret   string
}

// S3Store is an S3-compatible object store backend. References take the
// form "s3://<bucket>/<key>".
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3Store from cfg.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("artifact: s3 bucket is required")
	}

	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Key != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("artifact: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func refToS3Key(ref Ref, bucket string) (string, error) {
	u, err := url.Parse(string(ref))
	if err != nil {
		return "", fmt.Errorf("artifact: parsing ref %q: %w", ref, err)
	}
	if u.Scheme != "s3" {
		return "", fmt.Errorf("artifact: ref %q is not an s3:// reference", ref)
	}
	if u.Host != "" && u.Host != bucket {
		return "", fmt.Errorf("artifact: ref %q belongs to bucket %q, not %q", ref, u.Host, bucket)
	}
	key := u.Path
	for len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	if key == "" {
		return "", fmt.Errorf("artifact: ref %q has no key", ref)
	}
	return key, nil
}

// Put uploads body under key.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (Ref, error) {
	if err := sanitizeKey(key); err != nil {
		return "", err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("artifact: putting s3 object %q: %w", key, err)
	}
	return Ref(fmt.Sprintf("s3://%s/%s", s.bucket, key)), nil
}

// Get downloads the object behind ref.
func (s *S3Store) Get(ctx context.Context, ref Ref) ([]byte, error) {
	key, err := refToS3Key(ref, s.bucket)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifact: getting s3 object %q: %w", key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading s3 object %q: %w", key, err)
	}
	return b, nil
}

// Delete removes the object behind ref.
func (s *S3Store) Delete(ctx context.Context, ref Ref) (bool, error) {
	key, err := refToS3Key(ref, s.bucket)
	if err != nil {
		return false, err
	}
	exists, err := s.Exists(ctx, ref)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("artifact: deleting s3 object %q: %w", key, err)
	}
	return true, nil
}

// Exists reports whether ref resolves to an object.
func (s *S3Store) Exists(ctx context.Context, ref Ref) (bool, error) {
	key, err := refToS3Key(ref, s.bucket)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("artifact: heading s3 object %q: %w", key, err)
	}
	return true, nil
}

// isNotFound reports whether err is an S3 "not found" API error (NoSuchKey
// or NotFound, depending on the backend's fidelity to the AWS error model).
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
